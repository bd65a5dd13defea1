// Package net implements the hostless bot session: a server-side session
// with no socket that drives login, packet routing and group relay through
// the same protocol a real client would.
package net

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/playerbot/internal/bot/state"
	"github.com/l1jgo/playerbot/internal/guid"
	"github.com/l1jgo/playerbot/internal/net/packet"
	"github.com/l1jgo/playerbot/internal/world"
)

// UpdateResult is what one session tick reports to the worker pool.
type UpdateResult int

const (
	UpdateOK        UpdateResult = iota
	UpdateSkipped                // lock timeout or re-entry, session stays healthy
	UpdateTerminate              // session must be evicted
)

func (r UpdateResult) String() string {
	switch r {
	case UpdateSkipped:
		return "skipped"
	case UpdateTerminate:
		return "terminate"
	default:
		return "ok"
	}
}

// AI is the per-bot brain ticked after packets are routed. Kept as a narrow
// interface so the session never depends on strategy internals.
type AI interface {
	UpdateAI(dt time.Duration)
}

// QuestSink receives quest mutations. The handlers dispatch these from the
// deferred queue, so implementations run on the world thread.
type QuestSink interface {
	Accept(questID int32) error
	TurnIn(questID int32) bool
}

// SessionConfig bounds the session's blocking behavior.
type SessionConfig struct {
	UpdateLockWait   time.Duration // Update lock acquisition timeout, default 100 ms
	TimeSyncInterval time.Duration // forged time-sync cadence, default 10 s
	DestroyWait      time.Duration // bounded wait for in-flight packets, default 1 s
}

func (c *SessionConfig) fill() {
	if c.UpdateLockWait <= 0 {
		c.UpdateLockWait = 100 * time.Millisecond
	}
	if c.TimeSyncInterval <= 0 {
		c.TimeSyncInterval = 10 * time.Second
	}
	if c.DestroyWait <= 0 {
		c.DestroyWait = time.Second
	}
}

const lfgSeenSize = 10

// BotSession is a synthetic session for one bot character. Update runs on
// any bot worker goroutine; DrainDeferred and Destroy run on the world
// thread. Outbound packets never reach a socket: they are inspected for
// auto-accept triggers and relayed to human group members instead.
type BotSession struct {
	AccountID     uint32
	BnetAccountID uint32
	CharGUID      guid.GUID

	cfg SessionConfig
	reg *packet.Registry
	w   *world.State
	log *zap.Logger
	now func() int64

	status atomic.Int32 // packet.SessionStatus

	active    atomic.Bool
	destroyed atomic.Bool
	// packetProcessing is observed by Destroy to bound its teardown wait.
	packetProcessing atomic.Bool
	// updating is the re-entry guard: a nested Update on the same session
	// returns early instead of deadlocking on updateMu.
	updating        atomic.Bool
	recursionLogged atomic.Bool

	// updateMu is a timed mutex: a worker that cannot take it within
	// UpdateLockWait skips the tick.
	updateMu chan struct{}

	inMu    sync.Mutex
	inbound [][]byte

	defMu    sync.Mutex
	deferred [][]byte

	// lfgSeen is the anti-replay window for LFG proposal ids; only the first
	// occurrence of an id triggers an auto-accept.
	lfgMu   sync.Mutex
	lfgSeen [lfgSeenSize]uint32
	lfgPos  int

	machine *state.Machine
	ai      AI
	quests  QuestSink
	sim     *Simulator

	lastTimeSyncMS atomic.Int64
	timeSyncSeq    atomic.Uint32
	clockDeltaMS   atomic.Int64

	workerPackets   atomic.Uint64
	deferredPackets atomic.Uint64
	droppedPackets  atomic.Uint64
}

func NewBotSession(accountID, bnetID uint32, charGUID guid.GUID, reg *packet.Registry, w *world.State, cfg SessionConfig, now func() int64, log *zap.Logger) *BotSession {
	cfg.fill()
	s := &BotSession{
		AccountID:     accountID,
		BnetAccountID: bnetID,
		CharGUID:      charGUID,
		cfg:           cfg,
		reg:           reg,
		w:             w,
		now:           now,
		updateMu:      make(chan struct{}, 1),
		log: log.With(
			zap.Uint32("account", accountID),
			zap.String("char", charGUID.String()),
		),
	}
	s.status.Store(int32(packet.StatusAuthed))
	s.sim = &Simulator{sess: s, log: s.log}
	return s
}

func (s *BotSession) Status() packet.SessionStatus {
	return packet.SessionStatus(s.status.Load())
}

func (s *BotSession) SetStatus(st packet.SessionStatus) {
	s.status.Store(int32(st))
}

func (s *BotSession) SetMachine(m *state.Machine) { s.machine = m }
func (s *BotSession) SetAI(ai AI)                 { s.ai = ai }
func (s *BotSession) SetQuests(q QuestSink)       { s.quests = q }

// Quests returns the attached quest sink, nil when none.
func (s *BotSession) Quests() QuestSink { return s.quests }

// Simulator returns the forged-packet helper for the login pipeline.
func (s *BotSession) Simulator() *Simulator { return s.sim }

func (s *BotSession) Activate()      { s.active.Store(true) }
func (s *BotSession) Deactivate()    { s.active.Store(false) }
func (s *BotSession) IsActive() bool { return s.active.Load() }

// QueuePacket accepts one inbound packet from the host. Safe from any
// thread; packets arriving after destruction are dropped.
func (s *BotSession) QueuePacket(data []byte) {
	if s.destroyed.Load() {
		s.droppedPackets.Add(1)
		return
	}
	s.inMu.Lock()
	s.inbound = append(s.inbound, data)
	s.inMu.Unlock()
}

// Deliver satisfies world.PacketSink: a bot's character sinks server packets
// into the session's own inbound queue.
func (s *BotSession) Deliver(data []byte) { s.QueuePacket(data) }

// Update is one session tick on a bot worker goroutine. It routes queued
// packets, advances the init state machine and ticks the AI. A lock timeout
// or detected re-entry skips the tick without marking the session unhealthy.
func (s *BotSession) Update(dt time.Duration) UpdateResult {
	if s.destroyed.Load() {
		return UpdateTerminate
	}

	if !s.updating.CompareAndSwap(false, true) {
		if s.recursionLogged.CompareAndSwap(false, true) {
			s.log.Warn("偵測到遞迴更新，已忽略")
		}
		return UpdateSkipped
	}
	defer s.updating.Store(false)

	select {
	case s.updateMu <- struct{}{}:
	default:
		timer := time.NewTimer(s.cfg.UpdateLockWait)
		select {
		case s.updateMu <- struct{}{}:
			timer.Stop()
		case <-timer.C:
			return UpdateSkipped
		}
	}
	defer func() { <-s.updateMu }()

	s.packetProcessing.Store(true)
	defer s.packetProcessing.Store(false)

	s.routePackets()

	if s.machine != nil {
		s.safeTick("machine", s.machine.Advance)
	}
	if s.active.Load() && s.ai != nil && s.machine != nil && s.machine.IsReady() {
		s.safeTick("ai", func() { s.ai.UpdateAI(dt) })
	}

	s.maybeTimeSync()
	return UpdateOK
}

// safeTick runs one update stage with panic recovery, mirroring the
// registry's handler recovery: a misbehaving strategy loses its tick, not the
// worker goroutine.
func (s *BotSession) safeTick(stage string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("更新階段 panic 已恢復",
				zap.String("stage", stage),
				zap.Any("panic", rec),
			)
		}
	}()
	fn()
}

// routePackets drains the inbound queue: worker-safe opcodes dispatch inline,
// the rest move to the deferred queue for the world thread.
func (s *BotSession) routePackets() {
	s.inMu.Lock()
	pending := s.inbound
	s.inbound = nil
	s.inMu.Unlock()

	for _, data := range pending {
		if len(data) < 2 {
			s.droppedPackets.Add(1)
			continue
		}
		op := packet.Opcode(uint16(data[0]) | uint16(data[1])<<8)
		if packet.Classify(op) == packet.ProcessMainThread {
			s.defMu.Lock()
			s.deferred = append(s.deferred, data)
			s.defMu.Unlock()
			s.deferredPackets.Add(1)
			continue
		}
		if err := s.reg.Dispatch(s, s.Status(), data); err != nil {
			// A bad packet is dropped; the session keeps running.
			s.log.Warn("封包分派錯誤", zap.Uint16("opcode", uint16(op)), zap.Error(err))
			s.droppedPackets.Add(1)
			continue
		}
		s.workerPackets.Add(1)
	}
}

// DrainDeferred dispatches main-thread packets. World thread only.
func (s *BotSession) DrainDeferred() {
	s.defMu.Lock()
	pending := s.deferred
	s.deferred = nil
	s.defMu.Unlock()

	for _, data := range pending {
		if err := s.reg.Dispatch(s, s.Status(), data); err != nil {
			s.log.Warn("延遲封包分派錯誤", zap.Error(err))
			s.droppedPackets.Add(1)
		}
	}
}

// maybeTimeSync forges the periodic time-sync response.
func (s *BotSession) maybeTimeSync() {
	if s.Status() != packet.StatusInWorld {
		return
	}
	nowMS := s.now()
	last := s.lastTimeSyncMS.Load()
	if last != 0 && nowMS-last < s.cfg.TimeSyncInterval.Milliseconds() {
		return
	}
	if !s.lastTimeSyncMS.CompareAndSwap(last, nowMS) {
		return
	}
	s.sim.TimeSyncResponse()
}

// Send is the outbound override point. The packet never reaches a socket:
// selected opcodes trigger auto-accept side logic, then everything is
// relayed to human group members so the bot's activity shows in their logs.
func (s *BotSession) Send(data []byte) {
	if s.destroyed.Load() || len(data) < 2 {
		return
	}
	r := packet.NewReader(data)
	switch r.Opcode() {
	case packet.SOpcodeGroupInvite:
		s.acceptGroupInvite(r)
	case packet.SOpcodeLFGProposalUpdate:
		s.acceptLFGProposal(r)
	case packet.SOpcodeLFGBootProposal:
		s.voteLFGBoot(r)
	}
	s.relayToGroup(data)
}

// acceptGroupInvite forges the accept a real client would send. The invite
// carries the inviter GUID; the forged accept echoes it so the handler can
// attach the bot to the right group.
func (s *BotSession) acceptGroupInvite(r *packet.Reader) {
	inviter := r.ReadQ()
	w := packet.NewWriterWithOpcode(packet.COpcodeGroupAccept)
	w.WriteQ(inviter)
	s.QueuePacket(w.Bytes())
	s.log.Debug("自動接受組隊邀請", zap.Uint64("inviter", inviter))
}

// acceptLFGProposal answers the first update for a proposal id and ignores
// the rest. Without the anti-replay window the accept itself triggers
// another proposal update and the session recurses.
func (s *BotSession) acceptLFGProposal(r *packet.Reader) {
	proposalID := r.ReadDU()

	s.lfgMu.Lock()
	for _, seen := range s.lfgSeen {
		if seen == proposalID {
			s.lfgMu.Unlock()
			return
		}
	}
	s.lfgSeen[s.lfgPos%lfgSeenSize] = proposalID
	s.lfgPos++
	s.lfgMu.Unlock()

	w := packet.NewWriterWithOpcode(packet.COpcodeLFGProposalResult)
	w.WriteDU(proposalID)
	w.WriteC(1) // accept
	s.QueuePacket(w.Bytes())
	s.log.Debug("自動接受 LFG 提案", zap.Uint32("proposal", proposalID))
}

// voteLFGBoot votes yes on an open kick vote unless the bot is the target.
func (s *BotSession) voteLFGBoot(r *packet.Reader) {
	voteOpen := r.ReadC() == 1
	target := guid.GUID(r.ReadQ())
	if !voteOpen || target == s.CharGUID {
		return
	}
	w := packet.NewWriterWithOpcode(packet.COpcodeLFGBootVote)
	w.WriteC(1) // yes
	s.QueuePacket(w.Bytes())
	s.log.Debug("自動投票踢人", zap.String("target", target.String()))
}

// relayToGroup delivers an outbound packet to every human group member.
func (s *BotSession) relayToGroup(data []byte) {
	g := s.w.Groups.GroupOf(s.CharGUID)
	if g == nil {
		return
	}
	for _, member := range g.Members {
		if member == s.CharGUID {
			continue
		}
		p := s.w.FindPlayer(member)
		if p == nil || p.IsBot || p.Sink == nil {
			continue
		}
		p.Sink.Deliver(data)
	}
}

// forge dispatches a hand-built inbound packet directly, bypassing the
// queues. Used by the simulator on whatever thread owns the pipeline step.
func (s *BotSession) forge(data []byte) {
	if err := s.reg.Dispatch(s, s.Status(), data); err != nil {
		s.log.Warn("偽造封包分派錯誤", zap.Error(err))
	}
}

// Destroy tears the session down: no further packets are accepted, in-flight
// processing is awaited for a bounded time, then character-side residue is
// cleared. World thread only.
func (s *BotSession) Destroy() {
	if !s.destroyed.CompareAndSwap(false, true) {
		return
	}
	s.active.Store(false)
	s.SetStatus(packet.StatusLogout)

	deadline := time.Now().Add(s.cfg.DestroyWait)
	for s.packetProcessing.Load() && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	// Clear delayed spell events and pending map updates before the host
	// frees the character, or their callbacks touch freed state.
	if p := s.w.FindPlayer(s.CharGUID); p != nil {
		p.ClearSpellEvents()
	}
	s.w.CancelMapUpdate(s.CharGUID)

	s.inMu.Lock()
	s.inbound = nil
	s.inMu.Unlock()
	s.defMu.Lock()
	s.deferred = nil
	s.defMu.Unlock()

	s.ai = nil
	s.machine = nil
	s.quests = nil

	s.log.Info("會話已銷毀",
		zap.Uint64("worker_packets", s.workerPackets.Load()),
		zap.Uint64("deferred_packets", s.deferredPackets.Load()),
		zap.Uint64("dropped_packets", s.droppedPackets.Load()),
	)
}

func (s *BotSession) IsDestroyed() bool { return s.destroyed.Load() }

// Counters returns (worker, deferred, dropped) packet counts.
func (s *BotSession) Counters() (uint64, uint64, uint64) {
	return s.workerPackets.Load(), s.deferredPackets.Load(), s.droppedPackets.Load()
}

// ClockDeltaMS returns the last computed client/server clock delta.
func (s *BotSession) ClockDeltaMS() int64 { return s.clockDeltaMS.Load() }
