// Package service runs the bot fleet: spawning, the login pipeline, the
// per-phase world-thread systems and the worker pool that ticks sessions.
package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/playerbot/internal/bot"
	"github.com/l1jgo/playerbot/internal/bot/movement"
	"github.com/l1jgo/playerbot/internal/bot/state"
	"github.com/l1jgo/playerbot/internal/config"
	"github.com/l1jgo/playerbot/internal/core/event"
	"github.com/l1jgo/playerbot/internal/data"
	"github.com/l1jgo/playerbot/internal/guid"
	"github.com/l1jgo/playerbot/internal/net"
	"github.com/l1jgo/playerbot/internal/net/packet"
	"github.com/l1jgo/playerbot/internal/persist"
	"github.com/l1jgo/playerbot/internal/scripting"
	"github.com/l1jgo/playerbot/internal/world"
)

// Services carries the shared dependencies the bot service wires into every
// bot it spawns. Characters and Accounts may be nil when running without a
// database (tests, dry runs); persistence is then skipped.
type Services struct {
	World      *world.State
	Bus        *event.Bus
	Registry   *packet.Registry
	Holder     *persist.Holder
	Characters *persist.CharacterRepo
	Accounts   *persist.AccountRepo
	Engine     *scripting.Engine
	Classes    *data.ClassTable
	Quests     *data.QuestTable
	Spawns     []data.SpawnPoint
	Cfg        *config.Config
	Log        *zap.Logger
}

type botEntry struct {
	charID    int64
	accountID int32
	session   *net.BotSession
	gs        *bot.GameSystems
	// row is the last loaded persistence row, reused as the flush buffer.
	row *persist.BotCharacterRow
}

// BotService owns the live bot fleet. Spawn, eviction and every On* callback
// run on the world thread; only the sessions themselves tick on workers.
type BotService struct {
	deps Services
	pool *WorkerPool
	log  *zap.Logger

	mu    sync.Mutex
	bots  map[guid.GUID]*botEntry
	evict []guid.GUID
}

func NewBotService(deps Services, pool *WorkerPool) *BotService {
	s := &BotService{
		deps: deps,
		pool: pool,
		log:  deps.Log,
		bots: make(map[guid.GUID]*botEntry),
	}

	event.Subscribe(deps.Bus, func(e event.BotReady) {
		s.log.Info("機器人就緒", zap.String("char", e.CharGUID.String()))
	})
	event.Subscribe(deps.Bus, func(e event.BotFailed) {
		s.onBotFailed(e)
	})
	return s
}

// SpawnBot creates the session and facade for one bot character and kicks off
// its login. The character row is loaded asynchronously; world entry happens
// on a later tick inside DrainCompletions.
func (s *BotService) SpawnBot(charID int64, accountID int32) (*net.BotSession, error) {
	cfg := s.deps.Cfg
	charGUID := s.deps.World.NextPlayerGUID()

	sess := net.NewBotSession(uint32(accountID), 0, charGUID, s.deps.Registry, s.deps.World,
		net.SessionConfig{
			UpdateLockWait:   cfg.Bots.UpdateLockWait,
			TimeSyncInterval: cfg.Bots.TimeSyncInterval,
		}, s.deps.World.NowMS, s.log)

	gs := bot.NewGameSystems(charGUID, bot.Deps{
		World:  s.deps.World,
		Bus:    s.deps.Bus,
		Quests: s.deps.Quests,
		SubmitLoad: func() {
			s.deps.Holder.Submit(charID, func(res persist.LoadResult) {
				s.onCharLoaded(charGUID, res)
			})
		},
		Movement: movement.Config{
			WindowMS:   cfg.Movement.DedupWindow.Milliseconds(),
			Distance:   cfg.Movement.DedupDistance,
			MaxPending: cfg.Movement.MaxPending,
		},
		Init: state.Options{
			StateBudget: cfg.Init.StateBudget,
			LoginBudget: cfg.Init.LoginBudget,
			MaxRetries:  cfg.Init.MaxRetries,
		},
		RefTTLMS:   cfg.Bots.RefTTL.Milliseconds(),
		SendPacket: sess.QueuePacket,
		Log:        s.log,
	})
	ai := bot.NewBotAI(gs, s.deps.Engine, s.deps.Classes, s.log)
	gs.SetAI(ai)

	sess.SetMachine(gs.Machine)
	sess.SetAI(ai)
	sess.SetQuests(gs.Quests)
	sess.Activate()

	s.mu.Lock()
	s.bots[charGUID] = &botEntry{charID: charID, accountID: accountID, session: sess, gs: gs}
	s.mu.Unlock()

	if s.pool != nil {
		s.pool.Add(sess)
	}
	s.adjustBotCount(accountID, 1)

	gs.Machine.TransitionTo(state.LoadingCharacter, "login start")
	s.log.Info("機器人開始登入",
		zap.Int64("char_id", charID),
		zap.String("guid", charGUID.String()),
	)
	return sess, nil
}

// onCharLoaded finishes the login pipeline once the character row arrives.
// Runs inside DrainCompletions on the world thread.
func (s *BotService) onCharLoaded(charGUID guid.GUID, res persist.LoadResult) {
	entry := s.entry(charGUID)
	if entry == nil || entry.session.IsDestroyed() {
		return
	}
	if res.Err != nil {
		entry.gs.Machine.Fail("character load failed")
		return
	}
	if res.Char == nil {
		entry.gs.Machine.Fail("character not found")
		return
	}
	row := res.Char
	entry.row = row

	pos := world.Position{X: row.X, Y: row.Y, Z: row.Z, MapID: row.MapID, Heading: row.Heading}
	if row.X == 0 && row.Y == 0 && row.Z == 0 {
		// Fresh character: place it at the level-appropriate spawn.
		if sp := data.SpawnFor(s.deps.Spawns, row.Level); sp != nil {
			pos = world.Position{X: sp.X, Y: sp.Y, Z: sp.Z, MapID: sp.MapID, Heading: sp.Heading}
		}
	}

	p := world.NewPlayerInfo(world.PlayerView{
		GUID:      charGUID,
		AccountID: int64(row.AccountID),
		Name:      row.Name,
		ClassID:   row.ClassID,
		Level:     row.Level,
		HP:        row.HP,
		MaxHP:     row.MaxHP,
		Pos:       pos,
		Alive:     row.Alive,
		IsBot:     true,
	}, entry.session)
	s.deps.World.AddPlayer(p)
	entry.gs.Home = pos

	// The forged client login tail: status up, queued-messages end, mover
	// activation. The handlers flip the visibility flags a real login would.
	entry.session.SetStatus(packet.StatusInWorld)
	sim := entry.session.Simulator()
	sim.QueuedMessagesEnd()
	sim.ActiveMoverComplete()

	s.log.Info("機器人進入世界",
		zap.String("guid", charGUID.String()),
		zap.String("name", row.Name),
	)
}

// onBotFailed retries the login while the budget lasts, then evicts.
func (s *BotService) onBotFailed(e event.BotFailed) {
	entry := s.entry(e.CharGUID)
	if entry == nil {
		return
	}
	v := entry.gs.Machine.TransitionTo(state.LoadingCharacter, "retry after failure")
	if v.Allowed() {
		s.log.Warn("機器人初始化失敗，重試",
			zap.String("char", e.CharGUID.String()),
			zap.String("reason", e.Reason),
			zap.Int("retries", entry.gs.Machine.Retries()),
		)
		return
	}
	s.log.Error("機器人初始化失敗，撤離",
		zap.String("char", e.CharGUID.String()),
		zap.String("reason", e.Reason),
	)
	s.QueueEvict(e.CharGUID)
}

// QueueEvict schedules a bot for teardown in the cleanup phase.
func (s *BotService) QueueEvict(g guid.GUID) {
	s.mu.Lock()
	s.evict = append(s.evict, g)
	s.mu.Unlock()
}

// Cleanup tears down every queued bot. World thread only.
func (s *BotService) Cleanup() {
	s.mu.Lock()
	pending := s.evict
	s.evict = nil
	s.mu.Unlock()

	for _, g := range pending {
		s.evictNow(g)
	}
}

func (s *BotService) evictNow(g guid.GUID) {
	s.mu.Lock()
	entry := s.bots[g]
	delete(s.bots, g)
	s.mu.Unlock()
	if entry == nil {
		return
	}

	if s.pool != nil {
		s.pool.Remove(entry.session)
	}
	entry.session.Destroy()
	entry.gs.Shutdown()
	if grp := s.deps.World.Groups.GroupOf(g); grp != nil {
		// A group of one is no group.
		if s.deps.World.Groups.RemoveMember(g) == 1 {
			s.deps.World.Groups.Dissolve(grp.LeaderGUID)
		}
	}
	s.deps.World.RemovePlayer(g)
	s.adjustBotCount(entry.accountID, -1)
	s.log.Info("機器人已撤離", zap.String("char", g.String()))
}

func (s *BotService) entry(g guid.GUID) *botEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bots[g]
}

// Bot returns the facade for one live bot, or nil.
func (s *BotService) Bot(g guid.GUID) *bot.GameSystems {
	e := s.entry(g)
	if e == nil {
		return nil
	}
	return e.gs
}

// BotCount returns the number of live bots.
func (s *BotService) BotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bots)
}

// DrainDeferred dispatches every session's main-thread packets. World thread.
func (s *BotService) DrainDeferred() {
	for _, e := range s.snapshot() {
		e.session.DrainDeferred()
	}
}

// DrainCompletions runs finished character loads. World thread.
func (s *BotService) DrainCompletions() {
	s.deps.Holder.DrainCompletions()
}

// UpdateMovement arbitrates every bot's pending motion. World thread.
func (s *BotService) UpdateMovement() {
	for _, e := range s.snapshot() {
		e.gs.Arbiter.Update()
	}
}

// FlushDirty saves every bot character with unflushed changes. World thread;
// the writes run synchronously with a bounded context, matching the login
// path's DB discipline.
func (s *BotService) FlushDirty() {
	if s.deps.Characters == nil {
		return
	}
	for _, e := range s.snapshot() {
		p := s.deps.World.FindPlayer(e.gs.CharGUID)
		if p == nil || !p.Dirty || e.row == nil {
			continue
		}
		v := p.View()
		row := e.row
		row.Level = v.Level
		row.HP = v.HP
		row.MaxHP = v.MaxHP
		row.X, row.Y, row.Z = v.Pos.X, v.Pos.Y, v.Pos.Z
		row.MapID = v.Pos.MapID
		row.Heading = v.Pos.Heading
		row.Alive = v.Alive

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := s.deps.Characters.Save(ctx, row)
		cancel()
		if err != nil {
			s.log.Warn("角色存檔失敗", zap.Int64("char_id", row.ID), zap.Error(err))
			continue
		}
		p.Dirty = false
	}
}

func (s *BotService) snapshot() []*botEntry {
	s.mu.Lock()
	out := make([]*botEntry, 0, len(s.bots))
	for _, e := range s.bots {
		out = append(out, e)
	}
	s.mu.Unlock()
	return out
}

func (s *BotService) adjustBotCount(accountID int32, delta int) {
	if s.deps.Accounts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.deps.Accounts.AdjustBotCount(ctx, accountID, delta); err != nil {
		s.log.Warn("帳號機器人計數更新失敗", zap.Int32("account", accountID), zap.Error(err))
	}
}
