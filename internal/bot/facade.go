// Package bot assembles the per-bot runtime: guarded references into the
// world, the init state machine, the movement arbiter, quest tracking and the
// Lua-driven AI. One GameSystems instance exists per bot character and owns
// the lifetime of everything listed above.
package bot

import (
	"go.uber.org/zap"

	"github.com/l1jgo/playerbot/internal/bot/movement"
	"github.com/l1jgo/playerbot/internal/bot/ref"
	"github.com/l1jgo/playerbot/internal/bot/state"
	"github.com/l1jgo/playerbot/internal/core/event"
	"github.com/l1jgo/playerbot/internal/data"
	"github.com/l1jgo/playerbot/internal/guid"
	"github.com/l1jgo/playerbot/internal/net/packet"
	"github.com/l1jgo/playerbot/internal/world"
)

// Deps carries the shared services a GameSystems instance plugs into.
type Deps struct {
	World  *world.State
	Bus    *event.Bus
	Quests *data.QuestTable
	// SubmitLoad starts the async character load when the machine enters
	// LOADING_CHARACTER.
	SubmitLoad func()
	// SendPacket queues a forged client packet into the owning session so
	// main-thread mutations travel the normal pipeline. May be nil in tests.
	SendPacket func(data []byte)
	Movement   movement.Config
	Init       state.Options
	RefTTLMS   int64 // guarded-reference cache lifetime, 0 takes the default
	Log        *zap.Logger
}

// GameSystems is the per-bot facade. Collaborators hold it instead of the
// individual managers so teardown has a single owner.
type GameSystems struct {
	CharGUID guid.GUID

	World *world.State
	Bus   *event.Bus

	// Self resolves the owned character; Leader, Target and QuestGiver are
	// the guarded references the AI steers by. All of them re-resolve
	// through the live object table, never through a stored pointer.
	Self       *ref.Ref[world.PlayerInfo]
	Leader     *ref.Ref[world.PlayerInfo]
	Target     *ref.Ref[world.NpcInfo]
	QuestGiver *ref.Ref[world.NpcInfo]

	Arbiter *movement.Arbiter
	Machine *state.Machine
	Quests  *QuestManager

	// Home anchors flee and idle wandering. Set once at spawn.
	Home world.Position

	ai   *BotAI
	send func(data []byte)
	log  *zap.Logger
}

func NewGameSystems(charGUID guid.GUID, d Deps) *GameSystems {
	w := d.World
	now := w.NowMS
	log := d.Log.With(zap.String("char", charGUID.String()))

	ttl := d.RefTTLMS
	if ttl <= 0 {
		ttl = ref.DefaultTTL
	}
	gs := &GameSystems{
		CharGUID:   charGUID,
		World:      w,
		Bus:        d.Bus,
		Self:       ref.NewWithTTL(w.FindPlayer, now, ttl),
		Leader:     ref.NewWithTTL(w.FindPlayer, now, ttl),
		Target:     ref.NewWithTTL(w.FindNpc, now, ttl),
		QuestGiver: ref.NewWithTTL(w.FindNpc, now, ttl),
		Quests:     NewQuestManager(d.Quests, log),
		send:       d.SendPacket,
		log:        log,
	}
	gs.Self.SetGUID(charGUID)

	gs.Arbiter = movement.NewArbiter(d.Movement, gs.motionEngine, gs.targetAlive, now, log)

	gs.Machine = state.NewMachine(charGUID, state.Hooks{
		Char:          gs.charView,
		GroupLeader:   gs.groupLeader,
		AIInitialized: gs.aiInitialized,
		SubmitLoad:    d.SubmitLoad,
	}, d.Bus, now, d.Init, log)

	// Keep the leader reference in step with group membership changes made on
	// the world thread.
	event.Subscribe(d.Bus, func(e event.GroupJoined) {
		if e.CharGUID == charGUID {
			gs.Leader.SetGUID(e.LeaderGUID)
		}
	})

	return gs
}

// SetAI attaches the AI after construction; the machine's strategy-activation
// guard reads through here.
func (gs *GameSystems) SetAI(ai *BotAI) { gs.ai = ai }

// AI returns the attached AI, nil before SetAI.
func (gs *GameSystems) AI() *BotAI { return gs.ai }

// motionEngine resolves the owned character's motion facade each dispatch.
func (gs *GameSystems) motionEngine() *world.MotionEngine {
	p := gs.Self.Get()
	if p == nil {
		return nil
	}
	return p.Motion
}

// targetAlive validates chase/follow targets at dispatch time.
func (gs *GameSystems) targetAlive(g guid.GUID) bool {
	switch g.Kind() {
	case guid.KindPlayer:
		p := gs.World.FindPlayer(g)
		return p != nil && p.InWorld()
	case guid.KindNpc:
		n := gs.World.FindNpc(g)
		return n != nil && !n.Dead
	default:
		return false
	}
}

func (gs *GameSystems) charView() *state.CharView {
	p := gs.Self.Get()
	if p == nil {
		return nil
	}
	v := p.View()
	return &state.CharView{GUID: v.GUID, InWorld: v.InWorld, Alive: v.Alive}
}

func (gs *GameSystems) groupLeader() guid.GUID {
	p := gs.Self.Get()
	if p == nil {
		return 0
	}
	return p.GroupID()
}

func (gs *GameSystems) aiInitialized() bool {
	return gs.ai != nil && gs.ai.Initialized()
}

// RequestQuestAccept forges the quest-accept packet; the mutation itself runs
// when the deferred drain dispatches it on the world thread.
func (gs *GameSystems) RequestQuestAccept(giver guid.GUID, questID int32) {
	if gs.send == nil {
		return
	}
	gs.QuestGiver.SetGUID(giver)
	w := packet.NewWriterWithOpcode(packet.COpcodeQuestAccept)
	w.WriteDU(uint32(questID))
	gs.send(w.Bytes())
}

// RequestQuestTurnIn forges the quest-complete packet.
func (gs *GameSystems) RequestQuestTurnIn(questID int32) {
	if gs.send == nil {
		return
	}
	w := packet.NewWriterWithOpcode(packet.COpcodeQuestComplete)
	w.WriteDU(uint32(questID))
	gs.send(w.Bytes())
}

// Shutdown stops movement and invalidates every reference. World thread only.
func (gs *GameSystems) Shutdown() {
	gs.Arbiter.StopMovement()
	gs.Self.Clear()
	gs.Leader.Clear()
	gs.Target.Clear()
	gs.QuestGiver.Clear()
	gs.log.Info("機器人系統已關閉")
}
