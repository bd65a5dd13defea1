package bot

import (
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/playerbot/internal/bot/movement"
	"github.com/l1jgo/playerbot/internal/core/event"
	"github.com/l1jgo/playerbot/internal/data"
	"github.com/l1jgo/playerbot/internal/scripting"
	"github.com/l1jgo/playerbot/internal/world"
)

// BotAI is the per-bot brain. UpdateAI runs on the bot's worker goroutine;
// everything it touches goes through guarded references or the arbiter, never
// through a stored world pointer. Movement intents — including stops — are
// submitted as requests so the world thread stays the only dispatcher.
type BotAI struct {
	gs      *GameSystems
	engine  *scripting.Engine
	classes *data.ClassTable
	log     *zap.Logger

	initialized atomic.Bool
	lastAction  atomic.Value // string, for diagnostics
}

func NewBotAI(gs *GameSystems, engine *scripting.Engine, classes *data.ClassTable, log *zap.Logger) *BotAI {
	a := &BotAI{
		gs:      gs,
		engine:  engine,
		classes: classes,
		log:     log.With(zap.String("char", gs.CharGUID.String())),
	}
	a.lastAction.Store("")

	// Strategy activation: the machine emits exactly one of these on entry to
	// ACTIVATING_STRATEGIES, and the activation guard reads Initialized.
	event.Subscribe(gs.Bus, func(e event.GroupJoined) {
		if e.CharGUID == gs.CharGUID {
			a.activate("group")
		}
	})
	event.Subscribe(gs.Bus, func(e event.IdleStrategy) {
		if e.CharGUID == gs.CharGUID {
			a.activate("idle")
		}
	})
	return a
}

func (a *BotAI) activate(mode string) {
	if a.initialized.CompareAndSwap(false, true) {
		a.log.Info("AI 策略已啟動", zap.String("mode", mode))
	}
}

// Initialized reports whether strategy activation completed.
func (a *BotAI) Initialized() bool { return a.initialized.Load() }

// LastAction returns the most recent Lua decision applied, for diagnostics.
func (a *BotAI) LastAction() string { return a.lastAction.Load().(string) }

// UpdateAI runs one decision tick. Worker goroutine: the character is read
// once as a snapshot, never through the live record.
func (a *BotAI) UpdateAI(dt time.Duration) {
	_ = dt
	p := a.gs.Self.Get()
	if p == nil {
		return
	}
	self := p.View()
	if !self.InWorld {
		return
	}

	d := a.engine.DecideStrategy(a.buildContext(self))
	a.lastAction.Store(d.Action)
	a.apply(d, self)
}

func (a *BotAI) buildContext(self world.PlayerView) scripting.StrategyContext {
	ctx := scripting.StrategyContext{
		ClassID:  int(self.ClassID),
		Level:    int(self.Level),
		InGroup:  !self.GroupID.IsEmpty(),
		IsLeader: self.GroupID == self.GUID,
	}
	if self.MaxHP > 0 {
		ctx.HPPercent = float64(self.HP) / float64(self.MaxHP)
	}
	if grp := a.gs.World.Groups.GroupOf(self.GUID); grp != nil {
		ctx.GroupSize = len(grp.Members)
	}
	if t := a.gs.Target.Get(); t != nil && !t.Dead {
		ctx.HasTarget = true
		ctx.TargetDistance = distance(self.Pos, t.Pos)
	}
	return ctx
}

func (a *BotAI) apply(d scripting.Decision, self world.PlayerView) {
	prio := uint8(d.Priority)
	switch d.Action {
	case "follow":
		leader := a.gs.Leader.Get()
		if leader == nil || !leader.InWorld() {
			// The leader logged out or despawned between ticks. Stop instead
			// of chasing a stale position.
			a.gs.Arbiter.Submit(&movement.Request{
				Kind:     world.CommandStop,
				Priority: prio,
				Source:   "follow",
			})
			return
		}
		rng := d.Range
		if rng <= 0 {
			rng = a.followDistance(self)
		}
		a.gs.Arbiter.Submit(&movement.Request{
			Kind:     world.CommandFollow,
			Priority: prio,
			Source:   "follow",
			Target:   leader.GUID,
			Range:    rng,
			Angle:    math.Pi / 4,
		})

	case "grind":
		t := a.gs.Target.Get()
		if t == nil || t.Dead {
			a.gs.Target.Clear()
			return
		}
		rng := d.Range
		if rng <= 0 {
			rng = a.engageRange(self)
		}
		a.gs.Arbiter.Submit(&movement.Request{
			Kind:     world.CommandChase,
			Priority: prio,
			Source:   "grind",
			Target:   t.GUID,
			Range:    rng,
		})

	case "flee":
		a.gs.Arbiter.Submit(&movement.Request{
			Kind:            world.CommandMoveTo,
			Priority:        prio,
			Source:          "flee",
			Dest:            a.gs.Home,
			UsePathgen:      true,
			Uninterruptible: true,
		})

	case "rest":
		a.gs.Arbiter.Submit(&movement.Request{
			Kind:     world.CommandStop,
			Priority: prio,
			Source:   "rest",
		})

	default: // idle and anything the script invents later
	}
}

func (a *BotAI) followDistance(self world.PlayerView) float64 {
	if p := a.classes.Get(self.ClassID); p != nil && p.FollowDistance > 0 {
		return p.FollowDistance
	}
	return 2.5
}

func (a *BotAI) engageRange(self world.PlayerView) float64 {
	if p := a.classes.Get(self.ClassID); p != nil && p.EngageRange > 0 {
		return p.EngageRange
	}
	return 5
}

func distance(a, b world.Position) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
