package service

import (
	"time"

	"github.com/l1jgo/playerbot/internal/core/event"
	"github.com/l1jgo/playerbot/internal/core/system"
)

// The world tick is decomposed into phase systems so ordering is explicit:
// deferred packets first, then last tick's events and finished loads, then
// movement arbitration, persistence and teardown.

// DeferredPacketSystem dispatches main-thread packets queued by bot workers.
type DeferredPacketSystem struct{ Svc *BotService }

func (d *DeferredPacketSystem) Phase() system.Phase     { return system.PhaseInput }
func (d *DeferredPacketSystem) Update(dt time.Duration) { d.Svc.DrainDeferred() }

// EventSystem rotates the double-buffered bus and delivers last tick's events.
type EventSystem struct{ Bus *event.Bus }

func (e *EventSystem) Phase() system.Phase { return system.PhasePreUpdate }
func (e *EventSystem) Update(dt time.Duration) {
	e.Bus.SwapBuffers()
	e.Bus.DispatchAll()
}

// CompletionSystem delivers finished character loads onto the world thread.
type CompletionSystem struct{ Svc *BotService }

func (c *CompletionSystem) Phase() system.Phase     { return system.PhasePreUpdate }
func (c *CompletionSystem) Update(dt time.Duration) { c.Svc.DrainCompletions() }

// MovementSystem runs every bot's movement arbitration.
type MovementSystem struct{ Svc *BotService }

func (m *MovementSystem) Phase() system.Phase     { return system.PhaseUpdate }
func (m *MovementSystem) Update(dt time.Duration) { m.Svc.UpdateMovement() }

// PersistSystem batches dirty-character saves on an interval.
type PersistSystem struct {
	Svc      *BotService
	Interval time.Duration // default 30 s

	elapsed time.Duration
}

func (p *PersistSystem) Phase() system.Phase { return system.PhasePersist }
func (p *PersistSystem) Update(dt time.Duration) {
	if p.Interval <= 0 {
		p.Interval = 30 * time.Second
	}
	p.elapsed += dt
	if p.elapsed < p.Interval {
		return
	}
	p.elapsed = 0
	p.Svc.FlushDirty()
}

// CleanupSystem destroys sessions queued for eviction.
type CleanupSystem struct{ Svc *BotService }

func (c *CleanupSystem) Phase() system.Phase     { return system.PhaseCleanup }
func (c *CleanupSystem) Update(dt time.Duration) { c.Svc.Cleanup() }

// RegisterAll wires the standard system set into a runner.
func RegisterAll(r *system.Runner, svc *BotService, bus *event.Bus, persistEvery time.Duration) {
	r.Register(&DeferredPacketSystem{Svc: svc})
	r.Register(&EventSystem{Bus: bus})
	r.Register(&CompletionSystem{Svc: svc})
	r.Register(&MovementSystem{Svc: svc})
	r.Register(&PersistSystem{Svc: svc, Interval: persistEvery})
	r.Register(&CleanupSystem{Svc: svc})
}
