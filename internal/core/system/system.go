package system

import "time"

// Phase defines execution ordering within a single world-thread tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain deferred packet queues
	PhasePreUpdate               // 1: holder completions, spawn/evict, last tick's events
	PhaseUpdate                  // 2: movement arbitration, AI-side effects
	PhasePostUpdate              // 3: time sync, visibility upkeep
	PhaseOutput                  // 4: flush outbound relays
	PhasePersist                 // 5: batch save dirty characters
	PhaseCleanup                 // 6: destroy drained sessions
)

// System is the interface every world-thread system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
