// Package movement arbitrates motion requests from the bot's concurrent AI
// subsystems. Many sources submit per tick; at most one command reaches the
// host motion engine. Priorities live in a full 0..255 space and are
// compressed to the engine's 3-level model only at dispatch.
package movement

import (
	"github.com/l1jgo/playerbot/internal/guid"
	"github.com/l1jgo/playerbot/internal/world"
)

// Band is the named priority band of a request.
type Band int

const (
	BandMinimal Band = iota // 0..49, idle and exploration
	BandLow                 // 50..99
	BandMedium              // 100..149
	BandHigh                // 150..199
	BandVeryHigh            // 200..239
	BandCritical            // 240..255, death recovery, mechanic avoidance
)

func (b Band) String() string {
	switch b {
	case BandMinimal:
		return "MINIMAL"
	case BandLow:
		return "LOW"
	case BandMedium:
		return "MEDIUM"
	case BandHigh:
		return "HIGH"
	case BandVeryHigh:
		return "VERY_HIGH"
	case BandCritical:
		return "CRITICAL"
	default:
		return "?"
	}
}

// BandOf maps a raw priority byte onto its band.
func BandOf(priority uint8) Band {
	switch {
	case priority >= 240:
		return BandCritical
	case priority >= 200:
		return BandVeryHigh
	case priority >= 150:
		return BandHigh
	case priority >= 100:
		return BandMedium
	case priority >= 50:
		return BandLow
	default:
		return BandMinimal
	}
}

// Translate compresses a band to the host engine's priority, mode and slot.
func Translate(b Band) (world.EnginePriority, world.EngineMode, world.EngineSlot) {
	switch b {
	case BandCritical:
		return world.EnginePriorityHighest, world.EngineModeOverride, world.EngineSlotActive
	case BandVeryHigh:
		return world.EnginePriorityHighest, world.EngineModeDefault, world.EngineSlotActive
	case BandHigh:
		return world.EnginePriorityNormal, world.EngineModeOverride, world.EngineSlotActive
	case BandMedium, BandLow:
		return world.EnginePriorityNormal, world.EngineModeDefault, world.EngineSlotActive
	default:
		return world.EnginePriorityNone, world.EngineModeDefault, world.EngineSlotDefault
	}
}

// Request is one motion intent from an AI subsystem. The zero value of
// Uninterruptible means the request may be preempted once active.
type Request struct {
	Kind     world.CommandKind
	Priority uint8
	Source   string // submitting subsystem, for diagnostics

	Dest       world.Position // point kinds
	UsePathgen bool

	Target guid.GUID // chase / follow
	Range  float64
	Angle  float64

	SpeedXY     float64 // jump
	SpeedZ      float64
	SplineCount int

	Uninterruptible bool
	// ExpectedDurationMS bounds how long the dispatched motion may hold the
	// active slot; 0 takes the arbiter default.
	ExpectedDurationMS int64

	submittedAtMS int64
}

// Band returns the named band of the request's priority byte.
func (r *Request) Band() Band { return BandOf(r.Priority) }

// pointKind reports whether the request targets a position rather than a unit.
func (r *Request) pointKind() bool {
	switch r.Kind {
	case world.CommandChase, world.CommandFollow:
		return false
	default:
		return true
	}
}

// gridSize buckets point destinations so that nearby targets share a hash
// bucket; the precise distance check runs only after a bucket hit.
const gridSize = 5.0

// Hash computes the spatial-temporal dedup key. Point kinds bucket the
// destination to a 5-yard grid; chase and follow hash the target GUID.
func (r *Request) Hash() uint64 {
	h := uint64(14695981039346656037) // FNV-1a offset basis
	mix := func(v uint64) {
		for i := 0; i < 8; i++ {
			h ^= v & 0xff
			h *= 1099511628211
			v >>= 8
		}
	}
	mix(uint64(r.Kind))
	mix(uint64(r.Band()))
	if r.pointKind() {
		mix(uint64(int64(r.Dest.X / gridSize)))
		mix(uint64(int64(r.Dest.Y / gridSize)))
		mix(uint64(int64(r.Dest.Z / gridSize)))
	} else {
		mix(uint64(r.Target))
	}
	return h
}

// command materializes the host engine command for the winning request.
func (r *Request) command(prio world.EnginePriority, mode world.EngineMode, slot world.EngineSlot) world.Command {
	return world.Command{
		Kind:        r.Kind,
		Priority:    prio,
		Mode:        mode,
		Slot:        slot,
		Dest:        r.Dest,
		UsePathgen:  r.UsePathgen,
		Target:      r.Target,
		Range:       r.Range,
		Angle:       r.Angle,
		SpeedXY:     r.SpeedXY,
		SpeedZ:      r.SpeedZ,
		SplineCount: r.SplineCount,
	}
}
