package world

import (
	"sync"

	"github.com/l1jgo/playerbot/internal/guid"
)

// EnginePriority is the host engine's 3-level motion priority.
type EnginePriority int

const (
	EnginePriorityNone EnginePriority = iota
	EnginePriorityNormal
	EnginePriorityHighest
)

func (p EnginePriority) String() string {
	switch p {
	case EnginePriorityNone:
		return "NONE"
	case EnginePriorityNormal:
		return "NORMAL"
	case EnginePriorityHighest:
		return "HIGHEST"
	default:
		return "?"
	}
}

// EngineMode selects whether a command replaces the current generator.
type EngineMode int

const (
	EngineModeDefault EngineMode = iota
	EngineModeOverride
)

func (m EngineMode) String() string {
	if m == EngineModeOverride {
		return "OVERRIDE"
	}
	return "DEFAULT"
}

// EngineSlot is the generator slot a command occupies.
type EngineSlot int

const (
	EngineSlotDefault EngineSlot = iota
	EngineSlotActive
)

func (s EngineSlot) String() string {
	if s == EngineSlotActive {
		return "ACTIVE"
	}
	return "DEFAULT"
}

// CommandKind enumerates the motion commands the engine accepts.
type CommandKind int

const (
	CommandMoveTo CommandKind = iota
	CommandChase
	CommandFollow
	CommandIdle
	CommandJump
	CommandCharge
	CommandKnockback
	CommandCustomSpline
	CommandStop
)

func (k CommandKind) String() string {
	switch k {
	case CommandMoveTo:
		return "MoveTo"
	case CommandChase:
		return "Chase"
	case CommandFollow:
		return "Follow"
	case CommandIdle:
		return "Idle"
	case CommandJump:
		return "Jump"
	case CommandCharge:
		return "Charge"
	case CommandKnockback:
		return "Knockback"
	case CommandCustomSpline:
		return "CustomSpline"
	case CommandStop:
		return "Stop"
	default:
		return "?"
	}
}

// Command is one fully-resolved motion instruction.
type Command struct {
	Kind     CommandKind
	Priority EnginePriority
	Mode     EngineMode
	Slot     EngineSlot

	Dest        Position  // MoveTo / Jump / Charge / Knockback / CustomSpline
	UsePathgen  bool      // MoveTo: run path generation
	Target      guid.GUID // Chase / Follow
	Range       float64   // Chase range / Follow distance
	Angle       float64
	SpeedXY     float64 // Jump
	SpeedZ      float64 // Jump
	SplineCount int     // CustomSpline point count
}

// MotionEngine is the per-character motion facade the arbiter dispatches
// into. It mirrors the host generator stack: the last issued command per
// slot, plus a total command counter used by tests to assert the
// one-command-per-tick invariant.
type MotionEngine struct {
	mu       sync.Mutex
	slots    [2]*Command
	issued   uint64
	lastStop bool
}

func NewMotionEngine() *MotionEngine {
	return &MotionEngine{}
}

// Issue installs a command into its slot. World thread only.
func (e *MotionEngine) Issue(cmd Command) {
	e.mu.Lock()
	c := cmd
	e.slots[cmd.Slot] = &c
	e.issued++
	e.lastStop = false
	e.mu.Unlock()
}

// Stop halts movement and releases the active slot.
func (e *MotionEngine) Stop() {
	e.mu.Lock()
	e.slots[EngineSlotActive] = nil
	e.issued++
	e.lastStop = true
	e.mu.Unlock()
}

// Current returns the command occupying a slot, or nil.
func (e *MotionEngine) Current(slot EngineSlot) *Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slots[slot]
}

// IssuedCount returns the total number of commands (including stops) issued.
func (e *MotionEngine) IssuedCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.issued
}
