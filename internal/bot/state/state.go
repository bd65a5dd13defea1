// Package state implements the bot init state machine: a validated,
// event-driven sequence from character load to AI activation. Nothing that
// depends on "bot is in the world" may run before IN_WORLD, and nothing that
// depends on the group may run before CHECKING_GROUP has re-read it.
package state

import "fmt"

// State is the lifecycle phase of one bot.
type State int32

const (
	Created State = iota
	LoadingCharacter
	InWorld
	CheckingGroup
	ActivatingStrategies
	Ready
	Failed
)

// AnyState matches every from-state in the rule table (forced failure edge).
const AnyState State = -1

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case LoadingCharacter:
		return "LOADING_CHARACTER"
	case InWorld:
		return "IN_WORLD"
	case CheckingGroup:
		return "CHECKING_GROUP"
	case ActivatingStrategies:
		return "ACTIVATING_STRATEGIES"
	case Ready:
		return "READY"
	case Failed:
		return "FAILED"
	case AnyState:
		return "ANY"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Mode controls how off-table transitions are treated.
type Mode int

const (
	ModeStrict    Mode = iota // reject off-table transitions
	ModeRelaxed               // log a warning, allow
	ModeDebugging             // log verbosely, allow
)

// Code classifies the outcome of a transition attempt.
type Code int

const (
	CodeOK Code = iota
	CodeAlreadyInState
	CodeNoRule
	CodePreconditionFailed
	CodeRetryExhausted
	CodeDeferred
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeAlreadyInState:
		return "ALREADY_IN_STATE"
	case CodeNoRule:
		return "NO_RULE"
	case CodePreconditionFailed:
		return "PRECONDITION_FAILED"
	case CodeRetryExhausted:
		return "RETRY_EXHAUSTED"
	case CodeDeferred:
		return "DEFERRED"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Validation describes why a transition was accepted or refused.
type Validation struct {
	Code   Code
	From   State
	To     State
	Reason string
}

// Allowed reports whether the transition was (or will be) executed.
func (v Validation) Allowed() bool {
	return v.Code == CodeOK || v.Code == CodeDeferred
}

func (v Validation) Error() string {
	return fmt.Sprintf("transition %s→%s: %s (%s)", v.From, v.To, v.Code, v.Reason)
}
