package state

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/l1jgo/playerbot/internal/core/event"
	"github.com/l1jgo/playerbot/internal/guid"
	"go.uber.org/zap"
)

const historySize = 10

// Hooks connects the machine to the host world and the owning AI without a
// hard dependency in either direction.
type Hooks struct {
	// Char resolves the owned character, nil while not constructed.
	Char func() *CharView
	// GroupLeader returns the leader GUID of the character's current group,
	// or empty when ungrouped. Called on entry to CHECKING_GROUP.
	GroupLeader func() guid.GUID
	// AIInitialized reports whether the AI finished its strategy setup.
	AIInitialized func() bool
	// SubmitLoad kicks off the async character-load holder. Called on entry
	// to LOADING_CHARACTER.
	SubmitLoad func()
}

// CharView is the slice of the character record the machine's guards need.
type CharView struct {
	GUID    guid.GUID
	InWorld bool
	Alive   bool
}

// HistoryEntry is one executed transition.
type HistoryEntry struct {
	From   State
	To     State
	AtMS   int64
	Reason string
}

// Machine serializes init transitions for one bot. State reads are atomic and
// lock-free; transitions take the mutex briefly to validate and swap, then run
// OnExit/OnEnter outside the lock. TransitionTo invoked from inside
// OnEnter/OnExit of the same machine is deferred to the next Advance.
type Machine struct {
	charGUID guid.GUID
	hooks    Hooks
	bus      *event.Bus
	log      *zap.Logger
	now      func() int64

	mode        Mode
	stateBudget time.Duration
	loginBudget time.Duration
	maxRetries  int

	current atomic.Int32

	mu           sync.Mutex
	enteredAtMS  int64
	retries      int
	failReason   string
	inTransition bool
	deferred     []deferredTransition

	history    [historySize]HistoryEntry
	historyLen int
	historyPos int

	// Recorded on entry to CHECKING_GROUP.
	wasInGroupAtLogin atomic.Bool
	leaderGUID        atomic.Uint64

	readyAtMS atomic.Int64

	preconditionFails atomic.Uint64
}

type deferredTransition struct {
	to     State
	reason string
	force  bool
}

// Options configures budgets and mode; zero values take the defaults.
type Options struct {
	Mode        Mode
	StateBudget time.Duration // per-state stuck limit (default 2 s)
	LoginBudget time.Duration // LOADING_CHARACTER overall limit (default 10 s)
	MaxRetries  int           // FAILED→LOADING budget (default 3)
}

func NewMachine(charGUID guid.GUID, hooks Hooks, bus *event.Bus, now func() int64, opts Options, log *zap.Logger) *Machine {
	if opts.StateBudget <= 0 {
		opts.StateBudget = 2 * time.Second
	}
	if opts.LoginBudget <= 0 {
		opts.LoginBudget = 10 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	m := &Machine{
		charGUID:    charGUID,
		hooks:       hooks,
		bus:         bus,
		log:         log.With(zap.String("char", charGUID.String())),
		now:         now,
		mode:        opts.Mode,
		stateBudget: opts.StateBudget,
		loginBudget: opts.LoginBudget,
		maxRetries:  opts.MaxRetries,
	}
	m.current.Store(int32(Created))
	m.enteredAtMS = now()
	return m
}

// Current returns the state without taking the lock.
func (m *Machine) Current() State {
	return State(m.current.Load())
}

// IsReady reports whether the forward path completed.
func (m *Machine) IsReady() bool { return m.Current() == Ready }

// WasInGroupAtLogin reports whether a group existed before this login.
func (m *Machine) WasInGroupAtLogin() bool { return m.wasInGroupAtLogin.Load() }

// LeaderGUID returns the leader recorded during CHECKING_GROUP.
func (m *Machine) LeaderGUID() guid.GUID { return guid.GUID(m.leaderGUID.Load()) }

// FailReason returns the reason recorded by the last forced failure.
func (m *Machine) FailReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failReason
}

// ReadyAtMS returns when READY was reached (0 when never).
func (m *Machine) ReadyAtMS() int64 { return m.readyAtMS.Load() }

// Retries returns how many FAILED→LOADING retries were consumed.
func (m *Machine) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries
}

// PreconditionFails returns the diagnostic counter of refused guards.
func (m *Machine) PreconditionFails() uint64 { return m.preconditionFails.Load() }

// History returns the last transitions, oldest first.
func (m *Machine) History() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HistoryEntry, 0, m.historyLen)
	start := m.historyPos - m.historyLen
	for i := 0; i < m.historyLen; i++ {
		out = append(out, m.history[(start+i+historySize)%historySize])
	}
	return out
}

// StuckFor returns how long the machine has sat in the current state.
func (m *Machine) StuckFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stuckForLocked()
}

// stuckForLocked: caller holds m.mu (rule guards run under the lock).
func (m *Machine) stuckForLocked() time.Duration {
	return time.Duration(m.now()-m.enteredAtMS) * time.Millisecond
}

// stuckFor is the guard-facing alias used by the rule table.
func (m *Machine) stuckFor() time.Duration { return m.stuckForLocked() }

// TransitionTo attempts the edge from the current state to the target.
func (m *Machine) TransitionTo(to State, reason string) Validation {
	return m.transition(to, reason, false)
}

// Fail forces the machine into FAILED, recording the reason.
func (m *Machine) Fail(reason string) Validation {
	return m.transition(Failed, reason, true)
}

func (m *Machine) transition(to State, reason string, force bool) Validation {
	m.mu.Lock()

	from := m.Current()
	if from == to {
		m.mu.Unlock()
		return Validation{Code: CodeAlreadyInState, From: from, To: to, Reason: "no-op"}
	}

	// Re-entrant intent from OnEnter/OnExit: run it on the next Advance.
	if m.inTransition {
		m.deferred = append(m.deferred, deferredTransition{to: to, reason: reason, force: force})
		m.mu.Unlock()
		return Validation{Code: CodeDeferred, From: from, To: to, Reason: "queued until next update"}
	}

	candidates := findRules(from, to)
	var matched *Rule
	var guardReason string
	for i := range candidates {
		r := &candidates[i]
		if r.Pre == nil || (force && r.Force) {
			matched = r
			break
		}
		if msg := r.Pre(m); msg == "" {
			matched = r
			break
		} else if guardReason == "" {
			guardReason = msg
		}
	}

	if matched == nil && guardReason != "" {
		m.preconditionFails.Add(1)
		m.mu.Unlock()
		code := CodePreconditionFailed
		if from == Failed && to == LoadingCharacter {
			code = CodeRetryExhausted
		}
		m.log.Debug("轉換前置條件未通過",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
			zap.String("reason", guardReason),
		)
		return Validation{Code: code, From: from, To: to, Reason: guardReason}
	}

	if matched == nil {
		switch m.mode {
		case ModeStrict:
			m.mu.Unlock()
			return Validation{Code: CodeNoRule, From: from, To: to, Reason: "no rule in transition table"}
		case ModeRelaxed:
			m.log.Warn("轉換不在表內，寬鬆模式放行",
				zap.String("from", from.String()), zap.String("to", to.String()))
		case ModeDebugging:
			m.log.Info("轉換不在表內（除錯模式）",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
				zap.String("reason", reason),
			)
		}
	}

	now := m.now()
	m.inTransition = true
	m.current.Store(int32(to))
	m.enteredAtMS = now
	m.history[m.historyPos%historySize] = HistoryEntry{From: from, To: to, AtMS: now, Reason: reason}
	m.historyPos++
	if m.historyLen < historySize {
		m.historyLen++
	}
	m.mu.Unlock()

	// OnExit/OnEnter run outside the lock; re-entrant TransitionTo calls
	// land in the deferred queue above.
	m.onExit(from)
	m.onEnter(from, to, reason)

	m.mu.Lock()
	m.inTransition = false
	m.mu.Unlock()

	event.Emit(m.bus, event.StateChanged{CharGUID: m.charGUID, From: from.String(), To: to.String()})
	m.log.Debug("狀態轉換",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("reason", reason),
	)
	return Validation{Code: CodeOK, From: from, To: to, Reason: reason}
}

func (m *Machine) onExit(from State) {
	// No per-state exit work today; the hook point mirrors OnEnter so
	// strategies can be detached here later without reshaping the machine.
	_ = from
}

func (m *Machine) onEnter(from, to State, reason string) {
	switch to {
	case LoadingCharacter:
		if from == Failed {
			// Taking the retry edge consumes one attempt.
			m.mu.Lock()
			m.retries++
			m.mu.Unlock()
		}
		if m.hooks.SubmitLoad != nil {
			m.hooks.SubmitLoad()
		}
	case CheckingGroup:
		leader := guid.GUID(0)
		if m.hooks.GroupLeader != nil {
			leader = m.hooks.GroupLeader()
		}
		if !leader.IsEmpty() {
			m.leaderGUID.Store(uint64(leader))
			m.wasInGroupAtLogin.Store(true)
		}
	case ActivatingStrategies:
		if m.wasInGroupAtLogin.Load() {
			event.Emit(m.bus, event.GroupJoined{
				CharGUID:   m.charGUID,
				LeaderGUID: guid.GUID(m.leaderGUID.Load()),
				AtLogin:    true,
			})
		} else {
			event.Emit(m.bus, event.IdleStrategy{CharGUID: m.charGUID})
		}
	case Ready:
		now := m.now()
		m.readyAtMS.Store(now)
		event.Emit(m.bus, event.BotReady{CharGUID: m.charGUID, ReadyAt: now})
	case Failed:
		m.mu.Lock()
		m.failReason = reason
		m.mu.Unlock()
		event.Emit(m.bus, event.BotFailed{CharGUID: m.charGUID, Reason: reason})
	case Created:
		if from == Failed {
			// Full reset clears the retry budget.
			m.mu.Lock()
			m.retries = 0
			m.mu.Unlock()
		}
		m.wasInGroupAtLogin.Store(false)
		m.leaderGUID.Store(0)
	}
}

// Advance runs deferred intents, then pushes the forward path one step where
// guards allow, then enforces timeouts. Called from the session worker tick.
func (m *Machine) Advance() {
	m.mu.Lock()
	pending := m.deferred
	m.deferred = nil
	m.mu.Unlock()
	for _, d := range pending {
		m.transition(d.to, d.reason, d.force)
	}

	switch m.Current() {
	case LoadingCharacter:
		if v := m.TransitionTo(InWorld, "character load complete"); v.Code == CodeOK {
			event.Emit(m.bus, event.BotAddedToWorld{CharGUID: m.charGUID})
		}
	case InWorld:
		m.TransitionTo(CheckingGroup, "world placement verified")
	case CheckingGroup:
		m.TransitionTo(ActivatingStrategies, "group read complete")
	case ActivatingStrategies:
		if v := m.TransitionTo(Ready, "strategies active"); !v.Allowed() {
			// Bounce back only once the state budget is gone; the AI usually
			// finishes inside a tick or two. The bounce runs before the
			// timeout check below, so it wins over the FAILED edge.
			if m.StuckFor() >= m.stateBudget {
				m.TransitionTo(CheckingGroup, "AI not initialized")
			}
		}
	}

	m.CheckTimeouts()
}

// CheckTimeouts enforces the per-state and login budgets.
func (m *Machine) CheckTimeouts() {
	cur := m.Current()
	stuck := m.StuckFor()

	switch cur {
	case LoadingCharacter:
		if stuck >= m.loginBudget {
			m.Fail("timeout")
		}
	case CheckingGroup:
		if stuck > groupCheckStuckLimit {
			m.TransitionTo(InWorld, "group check stuck")
		}
	case InWorld, ActivatingStrategies:
		if stuck >= m.stateBudget {
			m.Fail("stuck in " + cur.String())
		}
	}
}
