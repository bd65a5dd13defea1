package state

import (
	"testing"
	"time"

	"github.com/l1jgo/playerbot/internal/core/event"
	"github.com/l1jgo/playerbot/internal/guid"
	"go.uber.org/zap"
)

type harness struct {
	m      *Machine
	bus    *event.Bus
	clock  int64
	char   *CharView
	aiInit bool
	loads  int
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{bus: event.NewBus()}
	hooks := Hooks{
		Char:          func() *CharView { return h.char },
		GroupLeader:   func() guid.GUID { return 0 },
		AIInitialized: func() bool { return h.aiInit },
		SubmitLoad:    func() { h.loads++ },
	}
	h.m = NewMachine(guid.New(guid.KindPlayer, 1), hooks, h.bus, func() int64 { return h.clock }, opts, zap.NewNop())
	return h
}

func TestHappyPath(t *testing.T) {
	h := newHarness(t, Options{})
	h.aiInit = true

	if v := h.m.TransitionTo(LoadingCharacter, "bot created"); v.Code != CodeOK {
		t.Fatalf("created→loading: %v", v)
	}
	if h.loads != 1 {
		t.Fatalf("SubmitLoad not called")
	}

	// Load not complete yet: guard refuses.
	if v := h.m.TransitionTo(InWorld, "premature"); v.Code != CodePreconditionFailed {
		t.Fatalf("expected precondition failure, got %v", v)
	}

	h.char = &CharView{GUID: guid.New(guid.KindPlayer, 1), InWorld: true, Alive: true}
	for i := 0; i < 4; i++ {
		h.m.Advance()
	}
	if h.m.Current() != Ready {
		t.Fatalf("expected READY, got %v (history %+v)", h.m.Current(), h.m.History())
	}
	if h.m.ReadyAtMS() != h.clock {
		t.Fatalf("ready timestamp not recorded")
	}

	// Full forward path in order.
	want := []State{LoadingCharacter, InWorld, CheckingGroup, ActivatingStrategies, Ready}
	hist := h.m.History()
	if len(hist) != len(want) {
		t.Fatalf("history length %d, want %d: %+v", len(hist), len(want), hist)
	}
	for i, e := range hist {
		if e.To != want[i] {
			t.Fatalf("history[%d].To = %v, want %v", i, e.To, want[i])
		}
	}
}

func TestGroupRecordedAtLogin(t *testing.T) {
	h := newHarness(t, Options{})
	h.aiInit = true
	leader := guid.New(guid.KindPlayer, 42)
	h.m.hooks.GroupLeader = func() guid.GUID { return leader }

	var joined []event.GroupJoined
	event.Subscribe(h.bus, func(e event.GroupJoined) { joined = append(joined, e) })

	h.char = &CharView{InWorld: true, Alive: true}
	h.m.TransitionTo(LoadingCharacter, "bot created")
	for i := 0; i < 4; i++ {
		h.m.Advance()
	}

	if !h.m.WasInGroupAtLogin() {
		t.Fatalf("wasInGroupAtLogin not set")
	}
	if h.m.LeaderGUID() != leader {
		t.Fatalf("leader guid: got %v want %v", h.m.LeaderGUID(), leader)
	}

	h.bus.SwapBuffers()
	h.bus.DispatchAll()
	if len(joined) != 1 {
		t.Fatalf("GROUP_JOINED emitted %d times, want 1", len(joined))
	}
	if joined[0].LeaderGUID != leader || !joined[0].AtLogin {
		t.Fatalf("bad GroupJoined payload: %+v", joined[0])
	}
}

func TestAlreadyInState(t *testing.T) {
	h := newHarness(t, Options{})
	if v := h.m.TransitionTo(Created, "noop"); v.Code != CodeAlreadyInState {
		t.Fatalf("expected ALREADY_IN_STATE, got %v", v)
	}
	if h.loads != 0 {
		t.Fatalf("no-op transition must not run OnEnter")
	}
}

func TestStrictRejectsOffTable(t *testing.T) {
	h := newHarness(t, Options{Mode: ModeStrict})
	if v := h.m.TransitionTo(Ready, "skip everything"); v.Code != CodeNoRule {
		t.Fatalf("expected NO_RULE, got %v", v)
	}
	if h.m.Current() != Created {
		t.Fatalf("state changed on rejected transition")
	}
}

func TestRelaxedAllowsOffTable(t *testing.T) {
	h := newHarness(t, Options{Mode: ModeRelaxed})
	if v := h.m.TransitionTo(Ready, "forced through"); v.Code != CodeOK {
		t.Fatalf("relaxed mode must allow, got %v", v)
	}
	if h.m.Current() != Ready {
		t.Fatalf("state not applied")
	}
}

func TestLoginTimeoutAtExactBudget(t *testing.T) {
	h := newHarness(t, Options{LoginBudget: 10 * time.Second})
	h.m.TransitionTo(LoadingCharacter, "bot created")

	h.clock += 9_999
	h.m.CheckTimeouts()
	if h.m.Current() != LoadingCharacter {
		t.Fatalf("timed out before the budget")
	}

	h.clock += 1 // exactly 10 s in state
	h.m.CheckTimeouts()
	if h.m.Current() != Failed {
		t.Fatalf("expected FAILED at exactly the budget, got %v", h.m.Current())
	}
	if h.m.FailReason() != "timeout" {
		t.Fatalf("fail reason: %q", h.m.FailReason())
	}
}

func TestStuckStateFailsOnStateBudget(t *testing.T) {
	h := newHarness(t, Options{StateBudget: 2 * time.Second, LoginBudget: 10 * time.Second})
	// Dead character: the IN_WORLD → CHECKING_GROUP guard refuses forever.
	h.char = &CharView{InWorld: true, Alive: false}
	h.m.TransitionTo(LoadingCharacter, "bot created")
	h.m.Advance()
	if h.m.Current() != InWorld {
		t.Fatalf("setup failed: %v", h.m.Current())
	}

	h.clock += 1_999
	h.m.CheckTimeouts()
	if h.m.Current() != InWorld {
		t.Fatalf("failed before the per-state budget, state %v", h.m.Current())
	}

	h.clock += 1 // exactly the per-state budget, well short of the login one
	h.m.CheckTimeouts()
	if h.m.Current() != Failed {
		t.Fatalf("expected FAILED at the state budget, got %v", h.m.Current())
	}
	if h.m.FailReason() != "stuck in IN_WORLD" {
		t.Fatalf("fail reason: %q", h.m.FailReason())
	}
}

func TestActivationBounceBeatsStateTimeout(t *testing.T) {
	h := newHarness(t, Options{StateBudget: 2 * time.Second})
	h.char = &CharView{InWorld: true, Alive: true}
	h.m.TransitionTo(LoadingCharacter, "bot created")
	for i := 0; i < 3; i++ {
		h.m.Advance()
	}
	if h.m.Current() != ActivatingStrategies {
		t.Fatalf("setup failed: %v", h.m.Current())
	}

	// The AI never reports initialized: at the budget the machine bounces to
	// CHECKING_GROUP instead of failing outright.
	h.clock += 2_000
	h.m.Advance()
	if h.m.Current() != CheckingGroup {
		t.Fatalf("expected bounce to CHECKING_GROUP, got %v", h.m.Current())
	}
}

func TestRetryBudget(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 3})
	h.m.TransitionTo(LoadingCharacter, "bot created")
	h.m.Fail("load error")

	for i := 0; i < 3; i++ {
		if v := h.m.TransitionTo(LoadingCharacter, "retry"); v.Code != CodeOK {
			t.Fatalf("retry %d refused: %v", i+1, v)
		}
		h.m.Fail("load error")
	}

	// Budget exhausted: retry denied, full reset allowed.
	if v := h.m.TransitionTo(LoadingCharacter, "retry"); v.Code != CodeRetryExhausted {
		t.Fatalf("expected RETRY_EXHAUSTED, got %v", v)
	}
	if v := h.m.TransitionTo(Created, "full reset"); v.Code != CodeOK {
		t.Fatalf("full reset refused: %v", v)
	}
	if h.m.Retries() != 0 {
		t.Fatalf("reset must clear the retry budget, got %d", h.m.Retries())
	}
}

func TestFullResetDeniedBeforeExhaustion(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 3})
	h.m.TransitionTo(LoadingCharacter, "bot created")
	h.m.Fail("load error")
	if v := h.m.TransitionTo(Created, "early reset"); v.Code != CodePreconditionFailed {
		t.Fatalf("expected precondition failure, got %v", v)
	}
}

func TestSoftReset(t *testing.T) {
	h := newHarness(t, Options{})
	h.aiInit = true
	h.char = &CharView{InWorld: true, Alive: true}
	h.m.TransitionTo(LoadingCharacter, "bot created")
	for i := 0; i < 4; i++ {
		h.m.Advance()
	}
	if h.m.Current() != Ready {
		t.Fatalf("setup failed: %v", h.m.Current())
	}
	if v := h.m.TransitionTo(InWorld, "soft reset"); v.Code != CodeOK {
		t.Fatalf("soft reset refused: %v", v)
	}
}

func TestCharacterRemovedFromReady(t *testing.T) {
	h := newHarness(t, Options{})
	h.aiInit = true
	h.char = &CharView{InWorld: true, Alive: true}
	h.m.TransitionTo(LoadingCharacter, "bot created")
	for i := 0; i < 4; i++ {
		h.m.Advance()
	}

	// Still in world: removal edge refused.
	if v := h.m.TransitionTo(Created, "removed"); v.Code != CodePreconditionFailed {
		t.Fatalf("expected refusal while in world, got %v", v)
	}

	h.char.InWorld = false
	if v := h.m.TransitionTo(Created, "removed"); v.Code != CodeOK {
		t.Fatalf("removal edge refused: %v", v)
	}
}

func TestGroupCheckStuckRetry(t *testing.T) {
	h := newHarness(t, Options{})
	h.char = &CharView{InWorld: true, Alive: true}
	h.m.TransitionTo(LoadingCharacter, "bot created")
	h.m.Advance() // → IN_WORLD
	h.m.TransitionTo(CheckingGroup, "verify")
	if h.m.Current() != CheckingGroup {
		t.Fatalf("setup failed: %v", h.m.Current())
	}

	// Refuse the retry edge while not stuck.
	if v := h.m.TransitionTo(InWorld, "manual retry"); v.Code != CodePreconditionFailed {
		t.Fatalf("expected refusal before stuck limit, got %v", v)
	}

	h.clock += 5_001
	h.m.CheckTimeouts()
	if h.m.Current() != InWorld {
		t.Fatalf("stuck group check must bounce to IN_WORLD, got %v", h.m.Current())
	}
}

func TestDeferredTransitionFromOnEnter(t *testing.T) {
	h := newHarness(t, Options{})
	// SubmitLoad (OnEnter of LOADING_CHARACTER) calls back into the machine.
	var deferred Validation
	h.m.hooks.SubmitLoad = func() {
		deferred = h.m.Fail("immediate load error")
	}
	if v := h.m.TransitionTo(LoadingCharacter, "bot created"); v.Code != CodeOK {
		t.Fatalf("outer transition refused: %v", v)
	}
	if deferred.Code != CodeDeferred {
		t.Fatalf("re-entrant transition must defer, got %v", deferred)
	}
	if h.m.Current() != LoadingCharacter {
		t.Fatalf("deferred intent applied too early")
	}

	h.m.Advance()
	if h.m.Current() != Failed {
		t.Fatalf("deferred intent not applied on advance, got %v", h.m.Current())
	}
}

func TestStateChangedEmissionOrder(t *testing.T) {
	h := newHarness(t, Options{})
	h.aiInit = true
	h.char = &CharView{InWorld: true, Alive: true}

	var got []event.StateChanged
	event.Subscribe(h.bus, func(e event.StateChanged) { got = append(got, e) })

	h.m.TransitionTo(LoadingCharacter, "bot created")
	for i := 0; i < 4; i++ {
		h.m.Advance()
	}
	h.bus.SwapBuffers()
	h.bus.DispatchAll()

	want := []string{"LOADING_CHARACTER", "IN_WORLD", "CHECKING_GROUP", "ACTIVATING_STRATEGIES", "READY"}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].To != want[i] {
			t.Fatalf("event[%d].To = %s, want %s", i, got[i].To, want[i])
		}
	}
}
