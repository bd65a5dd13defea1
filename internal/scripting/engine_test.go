package scripting

import (
	"testing"

	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, script string) *Engine {
	t.Helper()
	e, err := NewEngine(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(e.Close)
	if script != "" {
		if err := e.DoString(script); err != nil {
			t.Fatalf("load script: %v", err)
		}
	}
	return e
}

const testStrategy = `
function decide_strategy(ctx)
    if ctx.hp_pct < 0.3 then
        return { action = "flee", priority = 245 }
    end
    if ctx.in_group and not ctx.is_leader then
        return { action = "follow", priority = 120, range = 3.0 }
    end
    if ctx.has_target and ctx.target_distance < 30 then
        return { action = "grind", priority = 140, range = 5.0 }
    end
    return { action = "idle", priority = 20 }
end
`

func TestDecideStrategy(t *testing.T) {
	e := newTestEngine(t, testStrategy)

	cases := []struct {
		name string
		ctx  StrategyContext
		want Decision
	}{
		{"low hp flees", StrategyContext{HPPercent: 0.2}, Decision{Action: "flee", Priority: 245}},
		{"group member follows", StrategyContext{HPPercent: 0.9, InGroup: true}, Decision{Action: "follow", Priority: 120, Range: 3.0}},
		{"target in range grinds", StrategyContext{HPPercent: 0.9, HasTarget: true, TargetDistance: 12}, Decision{Action: "grind", Priority: 140, Range: 5.0}},
		{"nothing to do idles", StrategyContext{HPPercent: 1.0}, Decision{Action: "idle", Priority: 20}},
	}
	for _, c := range cases {
		if got := e.DecideStrategy(c.ctx); got != c.want {
			t.Fatalf("%s: got %+v, want %+v", c.name, got, c.want)
		}
	}
}

func TestScriptErrorFallsBack(t *testing.T) {
	e := newTestEngine(t, `
function decide_strategy(ctx)
    error("tuning table missing")
end
`)
	if got := e.DecideStrategy(StrategyContext{}); got != fallback {
		t.Fatalf("script error must fall back to idle, got %+v", got)
	}
}

func TestMissingFunctionFallsBack(t *testing.T) {
	e := newTestEngine(t, "")
	if got := e.DecideStrategy(StrategyContext{}); got != fallback {
		t.Fatalf("missing function must fall back, got %+v", got)
	}
}

func TestPriorityClamped(t *testing.T) {
	e := newTestEngine(t, `
function decide_strategy(ctx)
    return { action = "grind", priority = 9000 }
end
`)
	if got := e.DecideStrategy(StrategyContext{}); got.Priority != 255 {
		t.Fatalf("priority must clamp to 255, got %d", got.Priority)
	}
}

func TestNonTableReturnFallsBack(t *testing.T) {
	e := newTestEngine(t, `
function decide_strategy(ctx)
    return 42
end
`)
	if got := e.DecideStrategy(StrategyContext{}); got != fallback {
		t.Fatalf("non-table return must fall back, got %+v", got)
	}
}
