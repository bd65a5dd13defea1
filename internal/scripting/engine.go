// Package scripting hosts the Lua strategy brain. Numeric tuning and
// per-class decision logic live in scripts so designers can retune bots
// without a rebuild.
package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM. Bot AIs tick on worker goroutines,
// so every VM call is serialized behind the engine mutex.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	for _, sub := range []string{"core", "ai", "class"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}

	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// DoString loads an inline script chunk. Used by tests and the REPL.
func (e *Engine) DoString(src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vm.DoString(src)
}

// Close releases the VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}

// StrategyContext is the pre-packed view of one bot handed to Lua.
type StrategyContext struct {
	ClassID        int
	Level          int
	HPPercent      float64 // 0..1
	InGroup        bool
	IsLeader       bool
	HasTarget      bool
	TargetDistance float64 // yards, valid when HasTarget
	GroupSize      int
}

// Decision is what the Lua decide_strategy function returns.
type Decision struct {
	Action   string  // "idle", "grind", "follow", "flee", "rest"
	Priority int     // movement priority byte, 0..255
	Range    float64 // follow distance / engage range
}

// fallback keeps a bot harmlessly idle when scripting misbehaves.
var fallback = Decision{Action: "idle", Priority: 10}

// DecideStrategy calls the Lua decide_strategy function. Script errors are
// isolated: the bot falls back to idling instead of taking the tick down.
func (e *Engine) DecideStrategy(ctx StrategyContext) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal("decide_strategy")
	if fn == lua.LNil {
		e.log.Error("lua function decide_strategy not found")
		return fallback
	}

	t := e.vm.NewTable()
	t.RawSetString("class_id", lua.LNumber(ctx.ClassID))
	t.RawSetString("level", lua.LNumber(ctx.Level))
	t.RawSetString("hp_pct", lua.LNumber(ctx.HPPercent))
	t.RawSetString("in_group", lua.LBool(ctx.InGroup))
	t.RawSetString("is_leader", lua.LBool(ctx.IsLeader))
	t.RawSetString("has_target", lua.LBool(ctx.HasTarget))
	t.RawSetString("target_distance", lua.LNumber(ctx.TargetDistance))
	t.RawSetString("group_size", lua.LNumber(ctx.GroupSize))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua decide_strategy error", zap.Error(err))
		return fallback
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		e.log.Error("lua decide_strategy returned non-table")
		return fallback
	}

	d := Decision{
		Action:   lua.LVAsString(rt.RawGetString("action")),
		Priority: int(lua.LVAsNumber(rt.RawGetString("priority"))),
		Range:    float64(lua.LVAsNumber(rt.RawGetString("range"))),
	}
	if d.Action == "" {
		return fallback
	}
	if d.Priority < 0 {
		d.Priority = 0
	}
	if d.Priority > 255 {
		d.Priority = 255
	}
	return d
}
