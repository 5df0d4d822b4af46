package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM loaded with every script in a
// directory. Single-goroutine access only — a ScriptedSystem that holds one
// must run thread-local (spec.md §4.7's AddThreadLocal), since gopher-lua's
// LState is not safe for concurrent calls.
//
// Grounded on the teacher's Engine (internal/scripting/engine.go):
// SkipOpenLibs false, an API_VERSION global, a loadDir walking .lua files
// with DoFile, zap logging on load and on protected-call failure. The
// teacher's dozens of CalcXxx/GetXxx combat-formula bridge methods are
// replaced by one generic CallEntity bridge that any script-driven system
// can use against any Lua global function, rather than one Go method per
// named Lua function.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads every .lua file directly under
// scriptsDir (non-recursive — scripts organize by filename, not by the
// teacher's fixed core/combat/item/character/skill/world/ai subdirectories,
// since a generic host has no fixed set of script categories).
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	e.registerHostFunctions()

	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	return e, nil
}

// registerHostFunctions exposes a small set of Go callbacks to scripts,
// e.g. so a script can log through the host's zap logger rather than
// Lua's own print. Grounded on the teacher's zap.Error/zap.String logging
// at every Lua call site, made callable the other direction.
func (e *Engine) registerHostFunctions() {
	e.vm.SetGlobal("host_log", e.vm.NewFunction(func(l *lua.LState) int {
		msg := l.ToString(1)
		e.log.Info("lua", zap.String("message", msg))
		return 0
	}))
}

// loadDir loads all .lua files directly in dir, skipping a missing
// directory rather than erroring — scripting is optional, gated on
// config.ScriptingConfig.Enabled.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
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

// HasFunction reports whether a global of that name is set to any non-nil
// Lua value; it does not check that the value is a function.
func (e *Engine) HasFunction(name string) bool {
	return e.vm.GetGlobal(name) != lua.LNil
}

// CallEntity invokes the named Lua global as fn(vars) -> vars, passing a
// table built from in and reading the returned table back into a fresh
// map, exactly the teacher's "build a table, protected CallByParam, read
// the return table" shape generalized from one Go struct per formula to a
// single map[string]float64 blackboard any script-driven system can use.
// Returns (in, false) unchanged if the function is missing or the call
// errors, matching the teacher's own "return a safe default on failure"
// convention.
func (e *Engine) CallEntity(fn string, in map[string]float64) (map[string]float64, bool) {
	f := e.vm.GetGlobal(fn)
	if f == lua.LNil {
		e.log.Error("lua function not found", zap.String("name", fn))
		return in, false
	}

	t := e.vm.NewTable()
	for k, v := range in {
		t.RawSetString(k, lua.LNumber(v))
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      f,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua call error", zap.String("func", fn), zap.Error(err))
		return in, false
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		e.log.Error("lua function returned non-table", zap.String("func", fn))
		return in, false
	}

	out := make(map[string]float64, rt.Len())
	rt.ForEach(func(k, v lua.LValue) {
		if key, ok := k.(lua.LString); ok {
			out[string(key)] = float64(lua.LVAsNumber(v))
		}
	})
	return out, true
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
