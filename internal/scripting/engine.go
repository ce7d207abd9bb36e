package scripting

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for scene tuning hooks.
// Single-goroutine access only (game loop). Every hook has a Go fallback,
// so a missing or broken script degrades behaviour instead of stopping
// the host.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
	rng *rand.Rand
}

// NewEngine creates a Lua engine and loads all scripts from the given directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log, rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}

	// Shared helpers first, then scene hooks
	for _, sub := range []string{"core", "scene"} {
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

// SpawnContext is handed to spawn_ball.
type SpawnContext struct {
	Index  int     // spawns so far, starting at 0
	Width  float64 // horizontal extent of the drop zone, centred on 0
	Height float64 // drop height
}

// SpawnPoint is where the next ball appears.
type SpawnPoint struct {
	X, Y, Z float64
}

// SpawnBall calls the Lua spawn_ball function. Without it, balls drop from
// Height at a uniformly random X within Width.
func (e *Engine) SpawnBall(ctx SpawnContext) SpawnPoint {
	fallback := SpawnPoint{X: (e.rng.Float64() - 0.5) * ctx.Width, Y: ctx.Height}

	fn := e.vm.GetGlobal("spawn_ball")
	if fn == lua.LNil {
		return fallback
	}

	t := e.vm.NewTable()
	t.RawSetString("index", lua.LNumber(ctx.Index))
	t.RawSetString("width", lua.LNumber(ctx.Width))
	t.RawSetString("height", lua.LNumber(ctx.Height))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua spawn_ball error", zap.Error(err))
		return fallback
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		e.log.Error("lua spawn_ball returned non-table")
		return fallback
	}

	return SpawnPoint{
		X: float64(lua.LVAsNumber(rt.RawGetString("x"))),
		Y: float64(lua.LVAsNumber(rt.RawGetString("y"))),
		Z: float64(lua.LVAsNumber(rt.RawGetString("z"))),
	}
}

// CounterLabel calls the Lua counter_label function for the trigger
// counter's text.
func (e *Engine) CounterLabel(count int) string {
	fallback := fmt.Sprintf("Ball count: %d", count)

	fn := e.vm.GetGlobal("counter_label")
	if fn == lua.LNil {
		return fallback
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(count)); err != nil {
		e.log.Error("lua counter_label error", zap.Error(err))
		return fallback
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	s, ok := result.(lua.LString)
	if !ok {
		e.log.Error("lua counter_label returned non-string")
		return fallback
	}
	return string(s)
}

func (e *Engine) Close() {
	e.vm.Close()
}
