package scripting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/elementia/worldsim/internal/area"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

const generateFunc = "generate_cell"

// Engine wraps a single gopher-lua VM. The VM is not goroutine-safe, so every
// call is serialized through mu.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory: core/ first, then terrain/.
func NewEngine(scriptsDir string, seed int64, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	vm.SetGlobal("WORLD_SEED", lua.LNumber(seed))

	e := &Engine{vm: vm, log: log}

	for _, sub := range []string{"core", "terrain"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}
	if vm.GetGlobal(generateFunc) == lua.LNil {
		vm.Close()
		return nil, fmt.Errorf("lua function %s not defined in %s", generateFunc, scriptsDir)
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

// Generate fills s by calling generate_cell(world_x, world_y) for every cell.
// The function returns height, water and noise; missing or non-numeric
// results count as zero and values are clamped to each layer's range.
func (e *Engine) Generate(s *area.Store) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal(generateFunc)
	ox := s.Key.X * s.Dim
	oy := s.Key.Y * s.Dim
	for y := 0; y < s.Dim; y++ {
		for x := 0; x < s.Dim; x++ {
			err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 3, Protect: true},
				lua.LNumber(ox+x), lua.LNumber(oy+y))
			if err != nil {
				return fmt.Errorf("%s(%d, %d): %w", generateFunc, ox+x, oy+y, err)
			}
			h := e.vm.Get(-3)
			w := e.vm.Get(-2)
			n := e.vm.Get(-1)
			e.vm.Pop(3)

			i := x + y*s.Dim
			s.Height[i] = uint16(clamp(lua.LVAsNumber(h), 0, math.MaxUint16))
			s.Water[i] = uint8(clamp(lua.LVAsNumber(w), 0, math.MaxUint8))
			s.Noise[i] = int32(clamp(lua.LVAsNumber(n), math.MinInt32, math.MaxInt32))
		}
	}
	return nil
}

func clamp(v lua.LNumber, lo, hi float64) float64 {
	f := float64(v)
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}
