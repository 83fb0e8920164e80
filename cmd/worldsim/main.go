package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/elementia/worldsim/internal/area"
	"github.com/elementia/worldsim/internal/config"
	"github.com/elementia/worldsim/internal/core/event"
	coresys "github.com/elementia/worldsim/internal/core/system"
	"github.com/elementia/worldsim/internal/data"
	"github.com/elementia/worldsim/internal/persist"
	"github.com/elementia/worldsim/internal/scripting"
	"github.com/elementia/worldsim/internal/sim"
	"github.com/elementia/worldsim/internal/system"
	"github.com/elementia/worldsim/internal/terrain"
	"github.com/elementia/worldsim/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

var numbers = message.NewPrinter(language.English)

func printBanner(worldName string, seed int64) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             worldsim  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      tiled world cache · water diffusion  \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mWorld:\033[0m %s \033[90m(seed: %d)\033[0m\n\n", worldName, seed)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := numbers.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main process logic ────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/worldsim.toml"
	if p := os.Getenv("WORLDSIM_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// 3. Load world geometry
	idx, err := data.LoadWorldIndex(cfg.World.IndexPath)
	if err != nil {
		return fmt.Errorf("world index: %w", err)
	}
	if cfg.World.AreaDimensions > 0 {
		idx.AreaDimensions = cfg.World.AreaDimensions
	}
	if err := cfg.Validate(idx.AreaDimensions, idx.Width); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	printBanner(idx.Name, idx.Seed)
	printSection("World")
	printStat("Width (cells)", idx.Width)
	printStat("Height (cells)", idx.Height)
	printStat("Area dimensions", idx.AreaDimensions)
	printStat("Areas", idx.AreaCount())
	fmt.Println()

	// 4. Open storage
	printSection("Storage")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend, err := persist.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer backend.Close()
	printOK(fmt.Sprintf("%s backend ready (root %s)", backend.Name, backend.Root))

	codec, err := area.NewCodec(cfg.Storage.CompressionLevel)
	if err != nil {
		return fmt.Errorf("tile codec: %w", err)
	}
	defer codec.Close()

	gen, closeGen, err := newGenerator(cfg, idx.Seed, log)
	if err != nil {
		return fmt.Errorf("terrain generator: %w", err)
	}
	defer closeGen()
	printOK(fmt.Sprintf("terrain generator: %s", cfg.World.Generator))
	fmt.Println()

	// 5. Create the area cache
	bus := event.NewBus()
	cache, err := world.NewCache(world.Options{
		Dim:               idx.AreaDimensions,
		Root:              backend.Root,
		Tiles:             backend.Tiles,
		Codec:             codec,
		Generator:         gen,
		Workers:           cfg.Loader.Workers,
		QueueSize:         cfg.Loader.QueueSize,
		MaxLoadsPerSecond: cfg.Loader.MaxLoadsPerSecond,
		Bus:               bus,
		Log:               log.Named("cache"),
	})
	if err != nil {
		return fmt.Errorf("area cache: %w", err)
	}
	defer cache.Close()

	// 6. Create systems and register with runner
	runner := coresys.NewRunner()
	runner.Register(system.NewMonitorSystem(bus, log.Named("monitor")))

	var sched *sim.Scheduler
	var checkpoint system.Checkpointer = system.FlushCheckpointer{
		Cache:   cache,
		Timeout: cfg.Runtime.ShutdownTimeout,
		Log:     log,
	}
	var progress system.ProgressSource
	if cfg.Simulation.Enabled {
		sched, err = newScheduler(cfg, idx, backend, cache, bus, log.Named("sim"))
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		checkpoint = sched
		progress = sched
	}
	runner.Register(system.NewCheckpointSystem(checkpoint, cfg.Checkpoint.IntervalTicks))
	stats := system.NewStatsSystem(cache, progress, log.Named("stats"), cfg.Runtime.StatsIntervalTicks)
	runner.Register(stats)

	// 7. Start the simulation
	printSection("Ready")
	var schedDone <-chan struct{}
	if sched != nil {
		if err := sched.Start(context.Background()); err != nil {
			return fmt.Errorf("start simulation: %w", err)
		}
		schedDone = sched.Done()
		p := sched.Progress()
		printReady(fmt.Sprintf("simulation from step %s (%d divisions, radius %d)",
			numbers.Sprintf("%d", p.Step), p.Divisions, p.Radius))
	} else {
		printReady("simulation disabled")
	}

	// 8. Host loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Runtime.TickRate)
	defer ticker.Stop()
	printReady(fmt.Sprintf("host loop started (tick: %s)", cfg.Runtime.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Runtime.TickRate)
		case <-schedDone:
			// The process keeps serving the cache; only the simulation halted.
			schedDone = nil
			if err := sched.Err(); err != nil {
				log.Error("simulation halted", zap.Stringer("state", sched.State()), zap.Error(err))
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			shutdown(cfg, sched, cache, runner, stats, log)
			log.Info("stopped")
			return nil
		}
	}
}

// shutdown stops the simulation at a pass boundary and saves dirty tiles.
func shutdown(cfg *config.Config, sched *sim.Scheduler, cache *world.Cache, runner *coresys.Runner, stats *system.StatsSystem, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Runtime.ShutdownTimeout)
	defer cancel()

	if sched != nil {
		sched.Abort()
		select {
		case <-sched.Done():
		case <-ctx.Done():
			log.Warn("simulation did not stop in time")
		}
	}

	saved, failed, err := cache.Flush(ctx)
	if err != nil {
		log.Error("final tile save incomplete", zap.Int("saved", saved), zap.Int("failed", failed), zap.Error(err))
	} else {
		log.Info("tiles saved", zap.Int("areas", saved))
	}
	runner.TickPhase(coresys.PhaseEvents, 0)
	stats.Report()
}

func newGenerator(cfg *config.Config, seed int64, log *zap.Logger) (terrain.Generator, func(), error) {
	if cfg.World.Generator == "lua" {
		eng, err := scripting.NewEngine(cfg.Scripting.Dir, seed, log.Named("lua"))
		if err != nil {
			return nil, nil, err
		}
		return eng, eng.Close, nil
	}
	gen, err := terrain.Named(cfg.World.Generator, seed)
	if err != nil {
		return nil, nil, err
	}
	return gen, func() {}, nil
}

func newScheduler(cfg *config.Config, idx *data.WorldIndex, backend *persist.Backend, cache *world.Cache, bus *event.Bus, log *zap.Logger) (*sim.Scheduler, error) {
	s := cfg.Simulation
	overflow, err := sim.ParseOverflow(s.Overflow)
	if err != nil {
		return nil, err
	}
	return sim.NewScheduler(sim.SchedulerOptions{
		Root:         backend.Root,
		Progress:     backend.Progress,
		Cache:        cache,
		Width:        idx.Width,
		Height:       idx.Height,
		Divisions:    s.DivisionCount,
		Radius:       s.Radius,
		Stagger:      s.Stagger,
		Rule:         sim.Rule{Overflow: overflow, LegacyHeight: s.LegacyHeight},
		LegacyGather: s.LegacyGather,
		PassInterval: s.PassInterval,
		Bus:          bus,
		Log:          log,
	})
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
