package system

import (
	"time"

	"github.com/elementia/worldsim/internal/core/event"
	coresys "github.com/elementia/worldsim/internal/core/system"
	"go.uber.org/zap"
)

// MonitorCounts totals the events a MonitorSystem has seen.
type MonitorCounts struct {
	LoaderFailures  int
	PassesCompleted int
	PassesFailed    int
	PersistFailures int
	TilesSaved      int
	TilesFailed     int
}

// MonitorSystem drains the event bus each tick and reports failures of the
// loader and the scheduler. Phase 0 (Events).
type MonitorSystem struct {
	bus    *event.Bus
	log    *zap.Logger
	counts MonitorCounts
}

func NewMonitorSystem(bus *event.Bus, log *zap.Logger) *MonitorSystem {
	s := &MonitorSystem{bus: bus, log: log}

	event.Subscribe(bus, func(e event.LoaderFailed) {
		s.counts.LoaderFailures++
		keys := make([]string, len(e.Pending))
		for i, k := range e.Pending {
			keys[i] = k.String()
		}
		s.log.Error("area loader stopped, areas stay pending",
			zap.Int("worker", e.Worker), zap.Strings("pending", keys), zap.Error(e.Err))
	})
	event.Subscribe(bus, func(e event.PassCompleted) {
		s.counts.PassesCompleted++
	})
	event.Subscribe(bus, func(e event.PassFailed) {
		s.counts.PassesFailed++
		s.log.Error("simulation halted", zap.Uint64("step", e.Step), zap.Error(e.Err))
	})
	event.Subscribe(bus, func(e event.ProgressPersistFailed) {
		s.counts.PersistFailures++
		s.log.Error("simulation halted, progress not saved", zap.Uint64("step", e.Step), zap.Error(e.Err))
	})
	event.Subscribe(bus, func(e event.TilesFlushed) {
		s.counts.TilesSaved += e.Saved
		s.counts.TilesFailed += e.Failed
		if e.Failed > 0 {
			s.log.Warn("tile save incomplete", zap.Int("saved", e.Saved), zap.Int("failed", e.Failed))
		}
	})
	return s
}

func (s *MonitorSystem) Phase() coresys.Phase { return coresys.PhaseEvents }

func (s *MonitorSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}

// Counts is only safe to read from the goroutine that ticks the runner.
func (s *MonitorSystem) Counts() MonitorCounts { return s.counts }
