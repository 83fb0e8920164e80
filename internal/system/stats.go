package system

import (
	"time"

	"github.com/dustin/go-humanize"
	coresys "github.com/elementia/worldsim/internal/core/system"
	"github.com/elementia/worldsim/internal/sim"
	"github.com/elementia/worldsim/internal/world"
	"go.uber.org/zap"
)

// StatsSource is implemented by *world.Cache.
type StatsSource interface {
	Stats() world.Stats
}

// ProgressSource is implemented by *sim.Scheduler.
type ProgressSource interface {
	Progress() sim.Progress
	State() sim.State
}

// StatsSystem logs cache and simulation figures every N ticks. Phase 3
// (Report).
type StatsSystem struct {
	cache     StatsSource
	sched     ProgressSource // nil when the simulation is disabled
	log       *zap.Logger
	tickCount int
	interval  int
	last      world.Stats
}

func NewStatsSystem(cache StatsSource, sched ProgressSource, log *zap.Logger, intervalTicks int) *StatsSystem {
	return &StatsSystem{cache: cache, sched: sched, log: log, interval: intervalTicks}
}

func (s *StatsSystem) Phase() coresys.Phase { return coresys.PhaseReport }

func (s *StatsSystem) Update(_ time.Duration) {
	if s.interval <= 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.Report()
}

// Report logs the current figures immediately.
func (s *StatsSystem) Report() {
	st := s.cache.Stats()
	fields := []zap.Field{
		zap.Int("areas", st.Areas),
		zap.Int("pending", st.Pending),
		zap.Int("dirty", st.Dirty),
		zap.String("memory", humanize.Bytes(st.Bytes)),
		zap.Uint64("loads", st.Loads-s.last.Loads),
		zap.Uint64("generated", st.Generated-s.last.Generated),
		zap.Uint64("resolves", st.Resolves-s.last.Resolves),
		zap.Int("live_loaders", st.LiveLoaders),
	}
	if s.sched != nil {
		fields = append(fields,
			zap.Uint64("step", s.sched.Progress().Step),
			zap.Stringer("sim_state", s.sched.State()))
	}
	s.last = st
	s.log.Info("world stats", fields...)
}
