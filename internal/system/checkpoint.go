package system

import (
	"context"
	"time"

	coresys "github.com/elementia/worldsim/internal/core/system"
	"go.uber.org/zap"
)

// Checkpointer saves dirty tiles on request. *sim.Scheduler defers the save
// to its next pass boundary; FlushCheckpointer saves right away.
type Checkpointer interface {
	RequestCheckpoint()
}

// CheckpointSystem requests a tile save every N ticks. Phase 2 (Persist).
type CheckpointSystem struct {
	target    Checkpointer
	tickCount int
	interval  int
}

func NewCheckpointSystem(target Checkpointer, intervalTicks int) *CheckpointSystem {
	return &CheckpointSystem{target: target, interval: intervalTicks}
}

func (s *CheckpointSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *CheckpointSystem) Update(_ time.Duration) {
	if s.interval <= 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.target.RequestCheckpoint()
}

// Flusher is implemented by *world.Cache.
type Flusher interface {
	Flush(ctx context.Context) (saved, failed int, err error)
}

// FlushCheckpointer saves tiles synchronously. Used when no scheduler is
// running to coordinate with.
type FlushCheckpointer struct {
	Cache   Flusher
	Timeout time.Duration
	Log     *zap.Logger
}

func (f FlushCheckpointer) RequestCheckpoint() {
	ctx := context.Background()
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	saved, failed, err := f.Cache.Flush(ctx)
	if err != nil {
		f.Log.Warn("checkpoint incomplete", zap.Int("saved", saved), zap.Int("failed", failed), zap.Error(err))
		return
	}
	if saved > 0 {
		f.Log.Info("checkpoint saved", zap.Int("areas", saved))
	}
}
