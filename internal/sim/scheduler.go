package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elementia/worldsim/internal/core/event"
	"github.com/elementia/worldsim/internal/persist"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSchedulerRunning = errors.New("scheduler already started")
	// ErrPersistProgress wraps a failed progress save. The scheduler halts
	// with the in-memory step left at the last persisted value.
	ErrPersistProgress = errors.New("persist simulation progress")
)

// State is the scheduler lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDividing
	StateAwaitingDivisions
	StateAdvancing
	StateStopped // aborted
	StateFailed  // halted on a division or persistence error
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDividing:
		return "dividing"
	case StateAwaitingDivisions:
		return "awaiting_divisions"
	case StateAdvancing:
		return "advancing"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// TileCache is what the scheduler needs from the area cache.
type TileCache interface {
	Resolver
	Flush(ctx context.Context) (saved, failed int, err error)
}

type SchedulerOptions struct {
	Root         string // storage root for progress
	Progress     persist.ProgressStore
	Cache        TileCache
	Width        int // world extent in cells
	Height       int
	Divisions    int // used when no progress was saved yet
	Radius       int
	Stagger      bool
	Rule         Rule
	LegacyGather bool
	PassInterval time.Duration
	Bus          *event.Bus
	Log          *zap.Logger
}

// Scheduler runs diffusion passes over the whole world until aborted. Each
// pass fans out one AreaSimulator per division, joins them, then persists
// the advanced step counter.
type Scheduler struct {
	opts SchedulerOptions
	sim  *AreaSimulator
	log  *zap.Logger

	state      atomic.Int32
	started    atomic.Bool
	checkpoint atomic.Bool

	mu       sync.Mutex // guards progress, err, cancel, aborted and halted
	progress Progress
	err      error
	cancel   context.CancelFunc
	aborted  bool
	halted   bool // loop has ended; checkpoints flush directly

	done chan struct{}
}

func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Progress == nil || opts.Cache == nil {
		return nil, fmt.Errorf("scheduler needs a progress store and a cache")
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	g := Geometry{Width: opts.Width, Height: opts.Height, Radius: opts.Radius, Stagger: opts.Stagger}
	if err := g.Validate(opts.Divisions); err != nil {
		return nil, err
	}
	return &Scheduler{
		opts: opts,
		sim:  NewAreaSimulator(opts.Cache, opts.Rule, opts.LegacyGather),
		log:  opts.Log,
		done: make(chan struct{}),
	}, nil
}

// Start loads saved progress (or begins at step 0) and launches the pass
// loop. The loop ends when ctx is cancelled, Abort is called, or a pass
// fails.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSchedulerRunning
	}
	p, err := s.loadProgress(ctx)
	if err != nil {
		s.fail(err)
		s.halt()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.progress = p
	s.cancel = cancel
	if s.aborted {
		cancel()
	}
	s.mu.Unlock()
	s.setState(StateRunning)
	s.log.Info("simulation started",
		zap.Uint64("step", p.Step),
		zap.Int("divisions", p.Divisions),
		zap.Int("radius", p.Radius),
		zap.String("run_id", p.RunID))

	go func() {
		defer cancel()
		s.loop(runCtx)
	}()
	return nil
}

func (s *Scheduler) loadProgress(ctx context.Context) (Progress, error) {
	row, err := s.opts.Progress.LoadProgress(ctx, s.opts.Root)
	if err != nil {
		return Progress{}, fmt.Errorf("load progress: %w", err)
	}
	if row == nil {
		return NewProgress(s.opts.Divisions, s.opts.Radius), nil
	}

	p := progressFromRow(row)
	if p.Divisions <= 0 {
		p.Divisions = s.opts.Divisions
	}
	if p.Radius <= 0 {
		p.Radius = s.opts.Radius
	}
	if p.Divisions != s.opts.Divisions || p.Radius != s.opts.Radius {
		s.log.Warn("saved progress overrides configured geometry",
			zap.Int("divisions", p.Divisions), zap.Int("radius", p.Radius))
	}
	if err := s.geometry(p).Validate(p.Divisions); err != nil {
		return Progress{}, fmt.Errorf("saved progress: %w", err)
	}
	s.log.Info("resuming simulation", zap.String("previous_run_id", p.RunID))
	p.RunID = uuid.NewString()
	return p, nil
}

func (s *Scheduler) geometry(p Progress) Geometry {
	return Geometry{Width: s.opts.Width, Height: s.opts.Height, Radius: p.Radius, Stagger: s.opts.Stagger}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.halt()

	for {
		if ctx.Err() != nil {
			s.stop()
			return
		}
		if err := s.pass(ctx); err != nil {
			if ctx.Err() != nil && !errors.Is(err, ErrPersistProgress) {
				s.stop()
				return
			}
			s.fail(err)
			return
		}
		s.maybeCheckpoint(ctx)

		select {
		case <-ctx.Done():
			s.stop()
			return
		case <-time.After(s.opts.PassInterval):
		}
	}
}

// pass runs one sweep over all divisions and advances the step counter.
// The counter only moves after the new value was saved.
func (s *Scheduler) pass(ctx context.Context) error {
	p := s.Progress()
	g := s.geometry(p)
	start := time.Now()

	s.setState(StateDividing)
	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < p.Divisions; i++ {
		d := Partition(i, p.Divisions, p.Step, g)
		eg.Go(func() error {
			cells, err := s.sim.Run(egCtx, d)
			if err != nil {
				return err
			}
			s.log.Debug("division done",
				zap.Int("division", d.Index),
				zap.Uint64("step", p.Step),
				zap.Int("cells", cells))
			return nil
		})
	}

	s.setState(StateAwaitingDivisions)
	if err := eg.Wait(); err != nil {
		if ctx.Err() == nil {
			event.Emit(s.opts.Bus, event.PassFailed{Step: p.Step, Err: err})
			s.log.Error("simulation pass failed", zap.Uint64("step", p.Step), zap.Error(err))
		}
		return fmt.Errorf("pass %d: %w", p.Step, err)
	}

	s.setState(StateAdvancing)
	next := p
	next.Step++
	if err := s.opts.Progress.SaveProgress(context.WithoutCancel(ctx), s.opts.Root, next.row()); err != nil {
		event.Emit(s.opts.Bus, event.ProgressPersistFailed{Step: next.Step, Err: err})
		s.log.Error("save progress failed, halting simulation", zap.Uint64("step", next.Step), zap.Error(err))
		return fmt.Errorf("%w: step %d: %w", ErrPersistProgress, next.Step, err)
	}

	s.mu.Lock()
	s.progress = next
	s.mu.Unlock()

	elapsed := time.Since(start)
	event.Emit(s.opts.Bus, event.PassCompleted{Step: next.Step, Divisions: p.Divisions, Elapsed: elapsed})
	s.log.Debug("pass completed", zap.Uint64("step", next.Step), zap.Duration("elapsed", elapsed))
	s.setState(StateRunning)
	return nil
}

// maybeCheckpoint saves dirty tiles when a checkpoint was requested. It runs
// between passes so no division is writing while tiles are encoded.
func (s *Scheduler) maybeCheckpoint(ctx context.Context) {
	if !s.checkpoint.Swap(false) {
		return
	}
	s.flushTiles(ctx)
}

func (s *Scheduler) flushTiles(ctx context.Context) {
	saved, failed, err := s.opts.Cache.Flush(context.WithoutCancel(ctx))
	if err != nil {
		s.log.Warn("checkpoint incomplete", zap.Int("saved", saved), zap.Int("failed", failed), zap.Error(err))
		return
	}
	s.log.Info("checkpoint saved", zap.Int("areas", saved), zap.Uint64("step", s.Progress().Step))
}

// RequestCheckpoint asks the loop to flush dirty tiles at the next pass
// boundary. Once the loop has ended the flush runs on the caller.
func (s *Scheduler) RequestCheckpoint() {
	s.mu.Lock()
	halted := s.halted
	if !halted {
		s.checkpoint.Store(true)
	}
	s.mu.Unlock()
	if halted {
		s.flushTiles(context.Background())
	}
}

// halt marks the loop as ended, runs a checkpoint requested during the last
// pass and releases Wait.
func (s *Scheduler) halt() {
	s.mu.Lock()
	s.halted = true
	s.mu.Unlock()
	s.maybeCheckpoint(context.Background())
	close(s.done)
}

// Abort stops the loop. A pass whose divisions have not all finished is
// abandoned and its step is not persisted. Safe to call more than once. An
// abort before Start makes the loop stop before its first pass.
func (s *Scheduler) Abort() {
	s.mu.Lock()
	s.aborted = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the loop has ended and returns the error that halted
// it, or nil after an abort. It must not be called before Start.
func (s *Scheduler) Wait() error {
	<-s.done
	return s.Err()
}

// Done is closed when the loop has ended.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Progress returns the last persisted progress.
func (s *Scheduler) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *Scheduler) State() State { return State(s.state.Load()) }

func (s *Scheduler) setState(st State) { s.state.Store(int32(st)) }

func (s *Scheduler) stop() {
	s.setState(StateStopped)
	s.log.Info("simulation stopped", zap.Uint64("step", s.Progress().Step))
}

func (s *Scheduler) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.setState(StateFailed)
}
