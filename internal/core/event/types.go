package event

import (
	"time"

	"github.com/elementia/worldsim/internal/area"
)

// LoaderFailed reports a fail-stopped loader worker. The areas of its batch
// stay pending.
type LoaderFailed struct {
	Worker  int
	Pending []area.Key
	Err     error
}

// PassCompleted is emitted after a pass's progress was persisted.
type PassCompleted struct {
	Step      uint64
	Divisions int
	Elapsed   time.Duration
}

// PassFailed reports a pass whose divisions did not all finish; the step
// counter was not advanced.
type PassFailed struct {
	Step uint64
	Err  error
}

// ProgressPersistFailed reports that saving progress failed and the
// scheduler halted.
type ProgressPersistFailed struct {
	Step uint64
	Err  error
}

// TilesFlushed reports an explicit tile save.
type TilesFlushed struct {
	Saved  int
	Failed int
}
