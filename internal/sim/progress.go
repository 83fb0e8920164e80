package sim

import (
	"time"

	"github.com/elementia/worldsim/internal/persist"
	"github.com/google/uuid"
)

// Progress is the simulation state carried across passes and restarts.
type Progress struct {
	Step      uint64 // completed passes
	Divisions int
	Radius    int
	RunID     string // process run that last wrote this progress
}

// NewProgress starts a fresh simulation at step 0.
func NewProgress(divisions, radius int) Progress {
	return Progress{
		Divisions: divisions,
		Radius:    radius,
		RunID:     uuid.NewString(),
	}
}

func progressFromRow(row *persist.ProgressRow) Progress {
	return Progress{
		Step:      row.Step,
		Divisions: row.Divisions,
		Radius:    row.Radius,
		RunID:     row.RunID,
	}
}

func (p Progress) row() *persist.ProgressRow {
	return &persist.ProgressRow{
		Step:      p.Step,
		Divisions: p.Divisions,
		Radius:    p.Radius,
		RunID:     p.RunID,
		UpdatedAt: time.Now().UTC(),
	}
}
