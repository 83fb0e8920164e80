package persist

import (
	"context"
	"errors"
	"time"

	"github.com/elementia/worldsim/internal/area"
)

// ErrTileNotFound is returned by TileStore.LoadTile when no data was ever
// saved for the area.
var ErrTileNotFound = errors.New("tile not found")

// TileStore loads and saves encoded area data keyed by area coordinate and a
// storage root. The byte format is opaque to the store.
type TileStore interface {
	LoadTile(ctx context.Context, key area.Key, root string) ([]byte, error)
	SaveTile(ctx context.Context, key area.Key, root string, data []byte) error
}

// TileLister enumerates saved tiles. Used by offline tools.
type TileLister interface {
	ListTiles(ctx context.Context, root string) ([]area.Key, error)
}

// ProgressRow is the persisted simulation progress of one world.
type ProgressRow struct {
	Step      uint64    `yaml:"step"`
	Divisions int       `yaml:"divisions"`
	Radius    int       `yaml:"radius"`
	RunID     string    `yaml:"run_id"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// ProgressStore loads and saves simulation progress. LoadProgress returns
// (nil, nil) when nothing was saved yet.
type ProgressStore interface {
	LoadProgress(ctx context.Context, root string) (*ProgressRow, error)
	SaveProgress(ctx context.Context, root string, row *ProgressRow) error
}
