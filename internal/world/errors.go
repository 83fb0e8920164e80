package world

import (
	"errors"
	"fmt"

	"github.com/elementia/worldsim/internal/area"
)

var (
	// ErrMalformedRequest is returned for rectangles with a non-positive width
	// or height.
	ErrMalformedRequest = errors.New("malformed region request")
	// ErrOutOfBounds is returned when a view coordinate falls outside the
	// areas the view holds.
	ErrOutOfBounds = errors.New("view access out of bounds")
	// ErrLoaderStopped is returned when every loader worker has fail-stopped.
	ErrLoaderStopped = errors.New("all area loaders stopped")
	ErrCacheClosed   = errors.New("area cache closed")
	// ErrLoadAbandoned is seen by callers that shared an area entry whose
	// batch could not be queued. Resolving again starts a fresh load.
	ErrLoadAbandoned = errors.New("area load abandoned")
)

// OutOfBoundsError carries the offending view coordinate and the area grid
// index it resolved to.
type OutOfBoundsError struct {
	X, Y       int
	Col, Row   int
	Cols, Rows int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("view cell (%d,%d) maps to area [%d,%d] outside %dx%d grid", e.X, e.Y, e.Col, e.Row, e.Cols, e.Rows)
}

func (e *OutOfBoundsError) Is(target error) bool { return target == ErrOutOfBounds }

// LoadError is a storage failure while loading one area of a batch.
type LoadError struct {
	Key area.Key
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load area %s: %v", e.Key, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }
