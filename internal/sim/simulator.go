package sim

import (
	"context"
	"fmt"

	"github.com/elementia/worldsim/internal/area"
	"github.com/elementia/worldsim/internal/world"
)

// Resolver hands out views over the world. *world.Cache implements it.
type Resolver interface {
	Resolve(ctx context.Context, req world.Request) (*world.View, error)
	ReleaseView(v *world.View)
}

// AreaSimulator applies the diffusion rule to every processed cell of one
// division.
type AreaSimulator struct {
	views Resolver
	rule  Rule
	span  int // neighborhood side gathered and written back: 3, or 2 for the legacy gather
}

// NewAreaSimulator builds a simulator. With legacyGather the
// neighborhood read and write-back cover only the north-west 2x2 block
// (center included); the remaining slots stay zero.
func NewAreaSimulator(views Resolver, rule Rule, legacyGather bool) *AreaSimulator {
	span := 3
	if legacyGather {
		span = 2
	}
	return &AreaSimulator{views: views, rule: rule, span: span}
}

// Run resolves the division's view and sweeps its processed cells column by
// column. It returns the number of cells updated. Cancellation is checked
// once per column.
func (s *AreaSimulator) Run(ctx context.Context, d Division) (int, error) {
	v, err := s.views.Resolve(ctx, d.Request)
	if err != nil {
		return 0, fmt.Errorf("resolve division %d: %w", d.Index, err)
	}
	defer s.views.ReleaseView(v)

	r := d.Radius
	w, h := v.Width(), v.Height()
	cells := 0
	for x := r; x < w-r; x++ {
		if err := ctx.Err(); err != nil {
			return cells, err
		}
		for y := r; y < h-r; y++ {
			if err := s.cell(v, x, y); err != nil {
				return cells, fmt.Errorf("division %d cell (%d,%d): %w", d.Index, x, y, err)
			}
			cells++
		}
	}
	return cells, nil
}

// cell updates the neighborhood centered on view coordinate (x, y).
func (s *AreaSimulator) cell(v *world.View, x, y int) error {
	var n Neighborhood
	for i := 0; i < s.span; i++ {
		for j := 0; j < s.span; j++ {
			water, err := v.Uint8(x-1+i, y-1+j, area.LayerWater)
			if err != nil {
				return err
			}
			height, err := v.Uint16(x-1+i, y-1+j, area.LayerHeight)
			if err != nil {
				return err
			}
			n.Water[i][j] = water
			n.Height[i][j] = height
		}
	}

	s.rule.Apply(&n)

	for i := 0; i < s.span; i++ {
		for j := 0; j < s.span; j++ {
			if err := v.SetUint8(x-1+i, y-1+j, area.LayerWater, n.Water[i][j]); err != nil {
				return err
			}
		}
	}
	return nil
}
