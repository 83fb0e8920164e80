package sim

import (
	"fmt"

	"github.com/elementia/worldsim/internal/world"
)

// Geometry is the world rectangle a pass covers, anchored at (0, 0).
type Geometry struct {
	Width   int
	Height  int
	Radius  int
	Stagger bool // shift interior strip boundaries on odd steps
}

// Validate checks that count strips each keep a processed column after
// removing the margins, on every step.
func (g Geometry) Validate(count int) error {
	if count <= 0 {
		return fmt.Errorf("division count must be > 0, got %d", count)
	}
	if g.Radius < 1 {
		return fmt.Errorf("radius must be >= 1, got %d", g.Radius)
	}
	if g.Height < 2*g.Radius+1 {
		return fmt.Errorf("world height %d too small for radius %d", g.Height, g.Radius)
	}
	need := 2*g.Radius + 1
	if g.Stagger && count > 1 {
		need += g.shift()
	}
	if g.Width/count < need {
		return fmt.Errorf("world width %d too narrow for %d divisions with radius %d (strip %d < %d)",
			g.Width, count, g.Radius, g.Width/count, need)
	}
	return nil
}

// shift is how far interior boundaries move on odd steps. Moving by twice
// the radius puts the margin columns of even steps inside processed regions.
func (g Geometry) shift() int { return 2 * g.Radius }

func (g Geometry) boundary(k, count int, step uint64) int {
	b := k * g.Width / count
	if g.Stagger && step%2 == 1 && k > 0 && k < count {
		b += g.shift()
	}
	return b
}

// Division is one strip of a pass.
type Division struct {
	Index   int
	Request world.Request // the strip; the simulator resolves exactly this
	Radius  int
}

// Partition returns division index of count for the given step. Strips are
// vertical and together cover [0, Width) x [0, Height).
func Partition(index, count int, step uint64, g Geometry) Division {
	left := g.boundary(index, count, step)
	right := g.boundary(index+1, count, step)
	return Division{
		Index:   index,
		Request: world.NewRequest(left, right, g.Height, 0),
		Radius:  g.Radius,
	}
}

// Processed is the world rectangle whose cells get the diffusion rule.
func (d Division) Processed() world.Request {
	r := d.Request
	return world.NewRequest(r.Left+d.Radius, r.Right-d.Radius, r.Bottom-d.Radius, r.Top+d.Radius)
}

// Written is Processed grown by the one-cell neighborhood. With a radius of
// at least one it stays inside the strip.
func (d Division) Written() world.Request {
	p := d.Processed()
	return world.NewRequest(p.Left-1, p.Right+1, p.Bottom+1, p.Top-1)
}
