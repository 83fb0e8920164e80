package world

import (
	"fmt"

	"github.com/elementia/worldsim/internal/area"
)

// Request is a rectangle in world cells. Right and Bottom are exclusive and
// Top is numerically smaller than Bottom, so Height = Bottom - Top.
type Request struct {
	Left   int
	Right  int
	Bottom int
	Top    int
}

func NewRequest(left, right, bottom, top int) Request {
	return Request{Left: left, Right: right, Bottom: bottom, Top: top}
}

func (r Request) Width() int  { return r.Right - r.Left }
func (r Request) Height() int { return r.Bottom - r.Top }

func (r Request) String() string {
	return fmt.Sprintf("[l=%d r=%d b=%d t=%d]", r.Left, r.Right, r.Bottom, r.Top)
}

// Validate rejects rectangles with a non-positive extent.
func (r Request) Validate() error {
	if r.Width() <= 0 || r.Height() <= 0 {
		return fmt.Errorf("%w: %s has extent %dx%d", ErrMalformedRequest, r, r.Width(), r.Height())
	}
	return nil
}

// areaSpan is the inclusive range of area keys a request touches.
type areaSpan struct {
	left, right, top, bottom int
}

func (r Request) span(dim int) areaSpan {
	return areaSpan{
		left:   area.FloorDiv(r.Left, dim),
		right:  area.FloorDiv(r.Right-1, dim),
		top:    area.FloorDiv(r.Top, dim),
		bottom: area.FloorDiv(r.Bottom-1, dim),
	}
}

func (s areaSpan) cols() int { return s.right - s.left + 1 }
func (s areaSpan) rows() int { return s.bottom - s.top + 1 }
