package world

import (
	"github.com/elementia/worldsim/internal/area"
)

// OutOfRangeValue is what reads return for coordinates outside the view's
// rectangle.
const OutOfRangeValue = 1

// View is a request-scoped window over the areas covering a Request. It is
// immutable apart from the cell data it writes through to the shared areas.
//
// Coordinates are relative to the request: (0, 0) is (Left, Top). Reads
// accept x in [0, Width] and y in [0, Height]; the upper bound is inclusive
// so callers can sample the vertex row one past the last cell. Anything
// further out reads OutOfRangeValue.
type View struct {
	req   Request
	dim   int
	span  areaSpan
	areas []*area.Store // col + row*cols
}

func newView(req Request, dim int, sp areaSpan, areas []*area.Store) *View {
	return &View{req: req, dim: dim, span: sp, areas: areas}
}

func (v *View) Request() Request { return v.req }
func (v *View) Width() int       { return v.req.Width() }
func (v *View) Height() int      { return v.req.Height() }

// Grid returns the number of area columns and rows the view holds.
func (v *View) Grid() (cols, rows int) { return v.span.cols(), v.span.rows() }

// Area returns the area at grid position (col, row), or nil.
func (v *View) Area(col, row int) *area.Store {
	if col < 0 || row < 0 || col >= v.span.cols() || row >= v.span.rows() {
		return nil
	}
	return v.areas[col+row*v.span.cols()]
}

// Cell is a view coordinate translated into area terms.
type Cell struct {
	Area     area.Key
	Col, Row int // position in the view's area grid
	LocalX   int // cell inside the area
	LocalY   int
}

// Locate translates a view coordinate to its area and local cell.
func (v *View) Locate(x, y int) (Cell, error) {
	wx := v.req.Left + x
	wy := v.req.Top + y
	key := area.KeyOf(wx, wy, v.dim)
	c := Cell{
		Area:   key,
		Col:    key.X - v.span.left,
		Row:    key.Y - v.span.top,
		LocalX: area.Mod(wx, v.dim),
		LocalY: area.Mod(wy, v.dim),
	}
	if c.Col < 0 || c.Row < 0 || c.Col >= v.span.cols() || c.Row >= v.span.rows() {
		return c, &OutOfBoundsError{X: x, Y: y, Col: c.Col, Row: c.Row, Cols: v.span.cols(), Rows: v.span.rows()}
	}
	return c, nil
}

// Position is the inverse of Locate.
func (v *View) Position(c Cell) (x, y int) {
	x = (v.span.left+c.Col)*v.dim + c.LocalX - v.req.Left
	y = (v.span.top+c.Row)*v.dim + c.LocalY - v.req.Top
	return x, y
}

func (v *View) outside(x, y int) bool {
	return x < 0 || x > v.req.Width() || y < 0 || y > v.req.Height()
}

func (v *View) store(x, y int) (*area.Store, Cell, error) {
	c, err := v.Locate(x, y)
	if err != nil {
		return nil, c, err
	}
	return v.areas[c.Col+c.Row*v.span.cols()], c, nil
}

// Uint16 reads a 16-bit layer (height). Other layers read as zero.
func (v *View) Uint16(x, y int, layer area.Layer) (uint16, error) {
	if v.outside(x, y) {
		return OutOfRangeValue, nil
	}
	s, c, err := v.store(x, y)
	if err != nil {
		return 0, err
	}
	if layer == area.LayerHeight {
		return s.HeightAt(c.LocalX, c.LocalY), nil
	}
	return 0, nil
}

// Uint8 reads an 8-bit layer (water). Other layers read as zero.
func (v *View) Uint8(x, y int, layer area.Layer) (uint8, error) {
	if v.outside(x, y) {
		return OutOfRangeValue, nil
	}
	s, c, err := v.store(x, y)
	if err != nil {
		return 0, err
	}
	if layer == area.LayerWater {
		return s.WaterAt(c.LocalX, c.LocalY), nil
	}
	return 0, nil
}

// Int32 reads a 32-bit layer (noise). Other layers read as zero.
func (v *View) Int32(x, y int, layer area.Layer) (int32, error) {
	if v.outside(x, y) {
		return OutOfRangeValue, nil
	}
	s, c, err := v.store(x, y)
	if err != nil {
		return 0, err
	}
	if layer == area.LayerNoise {
		return s.NoiseAt(c.LocalX, c.LocalY), nil
	}
	return 0, nil
}

// SetUint16 writes a 16-bit layer. Writes to other layers are ignored.
func (v *View) SetUint16(x, y int, layer area.Layer, val uint16) error {
	s, c, err := v.store(x, y)
	if err != nil {
		return err
	}
	if layer == area.LayerHeight {
		s.SetHeight(c.LocalX, c.LocalY, val)
	}
	return nil
}

// SetUint8 writes an 8-bit layer. Writes to other layers are ignored.
func (v *View) SetUint8(x, y int, layer area.Layer, val uint8) error {
	s, c, err := v.store(x, y)
	if err != nil {
		return err
	}
	if layer == area.LayerWater {
		s.SetWater(c.LocalX, c.LocalY, val)
	}
	return nil
}

// SetInt32 writes a 32-bit layer. Writes to other layers are ignored.
func (v *View) SetInt32(x, y int, layer area.Layer, val int32) error {
	s, c, err := v.store(x, y)
	if err != nil {
		return err
	}
	if layer == area.LayerNoise {
		s.SetNoise(c.LocalX, c.LocalY, val)
	}
	return nil
}
