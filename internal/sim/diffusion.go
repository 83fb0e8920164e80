package sim

import "fmt"

// Overflow selects how a water sum beyond 255 is stored.
type Overflow uint8

const (
	OverflowWrap     Overflow = iota // modulo 256
	OverflowSaturate                 // clamp at 255
)

func ParseOverflow(s string) (Overflow, error) {
	switch s {
	case "", "wrap":
		return OverflowWrap, nil
	case "saturate":
		return OverflowSaturate, nil
	}
	return 0, fmt.Errorf("unknown overflow policy %q", s)
}

func (o Overflow) String() string {
	if o == OverflowSaturate {
		return "saturate"
	}
	return "wrap"
}

func (o Overflow) add(a, b uint8) uint8 {
	if o == OverflowSaturate && int(a)+int(b) > 0xFF {
		return 0xFF
	}
	return a + b
}

// Neighborhood is a 3x3 block indexed [x][y]; [1][1] is the center cell.
type Neighborhood struct {
	Water  [3][3]uint8
	Height [3][3]uint16
}

// visitOrder is the neighbor sequence of one cell update: clockwise from
// the north-west corner.
var visitOrder = [8][2]int{
	{0, 0}, {1, 0}, {2, 0},
	{2, 1},
	{2, 2}, {1, 2}, {0, 2},
	{0, 1},
}

// Rule is the water diffusion rule.
type Rule struct {
	Overflow Overflow
	// LegacyHeight compares the center height with itself instead of
	// the neighbor's, so every pair takes the equal-height branch.
	LegacyHeight bool
}

// Pair redistributes water between a center cell and one neighbor. Equal
// heights split the water evenly (truncated); otherwise all of it moves to
// the lower cell.
func (r Rule) Pair(center, other uint8, centerHeight, otherHeight uint16) (uint8, uint8) {
	switch {
	case centerHeight == otherHeight:
		avg := uint8((uint16(center) + uint16(other)) / 2)
		return avg, avg
	case centerHeight < otherHeight:
		return r.Overflow.add(center, other), 0
	default:
		return 0, r.Overflow.add(other, center)
	}
}

// Apply runs Pair against all eight neighbors in visit order, mutating n.
func (r Rule) Apply(n *Neighborhood) {
	hc := n.Height[1][1]
	for _, o := range visitOrder {
		x, y := o[0], o[1]
		ho := n.Height[x][y]
		if r.LegacyHeight {
			ho = hc
		}
		n.Water[1][1], n.Water[x][y] = r.Pair(n.Water[1][1], n.Water[x][y], hc, ho)
	}
}
