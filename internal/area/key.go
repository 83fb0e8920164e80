package area

import "fmt"

// Key identifies one area (tile) by its area coordinates. A world cell (x, y)
// lives in area (FloorDiv(x, dim), FloorDiv(y, dim)).
type Key struct {
	X int
	Y int
}

func (k Key) String() string {
	return fmt.Sprintf("%d_%d", k.X, k.Y)
}

// KeyOf returns the key of the area containing world cell (x, y).
func KeyOf(x, y, dim int) Key {
	return Key{X: FloorDiv(x, dim), Y: FloorDiv(y, dim)}
}

// FloorDiv divides rounding toward negative infinity, so cells left of the
// origin map to negative areas instead of folding into area 0.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Mod is the non-negative remainder matching FloorDiv.
func Mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
