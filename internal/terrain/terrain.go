// Package terrain fills areas that have never been saved.
package terrain

import (
	"fmt"
	"math"

	"github.com/elementia/worldsim/internal/area"
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Generator fills a freshly allocated, zeroed area. Implementations must be
// safe for concurrent use; loader workers call Generate in parallel.
type Generator interface {
	Generate(s *area.Store) error
}

// Flat leaves every layer at zero except a uniform water level.
type Flat struct {
	Water uint8
}

func (f Flat) Generate(s *area.Store) error {
	for i := range s.Water {
		s.Water[i] = f.Water
	}
	return nil
}

// Noise derives height from layered simplex noise and floods cells below
// SeaLevel.
type Noise struct {
	noise     opensimplex.Noise
	Scale     float64 // cells per noise unit
	Octaves   int
	MaxHeight uint16
	SeaLevel  uint16
}

func NewNoise(seed int64) *Noise {
	return &Noise{
		noise:     opensimplex.New(seed),
		Scale:     96,
		Octaves:   4,
		MaxHeight: 1024,
		SeaLevel:  320,
	}
}

func (n *Noise) Generate(s *area.Store) error {
	ox := s.Key.X * s.Dim
	oy := s.Key.Y * s.Dim
	for y := 0; y < s.Dim; y++ {
		for x := 0; x < s.Dim; x++ {
			v := n.sample(float64(ox+x), float64(oy+y))
			h := uint16((v + 1) / 2 * float64(n.MaxHeight))
			i := x + y*s.Dim
			s.Height[i] = h
			s.Noise[i] = int32(v * math.MaxInt16)
			if h < n.SeaLevel {
				s.Water[i] = uint8(min(int(n.SeaLevel-h), math.MaxUint8))
			}
		}
	}
	return nil
}

// sample sums octaves and normalizes back into [-1, 1].
func (n *Noise) sample(x, y float64) float64 {
	var sum, norm float64
	amp, freq := 1.0, 1/n.Scale
	for o := 0; o < max(n.Octaves, 1); o++ {
		sum += amp * n.noise.Eval2(x*freq, y*freq)
		norm += amp
		amp *= 0.5
		freq *= 2
	}
	return sum / norm
}

// Named resolves a generator from its configuration name. "lua" is built
// by the scripting package and is not handled here.
func Named(name string, seed int64) (Generator, error) {
	switch name {
	case "", "noise":
		return NewNoise(seed), nil
	case "flat":
		return Flat{}, nil
	}
	return nil, fmt.Errorf("unknown generator %q", name)
}
