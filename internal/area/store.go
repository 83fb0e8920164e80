package area

import "sync/atomic"

// Layer names one per-cell data channel of an area.
type Layer uint8

const (
	LayerHeight Layer = iota + 1 // uint16
	LayerWater                   // uint8
	LayerNoise                   // int32
)

func (l Layer) String() string {
	switch l {
	case LayerHeight:
		return "height"
	case LayerWater:
		return "water"
	case LayerNoise:
		return "noise"
	}
	return "unknown"
}

// CellBytes is the in-memory footprint of one cell across all layers.
const CellBytes = 2 + 1 + 4

// Store holds the data layers of one loaded area. Cells are addressed by
// local coordinates in [0, Dim) and laid out row-major (x + y*Dim).
//
// Store is not synchronized. Concurrent writers must touch disjoint cells.
type Store struct {
	Key    Key
	Dim    int
	Height []uint16
	Water  []uint8
	Noise  []int32

	dirty atomic.Bool
}

// New allocates a zeroed area of dim x dim cells.
func New(key Key, dim int) *Store {
	n := dim * dim
	return &Store{
		Key:    key,
		Dim:    dim,
		Height: make([]uint16, n),
		Water:  make([]uint8, n),
		Noise:  make([]int32, n),
	}
}

func (s *Store) index(x, y int) int {
	return x + y*s.Dim
}

func (s *Store) HeightAt(x, y int) uint16 { return s.Height[s.index(x, y)] }
func (s *Store) WaterAt(x, y int) uint8   { return s.Water[s.index(x, y)] }
func (s *Store) NoiseAt(x, y int) int32   { return s.Noise[s.index(x, y)] }

func (s *Store) SetHeight(x, y int, v uint16) {
	i := s.index(x, y)
	if s.Height[i] == v {
		return
	}
	s.Height[i] = v
	s.dirty.Store(true)
}

func (s *Store) SetWater(x, y int, v uint8) {
	i := s.index(x, y)
	if s.Water[i] == v {
		return
	}
	s.Water[i] = v
	s.dirty.Store(true)
}

func (s *Store) SetNoise(x, y int, v int32) {
	i := s.index(x, y)
	if s.Noise[i] == v {
		return
	}
	s.Noise[i] = v
	s.dirty.Store(true)
}

// Dirty reports whether the area changed since it was loaded or last saved.
func (s *Store) Dirty() bool { return s.dirty.Load() }

func (s *Store) MarkDirty() { s.dirty.Store(true) }

// MarkClean clears the dirty flag and reports whether it was set.
func (s *Store) MarkClean() bool { return s.dirty.Swap(false) }

// Bytes is the approximate memory held by the layer slices.
func (s *Store) Bytes() uint64 {
	return uint64(s.Dim*s.Dim) * CellBytes
}
