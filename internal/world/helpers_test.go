package world

import (
	"context"
	"sync"
	"testing"

	"github.com/elementia/worldsim/internal/area"
	"github.com/elementia/worldsim/internal/core/event"
	"github.com/elementia/worldsim/internal/persist"
	"github.com/elementia/worldsim/internal/terrain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memTiles is an in-memory TileStore that counts reads per key.
type memTiles struct {
	mu    sync.Mutex
	data  map[area.Key][]byte
	reads map[area.Key]int
	fail  map[area.Key]error
	gate  chan struct{} // when non-nil, loads wait for it to close
	held  int           // loads currently waiting on gate
}

func newMemTiles() *memTiles {
	return &memTiles{
		data:  make(map[area.Key][]byte),
		reads: make(map[area.Key]int),
		fail:  make(map[area.Key]error),
	}
}

func (m *memTiles) LoadTile(ctx context.Context, key area.Key, _ string) ([]byte, error) {
	if m.gate != nil {
		m.mu.Lock()
		m.held++
		m.mu.Unlock()
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		m.mu.Lock()
		m.held--
		m.mu.Unlock()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[key]++
	if err := m.fail[key]; err != nil {
		return nil, err
	}
	d, ok := m.data[key]
	if !ok {
		return nil, persist.ErrTileNotFound
	}
	return d, nil
}

func (m *memTiles) SaveTile(_ context.Context, key area.Key, _ string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[key]; err != nil {
		return err
	}
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *memTiles) readsOf(key area.Key) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[key]
}

func (m *memTiles) heldLoads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

func (m *memTiles) totalReads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.reads {
		n += r
	}
	return n
}

type cacheFixture struct {
	cache *Cache
	tiles *memTiles
	codec *area.Codec
	bus   *event.Bus
}

func newFixture(t *testing.T, dim int, tiles *memTiles, gen terrain.Generator, tweaks ...func(*Options)) *cacheFixture {
	t.Helper()
	codec, err := area.NewCodec(0)
	require.NoError(t, err)
	t.Cleanup(codec.Close)
	if tiles == nil {
		tiles = newMemTiles()
	}
	bus := event.NewBus()
	opts := Options{
		Dim:       dim,
		Root:      "test",
		Tiles:     tiles,
		Codec:     codec,
		Generator: gen,
		Workers:   1,
		QueueSize: 8,
		Bus:       bus,
		Log:       zap.NewNop(),
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}
	c, err := NewCache(opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return &cacheFixture{cache: c, tiles: tiles, codec: codec, bus: bus}
}

// coordGen writes the world coordinate into the layers so tests can tell
// cells apart: height = x, water = y, noise = x*1000 + y.
type coordGen struct{}

func (coordGen) Generate(s *area.Store) error {
	for y := 0; y < s.Dim; y++ {
		for x := 0; x < s.Dim; x++ {
			wx, wy := s.Key.X*s.Dim+x, s.Key.Y*s.Dim+y
			i := x + y*s.Dim
			s.Height[i] = uint16(wx)
			s.Water[i] = uint8(wy)
			s.Noise[i] = int32(wx*1000 + wy)
		}
	}
	return nil
}
