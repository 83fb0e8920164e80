package sim

import (
	"context"
	"sync"
	"testing"

	"github.com/elementia/worldsim/internal/area"
	"github.com/elementia/worldsim/internal/persist"
	"github.com/elementia/worldsim/internal/terrain"
	"github.com/elementia/worldsim/internal/world"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memTiles never has saved data, so every area comes from the generator.
type memTiles struct {
	mu    sync.Mutex
	saved map[area.Key][]byte
}

func (m *memTiles) LoadTile(context.Context, area.Key, string) ([]byte, error) {
	return nil, persist.ErrTileNotFound
}

func (m *memTiles) SaveTile(_ context.Context, key area.Key, _ string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[area.Key][]byte)
	}
	m.saved[key] = data
	return nil
}

func (m *memTiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

// memProgress is a ProgressStore with an optional save hook and failure.
type memProgress struct {
	mu      sync.Mutex
	row     *persist.ProgressRow
	saves   []persist.ProgressRow
	failErr error
	onSave  func(row persist.ProgressRow)
}

func (m *memProgress) LoadProgress(context.Context, string) (*persist.ProgressRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.row == nil {
		return nil, nil
	}
	r := *m.row
	return &r, nil
}

func (m *memProgress) SaveProgress(_ context.Context, _ string, row *persist.ProgressRow) error {
	m.mu.Lock()
	if m.failErr != nil {
		m.mu.Unlock()
		return m.failErr
	}
	r := *row
	m.row = &r
	m.saves = append(m.saves, r)
	hook := m.onSave
	m.mu.Unlock()
	if hook != nil {
		hook(r)
	}
	return nil
}

func (m *memProgress) saved() []persist.ProgressRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]persist.ProgressRow(nil), m.saves...)
}

func newCache(t *testing.T, dim int, gen terrain.Generator) (*world.Cache, *memTiles) {
	t.Helper()
	codec, err := area.NewCodec(0)
	require.NoError(t, err)
	t.Cleanup(codec.Close)
	tiles := &memTiles{}
	c, err := world.NewCache(world.Options{
		Dim:       dim,
		Root:      "test",
		Tiles:     tiles,
		Codec:     codec,
		Generator: gen,
		Workers:   2,
		QueueSize: 16,
		Log:       zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, tiles
}

// countingCache counts finished divisions through ReleaseView and can hold
// Resolve until released.
type countingCache struct {
	*world.Cache
	mu        sync.Mutex
	released  int
	hold      chan struct{} // when non-nil, Resolve waits for it or ctx
	entered   chan struct{} // receives once per Resolve call, if non-nil
	failLeft  *int          // when set, Resolve of a view starting there fails
	failErr   error
	onRelease func(released int)
}

func (c *countingCache) Resolve(ctx context.Context, req world.Request) (*world.View, error) {
	if c.entered != nil {
		select {
		case c.entered <- struct{}{}:
		default:
		}
	}
	if c.failLeft != nil && req.Left == *c.failLeft {
		return nil, c.failErr
	}
	if c.hold != nil {
		select {
		case <-c.hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c.Cache.Resolve(ctx, req)
}

func (c *countingCache) ReleaseView(v *world.View) {
	c.Cache.ReleaseView(v)
	c.mu.Lock()
	c.released++
	n := c.released
	c.mu.Unlock()
	if c.onRelease != nil {
		c.onRelease(n)
	}
}

func (c *countingCache) releases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// pondGen gives every cell height 10 except a shallow basin, and water 4.
type pondGen struct{}

func (pondGen) Generate(s *area.Store) error {
	for y := 0; y < s.Dim; y++ {
		for x := 0; x < s.Dim; x++ {
			i := x + y*s.Dim
			wx, wy := s.Key.X*s.Dim+x, s.Key.Y*s.Dim+y
			s.Height[i] = 10
			if wx%7 == 3 && wy%5 == 2 {
				s.Height[i] = 2
			}
			s.Water[i] = 4
		}
	}
	return nil
}

// totalWater sums the water layer over a world rectangle.
func totalWater(t *testing.T, c *world.Cache, req world.Request) int {
	t.Helper()
	v, err := c.Resolve(context.Background(), req)
	require.NoError(t, err)
	sum := 0
	for x := 0; x < req.Width(); x++ {
		for y := 0; y < req.Height(); y++ {
			w, err := v.Uint8(x, y, area.LayerWater)
			require.NoError(t, err)
			sum += int(w)
		}
	}
	return sum
}
