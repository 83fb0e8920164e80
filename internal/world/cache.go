package world

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/elementia/worldsim/internal/area"
	"github.com/elementia/worldsim/internal/core/event"
	"github.com/elementia/worldsim/internal/persist"
	"github.com/elementia/worldsim/internal/terrain"
	"go.uber.org/zap"
)

// Options configures a Cache.
type Options struct {
	Dim               int    // area side length in cells
	Root              string // storage root passed to the TileStore
	Tiles             persist.TileStore
	Codec             *area.Codec
	Generator         terrain.Generator // fills areas the store has never seen
	Workers           int
	QueueSize         int
	MaxLoadsPerSecond float64
	Bus               *event.Bus
	Log               *zap.Logger
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Areas       int
	Pending     int
	Dirty       int
	Bytes       uint64
	Resolves    uint64
	Loads       uint64 // storage reads
	Generated   uint64 // areas the store did not have
	LiveLoaders int
}

// Cache maps area keys to loaded (or loading) areas and hands out Views.
// Entries are never evicted: memory grows with the set of areas touched.
type Cache struct {
	dim   int
	root  string
	tiles persist.TileStore
	codec *area.Codec
	bus   *event.Bus
	log   *zap.Logger

	mu     sync.Mutex // guards areas and closed
	areas  map[area.Key]*Pending
	closed bool

	loaders  *loaderPool
	batchSeq atomic.Uint64
	resolves atomic.Uint64
	saveMu   sync.Mutex // one Flush at a time
}

func NewCache(opts Options) (*Cache, error) {
	if opts.Dim <= 0 {
		return nil, fmt.Errorf("area dimensions must be > 0, got %d", opts.Dim)
	}
	if opts.Tiles == nil || opts.Codec == nil {
		return nil, fmt.Errorf("cache needs a tile store and a codec")
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	opts.Workers = max(opts.Workers, 1)

	c := &Cache{
		dim:     opts.Dim,
		root:    opts.Root,
		tiles:   opts.Tiles,
		codec:   opts.Codec,
		bus:     opts.Bus,
		log:     opts.Log,
		areas:   make(map[area.Key]*Pending),
		loaders: newLoaderPool(opts),
	}
	c.loaders.start(opts.Workers)
	return c, nil
}

// Dim is the area side length in cells.
func (c *Cache) Dim() int { return c.dim }

// Resolve returns a View over every area the rectangle touches. Areas not yet
// cached are queued as one batch for the loader pool. Resolve blocks until all
// areas are ready, so a View never exposes a pending area. Cancelling ctx
// abandons the wait; queued loads still complete.
func (c *Cache) Resolve(ctx context.Context, req Request) (*View, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c.resolves.Add(1)
	sp := req.span(c.dim)

	entries := make([]*Pending, 0, sp.cols()*sp.rows())
	var fresh []*Pending

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCacheClosed
	}
	for row := 0; row < sp.rows(); row++ {
		for col := 0; col < sp.cols(); col++ {
			key := area.Key{X: sp.left + col, Y: sp.top + row}
			p, ok := c.areas[key]
			if !ok {
				p = newPending(key)
				c.areas[key] = p
				fresh = append(fresh, p)
			}
			entries = append(entries, p)
		}
	}
	c.mu.Unlock()

	if len(fresh) > 0 {
		b := batch{id: c.batchSeq.Add(1), areas: fresh}
		if err := c.loaders.submit(ctx, b); err != nil {
			c.forget(fresh, err)
			return nil, fmt.Errorf("resolve %s: %w", req, err)
		}
	}

	for _, p := range entries {
		select {
		case <-p.Ready():
			if err := p.Err(); err != nil {
				return nil, fmt.Errorf("resolve %s: area %s: %w", req, p.Key, err)
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("resolve %s: %w", req, ctx.Err())
		}
	}

	stores := make([]*area.Store, len(entries))
	for i, p := range entries {
		stores[i] = p.Store()
	}
	return newView(req, c.dim, sp, stores), nil
}

// forget drops entries whose batch was never queued, so the next Resolve of
// those areas loads them again. Callers already waiting on them get
// ErrLoadAbandoned.
func (c *Cache) forget(fresh []*Pending, cause error) {
	c.mu.Lock()
	for _, p := range fresh {
		if c.areas[p.Key] == p {
			delete(c.areas, p.Key)
		}
	}
	c.mu.Unlock()
	for _, p := range fresh {
		p.abandon(fmt.Errorf("%w: %w", ErrLoadAbandoned, cause))
	}
}

// ReleaseView hands a view back. It does nothing yet; it is the hook for
// future eviction, and callers should still call it when done.
func (c *Cache) ReleaseView(v *View) {}

// PersistView is reserved for save-on-return and does nothing. Writes are
// only durable after Flush.
func (c *Cache) PersistView(v *View) {}

// Flush encodes and saves every dirty ready area. An area whose save fails
// is marked dirty again and retried on the next Flush.
func (c *Cache) Flush(ctx context.Context) (saved, failed int, err error) {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	var dirty []*area.Store
	c.mu.Lock()
	for _, p := range c.areas {
		if s := p.Store(); s != nil && s.Dirty() {
			dirty = append(dirty, s)
		}
	}
	c.mu.Unlock()

	var firstErr error
	for _, s := range dirty {
		if ctx.Err() != nil {
			return saved, failed, ctx.Err()
		}
		s.MarkClean()
		data, err := c.codec.Encode(s)
		if err == nil {
			err = c.tiles.SaveTile(ctx, s.Key, c.root, data)
		}
		if err != nil {
			s.MarkDirty()
			failed++
			if firstErr == nil {
				firstErr = err
			}
			c.log.Error("save area failed", zap.Int("area_x", s.Key.X), zap.Int("area_y", s.Key.Y), zap.Error(err))
			continue
		}
		saved++
	}
	if saved > 0 || failed > 0 {
		event.Emit(c.bus, event.TilesFlushed{Saved: saved, Failed: failed})
	}
	return saved, failed, firstErr
}

func (c *Cache) Stats() Stats {
	st := Stats{
		Resolves:    c.resolves.Load(),
		Loads:       c.loaders.loads.Load(),
		Generated:   c.loaders.gens.Load(),
		LiveLoaders: int(c.loaders.live.Load()),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st.Areas = len(c.areas)
	for _, p := range c.areas {
		s := p.Store()
		if s == nil {
			st.Pending++
			continue
		}
		st.Bytes += s.Bytes()
		if s.Dirty() {
			st.Dirty++
		}
	}
	return st
}

// Close stops the loader workers. Pending areas stay pending; callers blocked
// in Resolve return when their context ends.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.loaders.stop()
}
