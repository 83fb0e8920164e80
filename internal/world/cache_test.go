package world

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/elementia/worldsim/internal/area"
	"github.com/elementia/worldsim/internal/core/event"
	"github.com/elementia/worldsim/internal/terrain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTwoByTwo(t *testing.T) {
	f := newFixture(t, 16, nil, coordGen{})

	v, err := f.cache.Resolve(context.Background(), NewRequest(0, 32, 32, 0))
	require.NoError(t, err)
	defer f.cache.ReleaseView(v)

	assert.Equal(t, 32, v.Width())
	assert.Equal(t, 32, v.Height())
	cols, rows := v.Grid()
	assert.Equal(t, 2, cols)
	assert.Equal(t, 2, rows)
	for col := 0; col < cols; col++ {
		for row := 0; row < rows; row++ {
			s := v.Area(col, row)
			require.NotNil(t, s, "area [%d,%d] must be ready", col, row)
			assert.Equal(t, area.Key{X: col, Y: row}, s.Key)
		}
	}

	c, err := v.Locate(16, 16)
	require.NoError(t, err)
	assert.Equal(t, area.Key{X: 1, Y: 1}, c.Area)
	assert.Equal(t, 0, c.LocalX)
	assert.Equal(t, 0, c.LocalY)

	h, err := v.Uint16(16, 16, area.LayerHeight)
	require.NoError(t, err)
	assert.Equal(t, uint16(16), h)
}

func TestResolveRejectsMalformedRequests(t *testing.T) {
	f := newFixture(t, 16, nil, nil)
	for _, req := range []Request{
		NewRequest(10, 10, 20, 0),
		NewRequest(10, 5, 20, 0),
		NewRequest(0, 10, 0, 0),
		NewRequest(0, 10, 0, 32), // bottom above top
	} {
		_, err := f.cache.Resolve(context.Background(), req)
		assert.ErrorIs(t, err, ErrMalformedRequest, "%s", req)
	}
	assert.Zero(t, f.tiles.totalReads())
}

func TestResolveIsIdempotent(t *testing.T) {
	f := newFixture(t, 8, nil, terrain.NewNoise(3))
	req := NewRequest(-5, 19, 21, 3)

	a, err := f.cache.Resolve(context.Background(), req)
	require.NoError(t, err)
	b, err := f.cache.Resolve(context.Background(), req)
	require.NoError(t, err)

	for x := 0; x <= req.Width(); x++ {
		for y := 0; y <= req.Height(); y++ {
			ha, errA := a.Uint16(x, y, area.LayerHeight)
			hb, errB := b.Uint16(x, y, area.LayerHeight)
			assert.Equal(t, errA, errB)
			assert.Equal(t, ha, hb, "height at (%d,%d)", x, y)
			wa, _ := a.Uint8(x, y, area.LayerWater)
			wb, _ := b.Uint8(x, y, area.LayerWater)
			assert.Equal(t, wa, wb, "water at (%d,%d)", x, y)
		}
	}

	cols, rows := a.Grid()
	assert.Equal(t, cols*rows, f.tiles.totalReads(), "second resolve must not reload")
}

func TestConcurrentResolvesShareLoads(t *testing.T) {
	tiles := newMemTiles()
	tiles.gate = make(chan struct{})
	f := newFixture(t, 16, tiles, coordGen{})

	// areas (0,0),(1,0) and (1,0),(2,0): (1,0) is shared
	reqs := []Request{NewRequest(0, 32, 16, 0), NewRequest(16, 48, 16, 0)}
	views := make([]*View, len(reqs))
	errs := make([]error, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			views[i], errs[i] = f.cache.Resolve(context.Background(), req)
		}(i, req)
	}

	require.Eventually(t, func() bool { return f.cache.Stats().Areas == 3 }, time.Second, time.Millisecond)
	close(tiles.gate)
	wg.Wait()

	for i := range reqs {
		require.NoError(t, errs[i])
	}
	assert.Equal(t, 1, tiles.readsOf(area.Key{X: 1, Y: 0}), "shared area loaded once")
	assert.Equal(t, 3, tiles.totalReads())
	assert.Same(t, views[0].Area(1, 0), views[1].Area(0, 0), "both views hold the same area instance")
}

func TestResolveLoadsSavedTiles(t *testing.T) {
	f := newFixture(t, 4, nil, nil)
	saved := area.New(area.Key{X: 0, Y: 0}, 4)
	saved.SetWater(2, 3, 77)
	data, err := f.codec.Encode(saved)
	require.NoError(t, err)
	f.tiles.data[saved.Key] = data

	v, err := f.cache.Resolve(context.Background(), NewRequest(0, 4, 4, 0))
	require.NoError(t, err)
	w, err := v.Uint8(2, 3, area.LayerWater)
	require.NoError(t, err)
	assert.Equal(t, uint8(77), w)
	assert.False(t, v.Area(0, 0).Dirty(), "loaded areas start clean")

	st := f.cache.Stats()
	assert.Equal(t, uint64(1), st.Loads)
	assert.Equal(t, uint64(0), st.Generated)
}

func TestLoaderFailStops(t *testing.T) {
	tiles := newMemTiles()
	tiles.fail[area.Key{X: 1, Y: 0}] = errors.New("disk on fire")
	f := newFixture(t, 16, tiles, nil)

	var failures []event.LoaderFailed
	event.Subscribe(f.bus, func(e event.LoaderFailed) { failures = append(failures, e) })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := f.cache.Resolve(ctx, NewRequest(0, 48, 16, 0))
	require.ErrorIs(t, err, context.DeadlineExceeded, "the failed batch stays pending")

	require.Eventually(t, func() bool { return f.cache.Stats().LiveLoaders == 0 }, time.Second, time.Millisecond)
	f.bus.SwapBuffers()
	f.bus.DispatchAll()
	require.Len(t, failures, 1)
	assert.ErrorContains(t, failures[0].Err, "disk on fire")
	assert.ElementsMatch(t, []area.Key{{X: 1, Y: 0}, {X: 2, Y: 0}}, failures[0].Pending)

	st := f.cache.Stats()
	assert.Equal(t, 3, st.Areas)
	assert.Equal(t, 2, st.Pending)

	_, err = f.cache.Resolve(context.Background(), NewRequest(100, 110, 10, 0))
	assert.ErrorIs(t, err, ErrLoaderStopped)
	assert.Equal(t, 3, f.cache.Stats().Areas, "an unqueued area is not cached")
}

func TestResolveCancelledBeforeQueueingCanBeRetried(t *testing.T) {
	tiles := newMemTiles()
	tiles.gate = make(chan struct{})
	f := newFixture(t, 16, tiles, coordGen{}, func(o *Options) { o.QueueSize = 1 })

	var wg sync.WaitGroup
	resolve := func(req Request) {
		defer wg.Done()
		_, err := f.cache.Resolve(context.Background(), req)
		assert.NoError(t, err)
	}

	// the only worker holds the first batch, the second fills the queue
	wg.Add(1)
	go resolve(NewRequest(0, 16, 16, 0))
	require.Eventually(t, func() bool { return tiles.heldLoads() == 1 }, time.Second, time.Millisecond)
	wg.Add(1)
	go resolve(NewRequest(16, 32, 16, 0))
	require.Eventually(t, func() bool { return len(f.cache.loaders.queue) == 1 }, time.Second, time.Millisecond)

	third := NewRequest(32, 48, 16, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.cache.Resolve(ctx, third)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, f.cache.Stats().Areas, "the unqueued area was dropped")

	close(tiles.gate)
	wg.Wait()

	retry, cancelRetry := context.WithTimeout(context.Background(), time.Second)
	defer cancelRetry()
	v, err := f.cache.Resolve(retry, third)
	require.NoError(t, err)
	h, err := v.Uint16(0, 0, area.LayerHeight)
	require.NoError(t, err)
	assert.Equal(t, uint16(32), h)
}

func TestAbandonedEntryReleasesWaiters(t *testing.T) {
	p := newPending(area.Key{X: 4, Y: 5})
	assert.NoError(t, p.Err())
	assert.True(t, p.abandon(ErrLoaderStopped))
	assert.False(t, p.complete(area.New(p.Key, 4)), "an abandoned entry never becomes loaded")

	select {
	case <-p.Ready():
	default:
		t.Fatal("abandon must release waiters")
	}
	assert.Nil(t, p.Store())
	assert.ErrorIs(t, p.Err(), ErrLoaderStopped)
}

func TestFlushSavesDirtyAreas(t *testing.T) {
	f := newFixture(t, 8, nil, terrain.Flat{Water: 3})

	v, err := f.cache.Resolve(context.Background(), NewRequest(0, 16, 8, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, f.cache.Stats().Dirty, "generated areas are dirty")

	var flushed []event.TilesFlushed
	event.Subscribe(f.bus, func(e event.TilesFlushed) { flushed = append(flushed, e) })

	saved, failed, err := f.cache.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, saved)
	assert.Zero(t, failed)
	assert.Zero(t, f.cache.Stats().Dirty)

	require.NoError(t, v.SetUint8(9, 1, area.LayerWater, 200))
	saved, _, err = f.cache.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, saved, "only the written area is saved again")

	got, err := f.codec.Decode(area.Key{X: 1, Y: 0}, 8, f.tiles.data[area.Key{X: 1, Y: 0}])
	require.NoError(t, err)
	assert.Equal(t, uint8(200), got.WaterAt(1, 1))
	assert.Equal(t, uint8(3), got.WaterAt(0, 0))

	f.bus.SwapBuffers()
	f.bus.DispatchAll()
	assert.Len(t, flushed, 2)
}

func TestFlushKeepsFailedAreasDirty(t *testing.T) {
	f := newFixture(t, 8, nil, nil)
	_, err := f.cache.Resolve(context.Background(), NewRequest(0, 8, 8, 0))
	require.NoError(t, err)

	f.tiles.mu.Lock()
	f.tiles.fail[area.Key{}] = errors.New("read-only")
	f.tiles.mu.Unlock()

	saved, failed, err := f.cache.Flush(context.Background())
	assert.Error(t, err)
	assert.Zero(t, saved)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, f.cache.Stats().Dirty)
}

func TestResolveAfterClose(t *testing.T) {
	f := newFixture(t, 8, nil, nil)
	f.cache.Close()
	_, err := f.cache.Resolve(context.Background(), NewRequest(0, 8, 8, 0))
	assert.ErrorIs(t, err, ErrCacheClosed)
}
