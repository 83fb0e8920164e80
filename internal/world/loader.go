package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/elementia/worldsim/internal/area"
	"github.com/elementia/worldsim/internal/core/event"
	"github.com/elementia/worldsim/internal/persist"
	"github.com/elementia/worldsim/internal/terrain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// batch is the set of areas first requested by one Resolve call.
type batch struct {
	id    uint64
	areas []*Pending
}

// loaderPool runs a fixed set of loader workers fed from one queue. Each
// worker handles one batch at a time; a batch is never split.
type loaderPool struct {
	queue   chan batch
	live    atomic.Int32
	loads   atomic.Uint64
	gens    atomic.Uint64
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	limiter *rate.Limiter

	tiles persist.TileStore
	codec *area.Codec
	gen   terrain.Generator
	root  string
	dim   int
	bus   *event.Bus
	log   *zap.Logger
}

func newLoaderPool(opts Options) *loaderPool {
	p := &loaderPool{
		queue: make(chan batch, max(opts.QueueSize, 1)),
		tiles: opts.Tiles,
		codec: opts.Codec,
		gen:   opts.Generator,
		root:  opts.Root,
		dim:   opts.Dim,
		bus:   opts.Bus,
		log:   opts.Log,
	}
	if opts.MaxLoadsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.MaxLoadsPerSecond), 1)
	}
	if p.gen == nil {
		p.gen = terrain.Flat{}
	}
	return p
}

func (p *loaderPool) start(workers int) {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	for i := 0; i < workers; i++ {
		p.live.Add(1)
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.work(ctx, id)
		}(i)
	}
}

// submit queues b, blocking while the queue is full.
func (p *loaderPool) submit(ctx context.Context, b batch) error {
	if p.live.Load() == 0 {
		return ErrLoaderStopped
	}
	select {
	case p.queue <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *loaderPool) stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// work processes batches until ctx ends or a batch fails. A failed worker
// does not come back: the rest of its batch stays pending.
func (p *loaderPool) work(ctx context.Context, id int) {
	defer p.live.Add(-1)
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-p.queue:
			err := p.loadBatch(ctx, b)
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			var pending []area.Key
			for _, a := range b.areas {
				if !a.IsReady() {
					pending = append(pending, a.Key)
				}
			}
			p.log.Error("area loader stopped",
				zap.Int("worker", id),
				zap.Uint64("batch", b.id),
				zap.Int("pending", len(pending)),
				zap.Error(err))
			event.Emit(p.bus, event.LoaderFailed{Worker: id, Pending: pending, Err: err})
			return
		}
	}
}

func (p *loaderPool) loadBatch(ctx context.Context, b batch) error {
	for _, a := range b.areas {
		s, err := p.loadArea(ctx, a.Key)
		if err != nil {
			return err
		}
		a.complete(s)
	}
	p.log.Debug("batch loaded", zap.Uint64("batch", b.id), zap.Int("areas", len(b.areas)))
	return nil
}

func (p *loaderPool) loadArea(ctx context.Context, key area.Key) (*area.Store, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	data, err := p.tiles.LoadTile(ctx, key, p.root)
	p.loads.Add(1)
	switch {
	case errors.Is(err, persist.ErrTileNotFound):
		s := area.New(key, p.dim)
		if err := p.gen.Generate(s); err != nil {
			return nil, &LoadError{Key: key, Err: fmt.Errorf("generate: %w", err)}
		}
		s.MarkDirty()
		p.gens.Add(1)
		return s, nil
	case err != nil:
		return nil, &LoadError{Key: key, Err: err}
	}
	s, err := p.codec.Decode(key, p.dim, data)
	if err != nil {
		return nil, &LoadError{Key: key, Err: err}
	}
	return s, nil
}
