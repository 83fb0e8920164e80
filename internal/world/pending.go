package world

import (
	"sync"

	"github.com/elementia/worldsim/internal/area"
)

// Pending is a cache entry. It starts pending and becomes ready exactly once
// when a loader delivers its Store; it never goes back.
type Pending struct {
	Key   area.Key
	ready chan struct{}
	once  sync.Once
	store *area.Store // written before ready is closed
	err   error       // set instead of store when the load was abandoned
}

func newPending(key area.Key) *Pending {
	return &Pending{Key: key, ready: make(chan struct{})}
}

// Ready is closed once the area is loaded.
func (p *Pending) Ready() <-chan struct{} { return p.ready }

func (p *Pending) IsReady() bool {
	select {
	case <-p.ready:
		return true
	default:
		return false
	}
}

// Store returns the loaded area, or nil while still pending.
func (p *Pending) Store() *area.Store {
	if !p.IsReady() {
		return nil
	}
	return p.store
}

// Err reports why a ready entry carries no Store.
func (p *Pending) Err() error {
	if !p.IsReady() {
		return nil
	}
	return p.err
}

// complete delivers s. Later calls are ignored and report false.
func (p *Pending) complete(s *area.Store) bool {
	done := false
	p.once.Do(func() {
		p.store = s
		close(p.ready)
		done = true
	})
	return done
}

// abandon releases waiters of an entry whose batch never reached a loader.
func (p *Pending) abandon(err error) bool {
	done := false
	p.once.Do(func() {
		p.err = err
		close(p.ready)
		done = true
	})
	return done
}
