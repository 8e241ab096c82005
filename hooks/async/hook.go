// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := tiercache.Open[User](ctx, tiercache.Options[User]{
//	    Store: store,
//	    Codec: codec.JSON[User]{},
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/tiercache"
)

// Hooks forwards events to inner on worker goroutines. Events are dropped
// when the queue is full.
type Hooks struct {
	inner tiercache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(inner tiercache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SelfHeal(loc, reason string)     { h.try(func() { h.inner.SelfHeal(loc, reason) }) }
func (h *Hooks) CatalogBuilt(root string, n int) { h.try(func() { h.inner.CatalogBuilt(root, n) }) }
func (h *Hooks) MetaRebuilt(loc string)          { h.try(func() { h.inner.MetaRebuilt(loc) }) }
func (h *Hooks) OrphanMeta(loc string)           { h.try(func() { h.inner.OrphanMeta(loc) }) }
func (h *Hooks) Backfill(key, from, to string) {
	h.try(func() { h.inner.Backfill(key, from, to) })
}
func (h *Hooks) Mismatch(key string, copies int) { h.try(func() { h.inner.Mismatch(key, copies) }) }
