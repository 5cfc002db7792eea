package answercache

import (
	"context"
	"log"
	"time"
)

const persistTimeout = 15 * time.Second

// Persister writes the cache's learned entries to the configured store in
// the background. Flush is fire-and-forget from the dispatcher's point of
// view: persistence failures are logged, never surfaced to the request
// that triggered them.
type Persister struct {
	cache  *Cache
	store  Store
	signal chan struct{}
}

func NewPersister(cache *Cache, store Store) *Persister {
	return &Persister{
		cache:  cache,
		store:  store,
		signal: make(chan struct{}, 1),
	}
}

// Flush requests a snapshot write. Signals arriving while a write is in
// flight coalesce into a single pending flush; the snapshot is taken at
// write time, so the final write always carries the latest state.
func (p *Persister) Flush() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Run services flush requests until ctx is cancelled, then attempts one
// final write so learned answers survive a clean shutdown.
func (p *Persister) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.write(context.Background())
			return
		case <-p.signal:
			p.write(ctx)
		}
	}
}

func (p *Persister) write(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	entries := p.cache.LearnedEntries()
	if err := p.store.SaveLearned(ctx, entries); err != nil {
		log.Printf("[cache] learned snapshot write failed (%d entries): %v", len(entries), err)
		return
	}
	log.Printf("[cache] learned snapshot written (%d entries)", len(entries))
}
