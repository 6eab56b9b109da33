package partstore

import (
	"context"
	"time"

	"github.com/dreamware/ncmerge/internal/ctxlog"
)

// Janitor periodically evicts datasets that have not been written for
// longer than a TTL.
type Janitor struct {
	store    *Store
	ttl      time.Duration
	interval time.Duration
	onEvict  func(names []string)
}

// NewJanitor creates a janitor for store.
//
// Parameters:
//   - store: Store to sweep
//   - ttl: Idle time after which a dataset is evicted (0 disables eviction)
//   - interval: Sweep period (ttl/2, at least one second, when <= 0)
//
// Example:
//
//	j := partstore.NewJanitor(store, time.Hour, 0)
//	g.Go(func() error { return j.Run(ctx) })
func NewJanitor(store *Store, ttl, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = ttl / 2
		if interval < time.Second {
			interval = time.Second
		}
	}
	return &Janitor{store: store, ttl: ttl, interval: interval}
}

// OnEvict sets a callback invoked with the names evicted by each sweep
// that evicted anything.
func (j *Janitor) OnEvict(fn func(names []string)) {
	j.onEvict = fn
}

// Run sweeps every interval until ctx is canceled. It returns nil on
// cancellation and immediately when the TTL is zero.
func (j *Janitor) Run(ctx context.Context) error {
	log := ctxlog.FromContext(ctx)
	if j.ttl <= 0 {
		log.Info("part janitor disabled")
		return nil
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	log.Info("part janitor started", "ttl", j.ttl, "interval", j.interval)

	for {
		select {
		case <-ticker.C:
			if evicted := j.Sweep(); len(evicted) > 0 {
				log.Info("evicted idle datasets", "count", len(evicted), "names", evicted)
			}
		case <-ctx.Done():
			log.Info("part janitor stopping")
			return nil
		}
	}
}

// Sweep evicts idle datasets once and returns their names.
func (j *Janitor) Sweep() []string {
	if j.ttl <= 0 {
		return nil
	}
	evicted := j.store.EvictIdle(j.store.now().Add(-j.ttl))
	if len(evicted) > 0 && j.onEvict != nil {
		j.onEvict(evicted)
	}
	return evicted
}
