package cart

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alextreichler/minishop/internal/storage"
)

// Registry owns the in-memory carts of active visitors, loading each one from
// storage on first use.
type Registry struct {
	storage storage.Store
	now     func() time.Time

	mu    sync.Mutex
	carts map[string]*entry
}

type entry struct {
	cart     *Cart
	lastSeen time.Time
}

func NewRegistry(s storage.Store) *Registry {
	return &Registry{
		storage: s,
		now:     time.Now,
		carts:   make(map[string]*entry),
	}
}

// Get returns the visitor's cart. A load error is returned alongside an empty
// cart, which is kept for the rest of the session.
func (r *Registry) Get(ctx context.Context, visitorID string) (*Cart, error) {
	if c := r.lookup(visitorID); c != nil {
		return c, nil
	}

	loaded, loadErr := Load(ctx, r.storage, Key(visitorID))

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.carts[visitorID]; ok {
		// Another request loaded it first.
		e.lastSeen = r.now()
		return e.cart, nil
	}
	r.carts[visitorID] = &entry{cart: loaded, lastSeen: r.now()}
	return loaded, loadErr
}

func (r *Registry) lookup(visitorID string) *Cart {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.carts[visitorID]
	if !ok {
		return nil
	}
	e.lastSeen = r.now()
	return e.cart
}

// Len is the number of carts held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.carts)
}

// Sweep drops carts idle for longer than idle and reports how many it dropped.
// A dropped cart is reloaded from storage on its next use.
func (r *Registry) Sweep(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	n := 0
	for id, e := range r.carts {
		if e.lastSeen.Before(cutoff) {
			delete(r.carts, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(idle); n > 0 {
				slog.Debug("Swept idle carts", "count", n, "remaining", r.Len())
			}
		}
	}
}
