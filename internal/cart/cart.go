// Package cart holds a visitor's shopping cart and keeps it persisted.
//
// Every mutator updates the in-memory lines first and then writes the whole
// cart to storage. A failed write does not roll the change back: the caller
// gets an error wrapping ErrNotPersisted and the in-memory cart stays the
// source of truth until the next successful write.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/alextreichler/minishop/internal/models"
	"github.com/alextreichler/minishop/internal/storage"
)

// Namespace prefixes every persisted cart key.
const Namespace = "mini-shop-cart"

var (
	ErrNotPersisted = errors.New("cart: changes not persisted")
	// ErrEmpty is returned by Settle for a cart with no lines.
	ErrEmpty = errors.New("cart: empty")
)

// Key is the storage key of a visitor's cart.
func Key(visitorID string) string {
	return Namespace + ":" + visitorID
}

// record is the persisted form of a cart.
type record struct {
	Items []models.CartLine `json:"items"`
}

// Cart is safe for concurrent use; operations on one cart are serialized.
type Cart struct {
	mu      sync.Mutex
	key     string
	storage storage.Store
	lines   []models.CartLine
}

// New returns an empty cart persisted under key.
func New(s storage.Store, key string) *Cart {
	return &Cart{key: key, storage: s}
}

// Load reads the cart stored under key. The returned cart is always usable:
// a missing record yields an empty cart with a nil error, and an unreadable
// one yields an empty cart together with the error.
func Load(ctx context.Context, s storage.Store, key string) (*Cart, error) {
	c := New(s, key)

	data, err := s.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("load cart %s: %w", key, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return c, fmt.Errorf("decode cart %s: %w", key, err)
	}
	for _, line := range rec.Items {
		if line.Quantity < 1 || line.Item.ID == "" || c.index(line.Item.ID) >= 0 {
			continue
		}
		c.lines = append(c.lines, line)
	}
	return c, nil
}

// Add increments the line for item, or appends a new line with quantity 1.
func (c *Cart) Add(ctx context.Context, item models.CatalogItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.index(item.ID); i >= 0 {
		c.lines[i].Quantity++
	} else {
		c.lines = append(c.lines, models.CartLine{Item: item, Quantity: 1})
	}
	return c.persist(ctx)
}

// Remove deletes the line for itemID. Absent ids are a no-op.
func (c *Cart) Remove(ctx context.Context, itemID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(itemID)
	if i < 0 {
		return nil
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	return c.persist(ctx)
}

// SetQuantity replaces the quantity of an existing line. Quantities below 1
// are ignored; Remove is the only way to drop a line.
func (c *Cart) SetQuantity(ctx context.Context, itemID string, qty int) error {
	if qty < 1 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(itemID)
	if i < 0 || c.lines[i].Quantity == qty {
		return nil
	}
	c.lines[i].Quantity = qty
	return c.persist(ctx)
}

func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines = nil
	return c.persist(ctx)
}

// TotalCents is the sum of price * quantity over all lines.
func (c *Cart) TotalCents() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return total(c.lines)
}

// Lines returns a copy of the current lines in insertion order.
func (c *Cart) Lines() []models.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Count is the number of units across all lines.
func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, line := range c.lines {
		n += line.Quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) == 0
}

// Settle hands fn a snapshot of the lines and their total while holding the
// cart, and clears the cart only if fn returns nil. An empty cart never
// reaches fn. If fn fails the cart is untouched and fn's error is returned.
// If the cleared cart cannot be persisted the returned error wraps
// ErrNotPersisted; the in-memory cart is empty either way.
func (c *Cart) Settle(ctx context.Context, fn func(lines []models.CartLine, subtotal int64) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.lines) == 0 {
		return ErrEmpty
	}
	if err := fn(c.snapshot(), total(c.lines)); err != nil {
		return err
	}

	c.lines = nil
	return c.persist(ctx)
}

func (c *Cart) index(itemID string) int {
	for i, line := range c.lines {
		if line.Item.ID == itemID {
			return i
		}
	}
	return -1
}

func (c *Cart) snapshot() []models.CartLine {
	out := make([]models.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func total(lines []models.CartLine) int64 {
	var sum int64
	for _, line := range lines {
		sum += line.LineTotal()
	}
	return sum
}

// persist must be called with c.mu held.
func (c *Cart) persist(ctx context.Context) error {
	rec := record{Items: c.lines}
	if rec.Items == nil {
		rec.Items = []models.CartLine{}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrNotPersisted, err)
	}
	if err := c.storage.Put(ctx, c.key, data); err != nil {
		return fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}
	return nil
}
