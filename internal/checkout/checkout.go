// Package checkout turns a cart into a persisted receipt and serves receipts
// back by order id.
package checkout

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/alextreichler/minishop/internal/cart"
	"github.com/alextreichler/minishop/internal/models"
	"github.com/alextreichler/minishop/internal/money"
	"github.com/alextreichler/minishop/internal/storage"
)

const (
	// ReceiptNamespace prefixes every persisted receipt key.
	ReceiptNamespace = "receipt"

	orderPrefix  = "ORD-"
	orderCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no I, O, 1, 0
	orderLength  = 8

	maxIDAttempts = 5
)

var (
	ErrEmptyCart       = errors.New("checkout: cart is empty")
	ErrReceiptNotFound = errors.New("checkout: receipt not found")
	ErrIDExhausted     = errors.New("checkout: could not allocate an order id")
)

var orderIDPattern = regexp.MustCompile(`^ORD-[A-Z2-9]{8}$`)

// ReceiptKey is the storage key of a receipt.
func ReceiptKey(orderID string) string {
	return ReceiptNamespace + ":" + orderID
}

// NewOrderID returns "ORD-" followed by eight characters from an unambiguous
// uppercase alphabet.
func NewOrderID() (string, error) {
	b := make([]byte, orderLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	// 256 is a multiple of len(orderCharset), so the modulo is unbiased.
	for i := range b {
		b[i] = orderCharset[int(b[i])%len(orderCharset)]
	}
	return orderPrefix + string(b), nil
}

// ValidOrderID reports whether id has the shape NewOrderID produces.
func ValidOrderID(id string) bool {
	return orderIDPattern.MatchString(id)
}

type Summary struct {
	Subtotal int64
	Tax      int64
	Total    int64
}

// Summarize derives tax and total from a subtotal in cents.
func Summarize(subtotal int64) Summary {
	tax := money.Tax(subtotal)
	return Summary{Subtotal: subtotal, Tax: tax, Total: subtotal + tax}
}

type Service struct {
	storage storage.Store
	now     func() time.Time
	newID   func() (string, error)
}

func NewService(s storage.Store) *Service {
	return &Service{
		storage: s,
		now:     time.Now,
		newID:   NewOrderID,
	}
}

// Checkout writes a receipt for the cart's current lines and then clears the
// cart. If the receipt cannot be written the cart is left as it was. If the
// receipt was written but the emptied cart could not be persisted, the
// receipt is returned together with an error wrapping cart.ErrNotPersisted.
func (s *Service) Checkout(ctx context.Context, c *cart.Cart) (*models.Receipt, error) {
	var receipt *models.Receipt
	err := c.Settle(ctx, func(lines []models.CartLine, subtotal int64) error {
		r := s.buildReceipt(lines, subtotal)
		if err := s.save(ctx, r); err != nil {
			return err
		}
		receipt = r
		return nil
	})
	switch {
	case errors.Is(err, cart.ErrEmpty):
		return nil, ErrEmptyCart
	case receipt == nil:
		return nil, err
	default:
		return receipt, err
	}
}

func (s *Service) buildReceipt(lines []models.CartLine, subtotal int64) *models.Receipt {
	sum := Summarize(subtotal)
	items := make([]models.ReceiptLine, 0, len(lines))
	for _, line := range lines {
		items = append(items, models.ReceiptLine{
			ID:    line.Item.ID,
			Name:  line.Item.Name,
			Qty:   line.Quantity,
			Price: line.Item.Price,
		})
	}
	return &models.Receipt{
		Items:     items,
		Subtotal:  sum.Subtotal,
		Tax:       sum.Tax,
		Total:     sum.Total,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}
}

// save assigns r an order id and writes it, drawing a new id whenever the
// chosen one is already taken.
func (s *Service) save(ctx context.Context, r *models.Receipt) error {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return err
		}
		r.ID = id

		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode receipt: %w", err)
		}
		err = s.storage.Create(ctx, ReceiptKey(id), data)
		if errors.Is(err, storage.ErrExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("save receipt %s: %w", id, err)
		}
		return nil
	}
	r.ID = ""
	return ErrIDExhausted
}

// Lookup returns the receipt for orderID, or ErrReceiptNotFound.
func (s *Service) Lookup(ctx context.Context, orderID string) (*models.Receipt, error) {
	if !ValidOrderID(orderID) {
		return nil, ErrReceiptNotFound
	}
	data, err := s.storage.Get(ctx, ReceiptKey(orderID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load receipt %s: %w", orderID, err)
	}

	var r models.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode receipt %s: %w", orderID, err)
	}
	return &r, nil
}
