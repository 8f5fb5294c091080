package models

import (
	"time"
)

// CatalogItem is a purchasable product. Prices are in cents.
type CatalogItem struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    int64    `json:"price"`
	Image    string   `json:"image"`
	Brand    string   `json:"brand,omitempty"`
	Category string   `json:"category,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
}

// CartLine is one item and its quantity. The item is a snapshot taken when
// the line was created, so a reloaded cart reproduces the same totals.
type CartLine struct {
	Item     CatalogItem `json:"product"`
	Quantity int         `json:"qty"`
}

func (l CartLine) ItemID() string {
	return l.Item.ID
}

// LineTotal is price * quantity in cents.
func (l CartLine) LineTotal() int64 {
	return l.Item.Price * int64(l.Quantity)
}

type ReceiptLine struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Qty   int    `json:"qty"`
	Price int64  `json:"price"`
}

func (l ReceiptLine) LineTotal() int64 {
	return l.Price * int64(l.Qty)
}

// Receipt is the immutable record of a completed checkout.
type Receipt struct {
	ID        string        `json:"id"`
	Items     []ReceiptLine `json:"items"`
	Subtotal  int64         `json:"subtotal"`
	Tax       int64         `json:"tax"`
	Total     int64         `json:"total"`
	CreatedAt time.Time     `json:"createdAt"`
}

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"` // bcrypt hash
}
