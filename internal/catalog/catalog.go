// Package catalog exposes the fixed product list of the shop.
package catalog

import "github.com/alextreichler/minishop/internal/models"

var products = []models.CatalogItem{
	{
		ID:       "1",
		Name:     "Wireless Bluetooth Headphones",
		Price:    7999,
		Image:    "https://picsum.photos/300/300?random=1",
		Brand:    "TechSound",
		Category: "Electronics",
		Rating:   rating(4.5),
	},
	{
		ID:       "2",
		Name:     "Organic Cotton T-Shirt",
		Price:    2499,
		Image:    "https://picsum.photos/300/300?random=2",
		Brand:    "EcoWear",
		Category: "Clothing",
		Rating:   rating(4.2),
	},
	{
		ID:       "3",
		Name:     "Smart Water Bottle",
		Price:    3999,
		Image:    "https://picsum.photos/300/300?random=3",
		Brand:    "HydroSmart",
		Category: "Health",
		Rating:   rating(4.7),
	},
	{
		ID:       "4",
		Name:     "Portable Phone Charger",
		Price:    2999,
		Image:    "https://picsum.photos/300/300?random=4",
		Brand:    "PowerPack",
		Category: "Electronics",
		Rating:   rating(4.1),
	},
	{
		ID:       "5",
		Name:     "Coffee Maker",
		Price:    8999,
		Image:    "https://picsum.photos/300/300?random=5",
		Brand:    "BrewMaster",
		Category: "Kitchen",
		Rating:   rating(4.6),
	},
	{
		ID:       "6",
		Name:     "Running Shoes",
		Price:    12999,
		Image:    "https://picsum.photos/300/300?random=6",
		Brand:    "RunFast",
		Category: "Sports",
		Rating:   rating(4.8),
	},
}

func rating(v float64) *float64 { return &v }

// Catalog is a read-only view over the product list.
type Catalog struct {
	items []models.CatalogItem
	byID  map[string]int
}

// New returns the built-in catalog.
func New() *Catalog {
	return NewFromItems(products)
}

// NewFromItems builds a catalog over items. Later duplicates of an id are ignored.
func NewFromItems(items []models.CatalogItem) *Catalog {
	c := &Catalog{
		items: make([]models.CatalogItem, 0, len(items)),
		byID:  make(map[string]int, len(items)),
	}
	for _, item := range items {
		if _, dup := c.byID[item.ID]; dup {
			continue
		}
		c.byID[item.ID] = len(c.items)
		c.items = append(c.items, item)
	}
	return c
}

// List returns the items in display order. The slice is a copy.
func (c *Catalog) List() []models.CatalogItem {
	out := make([]models.CatalogItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Catalog) Get(id string) (models.CatalogItem, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.CatalogItem{}, false
	}
	return c.items[i], true
}
