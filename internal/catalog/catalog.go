package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrProductNotFound is returned when an item id does not resolve to a product.
var ErrProductNotFound = errors.New("catalog: product not found")

// Product describes a sellable item as resolved by the catalog.
type Product struct {
	ID          string
	Name        string
	Description string
	PriceCents  int64
	Currency    string
	Category    string
	InStock     bool
	ImageURL    string
}

// Digital reports whether the product is delivered digitally.
func (p Product) Digital() bool {
	return strings.EqualFold(strings.TrimSpace(p.Category), CategoryDigital)
}

const (
	// CategoryApparel marks physical apparel products.
	CategoryApparel = "apparel"
	// CategoryDigital marks digitally delivered products.
	CategoryDigital = "digital"
)

// Catalog resolves item identifiers to product data and availability.
type Catalog interface {
	Lookup(ctx context.Context, itemID string) (Product, error)
	Available(ctx context.Context, itemID string, quantity int) (bool, error)
}

// StaticCatalog serves products from an in-memory map. Reads are safe for
// concurrent use; the product set is fixed after construction.
type StaticCatalog struct {
	mu       sync.RWMutex
	products map[string]Product
}

// NewStaticCatalog builds a catalog from the supplied products. With no
// products it falls back to the built-in demo assortment.
func NewStaticCatalog(products ...Product) *StaticCatalog {
	if len(products) == 0 {
		products = DefaultProducts()
	}
	index := make(map[string]Product, len(products))
	for _, product := range products {
		id := strings.TrimSpace(product.ID)
		if id == "" {
			continue
		}
		product.ID = id
		if strings.TrimSpace(product.Currency) == "" {
			product.Currency = "USD"
		}
		index[id] = product
	}
	return &StaticCatalog{products: index}
}

// Lookup implements Catalog.
func (c *StaticCatalog) Lookup(_ context.Context, itemID string) (Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	product, ok := c.products[strings.TrimSpace(itemID)]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return product, nil
}

// Available implements Catalog. Unknown products are reported unavailable
// rather than as an error so callers can distinguish the two via Lookup.
func (c *StaticCatalog) Available(_ context.Context, itemID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	product, ok := c.products[strings.TrimSpace(itemID)]
	if !ok {
		return false, nil
	}
	return product.InStock, nil
}

// DefaultProducts returns the demo assortment: four apparel items and one
// digital download, all priced in USD cents.
func DefaultProducts() []Product {
	return []Product{
		{
			ID:          "item_001",
			Name:        "Deluxe Shirt",
			Description: "Premium quality cotton shirt",
			PriceCents:  2600,
			Currency:    "USD",
			Category:    CategoryApparel,
			InStock:     true,
			ImageURL:    "https://cdn.stitchfield.example/images/deluxe-shirt.jpg",
		},
		{
			ID:          "item_002",
			Name:        "Heavyweight",
			Description: "Durable heavyweight t-shirt",
			PriceCents:  2600,
			Currency:    "USD",
			Category:    CategoryApparel,
			InStock:     true,
			ImageURL:    "https://cdn.stitchfield.example/images/heavyweight.jpg",
		},
		{
			ID:          "item_003",
			Name:        "Vintage Tee",
			Description: "Classic vintage style t-shirt",
			PriceCents:  2600,
			Currency:    "USD",
			Category:    CategoryApparel,
			InStock:     true,
			ImageURL:    "https://cdn.stitchfield.example/images/vintage-tee.jpg",
		},
		{
			ID:          "item_004",
			Name:        "Black Hoodie",
			Description: "Comfortable black hoodie",
			PriceCents:  4500,
			Currency:    "USD",
			Category:    CategoryApparel,
			InStock:     true,
			ImageURL:    "https://cdn.stitchfield.example/images/black-hoodie.jpg",
		},
		{
			ID:          "item_005",
			Name:        "Digital Product",
			Description: "Digital download product",
			PriceCents:  1000,
			Currency:    "USD",
			Category:    CategoryDigital,
			InStock:     true,
			ImageURL:    "https://cdn.stitchfield.example/images/digital.jpg",
		},
	}
}
