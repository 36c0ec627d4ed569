package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/stitchfield/api/internal/catalog"
	"github.com/stitchfield/api/internal/domain"
)

// defaultTaxRateBps is the flat sales tax applied to the cart subtotal,
// in basis points.
const defaultTaxRateBps int64 = 800

// PricingEngineDeps wires the pricing engine's dependencies.
type PricingEngineDeps struct {
	Catalog catalog.Catalog
	// TaxRateBps overrides the flat tax rate when positive.
	TaxRateBps int64
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// PricingEngine prices cart items against the catalog. Items that cannot be
// resolved or fulfilled are reported as messages rather than failures so a
// partially broken cart still returns a priced session.
type PricingEngine struct {
	catalog    catalog.Catalog
	taxRateBps int64
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewPricingEngine builds a PricingEngine and validates dependencies.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.Catalog == nil {
		return nil, errors.New("pricing engine: catalog is required")
	}
	rate := deps.TaxRateBps
	if rate <= 0 {
		rate = defaultTaxRateBps
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PricingEngine{
		catalog:    deps.Catalog,
		taxRateBps: rate,
		logger:     logger,
	}, nil
}

// Price resolves each requested item against the catalog and computes the
// per-line amounts. Unknown items and insufficient stock become error
// messages pointing at the offending cart entry. A non-nil error is returned
// only when the catalog itself is unavailable.
func (e *PricingEngine) Price(ctx context.Context, items []domain.Item, currency string) (PriceResult, error) {
	result := PriceResult{
		LineItems: make([]domain.LineItem, 0, len(items)),
		Errors:    make([]domain.Message, 0),
	}
	for _, item := range items {
		if item.Quantity < 1 {
			result.Errors = append(result.Errors, itemMessage(domain.MessageCodeInvalid, item.ID,
				fmt.Sprintf("Quantity for item %q must be at least 1.", item.ID)))
			continue
		}
		product, err := e.catalog.Lookup(ctx, item.ID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				result.Errors = append(result.Errors, itemMessage(domain.MessageCodeInvalid, item.ID,
					fmt.Sprintf("Item %q is not available.", item.ID)))
				continue
			}
			return PriceResult{}, fmt.Errorf("pricing engine: lookup %s: %w", item.ID, err)
		}
		available, err := e.catalog.Available(ctx, item.ID, item.Quantity)
		if err != nil {
			return PriceResult{}, fmt.Errorf("pricing engine: availability %s: %w", item.ID, err)
		}
		if !available {
			result.Errors = append(result.Errors, itemMessage(domain.MessageCodeOutOfStock, item.ID,
				fmt.Sprintf("Item %q is out of stock.", item.ID)))
			continue
		}

		base := product.PriceCents * int64(item.Quantity)
		var discount int64
		subtotal := base - discount
		tax := subtotal * e.taxRateBps / 10000
		result.LineItems = append(result.LineItems, domain.LineItem{
			ID:         fmt.Sprintf("line_%s_%d", item.ID, item.Quantity),
			Item:       domain.Item{ID: item.ID, Quantity: item.Quantity},
			BaseAmount: base,
			Discount:   discount,
			Subtotal:   subtotal,
			Tax:        tax,
			Total:      subtotal + tax,
		})
		if product.Digital() {
			continue
		}
		result.HasPhysical = true
	}
	result.AllDigital = len(result.LineItems) > 0 && !result.HasPhysical

	if len(result.Errors) > 0 {
		e.logger(ctx, "pricing.cart_errors", map[string]any{
			"error_count": len(result.Errors),
			"item_count":  len(items),
		})
	}
	return result, nil
}

// itemMessage builds an error message whose param points at the cart entry
// with the given item id, as an RFC 9535 path.
func itemMessage(code domain.MessageErrorCode, itemID, content string) domain.Message {
	param := fmt.Sprintf("$.items[?(@.id=='%s')]", itemID)
	return domain.Message{
		Type:        domain.MessageTypeError,
		Code:        code,
		Param:       &param,
		ContentType: domain.ContentTypePlain,
		Content:     content,
	}
}
