package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stitchfield/api/internal/catalog"
	"github.com/stitchfield/api/internal/domain"
)

const (
	// FulfillmentOptionIDDigital identifies the instant digital delivery option.
	FulfillmentOptionIDDigital = "fulfillment_digital_001"
	// FulfillmentOptionIDStandard identifies the standard shipping tier.
	FulfillmentOptionIDStandard = "fulfillment_shipping_standard"
	// FulfillmentOptionIDExpress identifies the express shipping tier.
	FulfillmentOptionIDExpress = "fulfillment_shipping_express"

	standardShippingCents int64 = 500
	expressShippingCents  int64 = 1500
)

// fulfillmentSurcharges maps option ids to their shipping cost in cents.
var fulfillmentSurcharges = map[string]int64{
	FulfillmentOptionIDDigital:  0,
	FulfillmentOptionIDStandard: standardShippingCents,
	FulfillmentOptionIDExpress:  expressShippingCents,
}

// FulfillmentSurcharge returns the shipping cost in cents for a known
// fulfillment option id.
func FulfillmentSurcharge(optionID string) (int64, bool) {
	cents, ok := fulfillmentSurcharges[optionID]
	return cents, ok
}

// FulfillmentResolverDeps wires the resolver's dependencies.
type FulfillmentResolverDeps struct {
	Catalog catalog.Catalog
	// Clock supplies the current time for delivery window estimates.
	Clock func() time.Time
}

// FulfillmentResolver derives the delivery options for a priced cart. A
// cart of only digital goods gets a single digital option; any known
// destination address adds the shipping tiers regardless of category mix.
type FulfillmentResolver struct {
	catalog catalog.Catalog
	clock   func() time.Time
}

// NewFulfillmentResolver builds a FulfillmentResolver and validates
// dependencies.
func NewFulfillmentResolver(deps FulfillmentResolverDeps) (*FulfillmentResolver, error) {
	if deps.Catalog == nil {
		return nil, errors.New("fulfillment resolver: catalog is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &FulfillmentResolver{catalog: deps.Catalog, clock: clock}, nil
}

// Resolve computes the fulfillment options for the given line items. Line
// items whose products can no longer be resolved are treated as physical.
func (r *FulfillmentResolver) Resolve(ctx context.Context, address *domain.Address, lineItems []domain.LineItem) ([]domain.FulfillmentOption, error) {
	var itemsSubtotal, itemsTax int64
	allDigital := len(lineItems) > 0
	for _, line := range lineItems {
		itemsSubtotal += line.Subtotal
		itemsTax += line.Tax
		product, err := r.catalog.Lookup(ctx, line.Item.ID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				allDigital = false
				continue
			}
			return nil, fmt.Errorf("fulfillment resolver: lookup %s: %w", line.Item.ID, err)
		}
		if !product.Digital() {
			allDigital = false
		}
	}

	var options []domain.FulfillmentOption
	if allDigital {
		options = append(options, domain.FulfillmentOption{
			Type:     domain.FulfillmentOptionTypeDigital,
			ID:       FulfillmentOptionIDDigital,
			Title:    "Digital Delivery",
			Subtitle: "Instant download",
			Subtotal: domain.FormatCents(itemsSubtotal),
			Tax:      domain.FormatCents(itemsTax),
			Total:    domain.FormatCents(itemsSubtotal + itemsTax),
		})
	}
	if address != nil {
		now := r.clock()
		options = append(options,
			r.shippingOption(FulfillmentOptionIDStandard, "Standard Shipping", "5-7 business days",
				"USPS", standardShippingCents, itemsSubtotal, itemsTax, now.AddDate(0, 0, 5), now.AddDate(0, 0, 7)),
			r.shippingOption(FulfillmentOptionIDExpress, "Express Shipping", "2-3 business days",
				"FedEx", expressShippingCents, itemsSubtotal, itemsTax, now.AddDate(0, 0, 2), now.AddDate(0, 0, 3)),
		)
	}
	return options, nil
}

func (r *FulfillmentResolver) shippingOption(id, title, subtitle, carrier string, costCents, itemsSubtotal, itemsTax int64, earliest, latest time.Time) domain.FulfillmentOption {
	return domain.FulfillmentOption{
		Type:                 domain.FulfillmentOptionTypeShipping,
		ID:                   id,
		Title:                title,
		Subtitle:             subtitle,
		Carrier:              carrier,
		EarliestDeliveryTime: earliest.UTC().Format(time.RFC3339),
		LatestDeliveryTime:   latest.UTC().Format(time.RFC3339),
		Subtotal:             domain.FormatCents(itemsSubtotal),
		Tax:                  domain.FormatCents(itemsTax),
		Total:                domain.FormatCents(itemsSubtotal + itemsTax + costCents),
	}
}
