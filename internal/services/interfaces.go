package services

import (
	"context"

	"github.com/stitchfield/api/internal/domain"
)

// PriceResult is the outcome of pricing a cart against the catalog.
// Errors carries per-item problems as protocol messages; a cart with
// unresolvable items still prices the rest.
type PriceResult struct {
	LineItems   []domain.LineItem
	Errors      []domain.Message
	HasPhysical bool
	AllDigital  bool
}

// LineItemPricer turns requested items into priced line items.
type LineItemPricer interface {
	Price(ctx context.Context, items []domain.Item, currency string) (PriceResult, error)
}

// FulfillmentOptionResolver computes the delivery options available for a
// priced cart, given the destination known so far.
type FulfillmentOptionResolver interface {
	Resolve(ctx context.Context, address *domain.Address, lineItems []domain.LineItem) ([]domain.FulfillmentOption, error)
}

// CreateCheckoutSessionCommand carries the fields accepted on session creation.
type CreateCheckoutSessionCommand struct {
	Buyer              *domain.Buyer
	Items              []domain.Item
	FulfillmentAddress *domain.Address
}

// UpdateCheckoutSessionCommand carries a partial update. Nil fields retain
// the session's prior value.
type UpdateCheckoutSessionCommand struct {
	Buyer               *domain.Buyer
	Items               []domain.Item
	FulfillmentAddress  *domain.Address
	FulfillmentOptionID *string
}

// CompleteCheckoutSessionCommand carries the payment handoff.
type CompleteCheckoutSessionCommand struct {
	Buyer       *domain.Buyer
	PaymentData domain.PaymentData
}

// CheckoutSessionService drives the checkout session lifecycle.
type CheckoutSessionService interface {
	Create(ctx context.Context, cmd CreateCheckoutSessionCommand) (domain.CheckoutSession, error)
	Get(ctx context.Context, id string) (domain.CheckoutSession, error)
	Update(ctx context.Context, id string, cmd UpdateCheckoutSessionCommand) (domain.CheckoutSession, error)
	Complete(ctx context.Context, id string, cmd CompleteCheckoutSessionCommand) (domain.CheckoutSession, error)
	Cancel(ctx context.Context, id string) (domain.CheckoutSession, error)
}
