package repositories

import (
	"context"

	"github.com/stitchfield/api/internal/domain"
)

// StoreError wraps persistence failures with the categorisation used by services.
type StoreError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// SessionStore owns checkout session and order snapshots keyed by session
// id. Put replaces the whole aggregate atomically per key; implementations
// must never hand out aliases of stored state.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (domain.CheckoutSession, error)
	PutSession(ctx context.Context, session domain.CheckoutSession) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	PutOrder(ctx context.Context, order domain.Order) error
}
