package payments

import (
	"context"
	"errors"

	"github.com/stitchfield/api/internal/domain"
)

var (
	// ErrVerifierInvalidInput indicates the verify request is malformed.
	ErrVerifierInvalidInput = errors.New("payments: invalid verify request")
	// ErrVerifierUnavailable indicates the verifier backend could not be reached in time.
	ErrVerifierUnavailable = errors.New("payments: verifier unavailable")
)

// VerifyRequest carries the payment token submitted on session completion.
type VerifyRequest struct {
	Token          string
	Provider       string
	BillingAddress *domain.Address
}

// VerifyResult is the verifier's accept/reject decision. DeclineCode is
// populated only when Accepted is false.
type VerifyResult struct {
	Accepted    bool
	DeclineCode string
}

// Verifier validates payment tokens against the merchant's payment rails.
// A rejected token is reported via VerifyResult, not an error; errors are
// reserved for malformed input and backend failures.
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error)
}

// VerifierFunc adapts ordinary functions to the Verifier interface.
type VerifierFunc func(ctx context.Context, req VerifyRequest) (VerifyResult, error)

// Verify invokes the wrapped function.
func (f VerifierFunc) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	return f(ctx, req)
}
