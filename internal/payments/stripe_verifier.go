package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

type stripePaymentMethodAPI interface {
	Get(id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)
}

// StripeVerifierConfig configures the StripeVerifier.
type StripeVerifierConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	// API overrides the payment method client, primarily for tests.
	API stripePaymentMethodAPI
}

// StripeVerifier validates payment tokens by resolving them as Stripe
// payment methods. Unknown tokens and card errors surface as declines;
// transport failures surface as ErrVerifierUnavailable.
type StripeVerifier struct {
	api     stripePaymentMethodAPI
	account string
}

// NewStripeVerifier constructs a StripeVerifier from the configuration.
func NewStripeVerifier(cfg StripeVerifierConfig) (*StripeVerifier, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.API == nil {
		return nil, errors.New("stripe: api key is required")
	}

	api := cfg.API
	if api == nil {
		sc := client.New(apiKey, cfg.Backends)
		api = sc.PaymentMethods
	}

	return &StripeVerifier{
		api:     api,
		account: strings.TrimSpace(cfg.AccountID),
	}, nil
}

// Verify implements Verifier.
func (v *StripeVerifier) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	if v == nil || v.api == nil {
		return VerifyResult{}, ErrVerifierUnavailable
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		return VerifyResult{}, ErrVerifierInvalidInput
	}

	params := &stripe.PaymentMethodParams{}
	params.Context = ctx
	if v.account != "" {
		params.SetStripeAccount(v.account)
	}

	pm, err := v.api.Get(token, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return VerifyResult{}, ErrVerifierUnavailable
		}
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			switch stripeErr.Type {
			case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
				code := string(stripeErr.Code)
				if code == "" {
					code = "card_declined"
				}
				return VerifyResult{Accepted: false, DeclineCode: code}, nil
			}
		}
		return VerifyResult{}, ErrVerifierUnavailable
	}

	if pm == nil || strings.TrimSpace(pm.ID) == "" {
		return VerifyResult{Accepted: false, DeclineCode: "invalid_payment_method"}, nil
	}
	return VerifyResult{Accepted: true}, nil
}
