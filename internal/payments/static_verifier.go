package payments

import (
	"context"
	"strings"
)

const defaultDeclinePrefix = "declined_"

// StaticVerifier accepts any non-empty token. Tokens carrying the decline
// prefix are rejected, which lets local environments and tests exercise
// the declined path without a real payment backend.
type StaticVerifier struct {
	declinePrefix string
}

// StaticVerifierOption customises the static verifier.
type StaticVerifierOption func(*StaticVerifier)

// WithDeclinePrefix overrides the token prefix that forces a decline.
func WithDeclinePrefix(prefix string) StaticVerifierOption {
	return func(v *StaticVerifier) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			v.declinePrefix = trimmed
		}
	}
}

// NewStaticVerifier constructs a StaticVerifier.
func NewStaticVerifier(opts ...StaticVerifierOption) *StaticVerifier {
	v := &StaticVerifier{declinePrefix: defaultDeclinePrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Verify implements Verifier.
func (v *StaticVerifier) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	if err := ctx.Err(); err != nil {
		return VerifyResult{}, ErrVerifierUnavailable
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		return VerifyResult{Accepted: false, DeclineCode: "missing_token"}, nil
	}
	if strings.HasPrefix(token, v.declinePrefix) {
		return VerifyResult{Accepted: false, DeclineCode: "card_declined"}, nil
	}
	return VerifyResult{Accepted: true}, nil
}
