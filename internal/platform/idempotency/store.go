package idempotency

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL bounds how long a finished entry can still be replayed.
const DefaultTTL = 24 * time.Hour

// ErrKeyReused is returned when an idempotency key arrives with a request
// fingerprint that differs from the one that first claimed it.
var ErrKeyReused = errors.New("idempotency: key already used by a different request")

// ClaimOutcome tells the middleware what to do after claiming a key.
type ClaimOutcome int

const (
	// ClaimAccepted means the caller now owns the key and should run the handler.
	ClaimAccepted ClaimOutcome = iota
	// ClaimReplay means a finished response exists and must be written back verbatim.
	ClaimReplay
	// ClaimInFlight means another request holds the key and has not finished.
	ClaimInFlight
)

// StoredResponse is the portion of an HTTP response retained for replay.
type StoredResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Entry tracks one idempotency key from first claim to expiry.
type Entry struct {
	Key         string
	Fingerprint string
	Done        bool
	Response    StoredResponse
	FirstSeen   time.Time
	ExpiresAt   time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Claim is the result of attempting to take ownership of a key.
type Claim struct {
	Outcome ClaimOutcome
	Entry   Entry
}

// Store persists idempotency entries. Implementations treat ttl <= 0 as DefaultTTL.
type Store interface {
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error)
	Complete(ctx context.Context, key, fingerprint string, resp StoredResponse, now time.Time, ttl time.Duration) error
	Forget(ctx context.Context, key, fingerprint string) error
	Sweep(ctx context.Context, now time.Time, limit int) (int, error)
}

// storableHeader clones h, dropping hop-by-hop and connection-derived headers
// that must not be served from a cached response.
func storableHeader(h http.Header) http.Header {
	if len(h) == 0 {
		return nil
	}
	out := make(http.Header, len(h))
	for name, values := range h {
		if hopByHopHeader(name) {
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func hopByHopHeader(name string) bool {
	switch strings.ToLower(name) {
	case "content-length", "date", "connection", "keep-alive",
		"proxy-authenticate", "proxy-authorization",
		"te", "trailers", "transfer-encoding", "upgrade":
		return true
	}
	return false
}
