package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/stitchfield/api/internal/platform/httpx"
)

type contextKey string

const tokenContextKey contextKey = "github.com/stitchfield/api/internal/platform/auth/token"

const bearerPrefix = "Bearer "

// RequireBearer enforces the Authorization header contract: the header must
// be present and Bearer-prefixed. When allowedKeys is non-empty, the token
// must additionally match one of them.
func RequireBearer(allowedKeys []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedKeys))
	for _, key := range allowedKeys {
		key = strings.TrimSpace(key)
		if key != "" {
			allowed[key] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("missing_authorization", "Authorization header is required", http.StatusUnauthorized))
				return
			}
			if !strings.HasPrefix(header, bearerPrefix) {
				httpx.WriteError(r.Context(), w, httpx.NewError("invalid_authorization", "Authorization header must use the Bearer scheme", http.StatusUnauthorized))
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
			if token == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("invalid_authorization", "bearer token is empty", http.StatusUnauthorized))
				return
			}
			if len(allowed) > 0 {
				if _, ok := allowed[token]; !ok {
					httpx.WriteError(r.Context(), w, httpx.NewError("invalid_authorization", "bearer token is not recognised", http.StatusUnauthorized))
					return
				}
			}

			ctx := context.WithValue(r.Context(), tokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromContext returns the bearer token accepted for this request.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	token, ok := ctx.Value(tokenContextKey).(string)
	return token, ok && token != ""
}
