package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// ReadinessCheck probes one dependency; a non-nil error marks it degraded.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	startedAt time.Time
	clock     func() time.Time
	checks    map[string]ReadinessCheck
}

// HealthOption customises the health handlers before construction.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers builds the health handler set.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:  time.Now,
		checks: make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.startedAt.IsZero() {
		h.startedAt = h.clock()
	}
	return h
}

// WithHealthClock overrides the clock used for uptime and timestamps.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthStartedAt pins the process start time reported in uptime.
func WithHealthStartedAt(t time.Time) HealthOption {
	return func(h *HealthHandlers) {
		h.startedAt = t
	}
}

// WithReadinessCheck registers a named dependency probe for /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && check != nil {
			h.checks[name] = check
		}
	}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.startedAt).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

// Readyz runs every registered dependency probe and reports 503 when any fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.clock()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	checks := make(map[string]map[string]any, len(h.checks))
	details := make([]string, 0)
	for _, name := range names {
		entry := map[string]any{"status": "ok"}
		if err := h.checks[name](ctx); err != nil {
			status = "degraded"
			entry["status"] = "degraded"
			entry["error"] = err.Error()
			details = append(details, fmt.Sprintf("%s: %v", name, err))
		}
		checks[name] = entry
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, code, map[string]any{
		"status":    status,
		"checks":    checks,
		"details":   details,
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}
