package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/stitchfield/api/internal/domain"
	"github.com/stitchfield/api/internal/platform/auth"
	"github.com/stitchfield/api/internal/platform/httpx"
	"github.com/stitchfield/api/internal/platform/requestctx"
	"github.com/stitchfield/api/internal/services"
)

const defaultRateLimitPerMinute = 120

// CheckoutHandlersDeps wires the checkout endpoint dependencies.
type CheckoutHandlersDeps struct {
	Service services.CheckoutSessionService
	// APIVersion is the value the API-Version header must equal.
	APIVersion string
	// RateLimitPerMinute bounds requests per bearer token; zero applies
	// the default, a negative value disables limiting.
	RateLimitPerMinute int
	Clock              func() time.Time
}

// CheckoutHandlers exposes the checkout session endpoints.
type CheckoutHandlers struct {
	service    services.CheckoutSessionService
	apiVersion string
	limiter    rateLimiter
}

// NewCheckoutHandlers builds the handler set and validates dependencies.
func NewCheckoutHandlers(deps CheckoutHandlersDeps) (*CheckoutHandlers, error) {
	if deps.Service == nil {
		return nil, errors.New("checkout handlers: service is required")
	}
	if strings.TrimSpace(deps.APIVersion) == "" {
		return nil, errors.New("checkout handlers: api version is required")
	}
	limit := deps.RateLimitPerMinute
	if limit == 0 {
		limit = defaultRateLimitPerMinute
	}
	var limiter rateLimiter
	if limit > 0 {
		limiter = newSimpleRateLimiter(limit, time.Minute, deps.Clock)
	}
	return &CheckoutHandlers{
		service:    deps.Service,
		apiVersion: strings.TrimSpace(deps.APIVersion),
		limiter:    limiter,
	}, nil
}

// Register mounts the checkout session routes.
func (h *CheckoutHandlers) Register(r chi.Router) {
	r.Use(h.protocolHeaders)
	r.Post("/", h.Create)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/", h.Update)
		r.Post("/complete", h.Complete)
		r.Post("/cancel", h.Cancel)
	})
}

// protocolHeaders enforces the API-Version header, negotiates the response
// language, and applies the per-token rate limit.
func (h *CheckoutHandlers) protocolHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		version := strings.TrimSpace(r.Header.Get("API-Version"))
		if version == "" {
			httpx.WriteError(ctx, w, httpx.NewError("api_version_required", "API-Version header is required", http.StatusBadRequest))
			return
		}
		if version != h.apiVersion {
			httpx.WriteError(ctx, w, httpx.NewError("api_version_unsupported",
				fmt.Sprintf("unsupported API version %q, expected %q", version, h.apiVersion), http.StatusBadRequest))
			return
		}

		if h.limiter != nil {
			key, _ := auth.TokenFromContext(ctx)
			if !h.limiter.Allow(key) {
				httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
				return
			}
		}

		if acceptLanguage := r.Header.Get("Accept-Language"); acceptLanguage != "" {
			if tags, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil && len(tags) > 0 {
				ctx = requestctx.WithLocale(ctx, tags[0])
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type itemPayload struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type buyerPayload struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Email       string  `json:"email"`
	PhoneNumber *string `json:"phone_number"`
}

type addressPayload struct {
	Name       string  `json:"name"`
	LineOne    string  `json:"line_one"`
	LineTwo    *string `json:"line_two"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	Country    string  `json:"country"`
	PostalCode string  `json:"postal_code"`
}

type paymentDataPayload struct {
	Token          string          `json:"token"`
	Provider       string          `json:"provider"`
	BillingAddress *addressPayload `json:"billing_address"`
}

type createSessionPayload struct {
	Buyer              *buyerPayload   `json:"buyer"`
	Items              []itemPayload   `json:"items"`
	FulfillmentAddress *addressPayload `json:"fulfillment_address"`
}

type updateSessionPayload struct {
	Buyer               *buyerPayload   `json:"buyer"`
	Items               *[]itemPayload  `json:"items"`
	FulfillmentAddress  *addressPayload `json:"fulfillment_address"`
	FulfillmentOptionID *string         `json:"fulfillment_option_id"`
}

type completeSessionPayload struct {
	Buyer       *buyerPayload      `json:"buyer"`
	PaymentData paymentDataPayload `json:"payment_data"`
}

// Create handles POST /checkout_sessions.
func (h *CheckoutHandlers) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload createSessionPayload
	if !h.decodeBody(ctx, w, r, &payload) {
		return
	}
	if len(payload.Items) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("items_required", "items must contain at least one entry", http.StatusBadRequest).WithParam("$.items"))
		return
	}
	items, ok := h.validateItems(ctx, w, payload.Items)
	if !ok {
		return
	}

	session, err := h.service.Create(ctx, services.CreateCheckoutSessionCommand{
		Buyer:              buyerFromPayload(payload.Buyer),
		Items:              items,
		FulfillmentAddress: addressFromPayload(payload.FulfillmentAddress),
	})
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, session)
}

// Get handles GET /checkout_sessions/{sessionID}.
func (h *CheckoutHandlers) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.service.Get(ctx, sessionID)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, session)
}

// Update handles POST /checkout_sessions/{sessionID}.
func (h *CheckoutHandlers) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	var payload updateSessionPayload
	if !h.decodeBody(ctx, w, r, &payload) {
		return
	}

	cmd := services.UpdateCheckoutSessionCommand{
		Buyer:               buyerFromPayload(payload.Buyer),
		FulfillmentAddress:  addressFromPayload(payload.FulfillmentAddress),
		FulfillmentOptionID: payload.FulfillmentOptionID,
	}
	if payload.Items != nil {
		if len(*payload.Items) == 0 {
			httpx.WriteError(ctx, w, httpx.NewError("items_required", "items must contain at least one entry", http.StatusBadRequest).WithParam("$.items"))
			return
		}
		items, ok := h.validateItems(ctx, w, *payload.Items)
		if !ok {
			return
		}
		cmd.Items = items
	}

	session, err := h.service.Update(ctx, sessionID, cmd)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, session)
}

// Complete handles POST /checkout_sessions/{sessionID}/complete.
func (h *CheckoutHandlers) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	var payload completeSessionPayload
	if !h.decodeBody(ctx, w, r, &payload) {
		return
	}
	if strings.TrimSpace(payload.PaymentData.Token) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("payment_token_required", "payment_data.token is required", http.StatusBadRequest).WithParam("$.payment_data.token"))
		return
	}

	session, err := h.service.Complete(ctx, sessionID, services.CompleteCheckoutSessionCommand{
		Buyer: buyerFromPayload(payload.Buyer),
		PaymentData: domain.PaymentData{
			Token:          strings.TrimSpace(payload.PaymentData.Token),
			Provider:       strings.TrimSpace(payload.PaymentData.Provider),
			BillingAddress: addressFromPayload(payload.PaymentData.BillingAddress),
		},
	})
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, session)
}

// Cancel handles POST /checkout_sessions/{sessionID}/cancel.
func (h *CheckoutHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.service.Cancel(ctx, sessionID)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, session)
}

func (h *CheckoutHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	data, err := readLimitedBody(r, maxRequestBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("body_required", "request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("body_too_large", "request body exceeds limit", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("body_read_failed", "unable to read request body", http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_json", "request body is not valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func (h *CheckoutHandlers) validateItems(ctx context.Context, w http.ResponseWriter, payload []itemPayload) ([]domain.Item, bool) {
	items := make([]domain.Item, 0, len(payload))
	for i, item := range payload {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			httpx.WriteError(ctx, w, httpx.NewError("item_id_required", "item id must be a non-empty string", http.StatusBadRequest).
				WithParam(fmt.Sprintf("$.items[%d].id", i)))
			return nil, false
		}
		if item.Quantity < 1 {
			httpx.WriteError(ctx, w, httpx.NewError("item_quantity_invalid", "item quantity must be at least 1", http.StatusBadRequest).
				WithParam(fmt.Sprintf("$.items[%d].quantity", i)))
			return nil, false
		}
		items = append(items, domain.Item{ID: id, Quantity: item.Quantity})
	}
	return items, true
}

// writeServiceError maps service sentinel errors onto the protocol's HTTP
// statuses and error envelope.
func (h *CheckoutHandlers) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutSessionInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request cannot be processed", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutSessionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_session_not_found", "checkout session not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutSessionNotCancelable):
		httpx.WriteError(ctx, w, httpx.NewError("cancel_not_allowed", "completed checkout sessions cannot be canceled", http.StatusMethodNotAllowed))
	case errors.Is(err, services.ErrCheckoutSessionTerminal):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_session_terminal", "checkout session is already completed or canceled", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutSessionNotReady):
		httpx.WriteError(ctx, w, httpx.NewError("not_ready_for_payment", "checkout session is not ready for payment", http.StatusPreconditionFailed))
	case errors.Is(err, services.ErrCheckoutSessionPaymentDeclined):
		httpx.WriteError(ctx, w, httpx.NewError("payment_declined", "payment was declined by the provider", http.StatusPaymentRequired))
	case errors.Is(err, services.ErrCheckoutSessionUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "checkout is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		requestctx.Logger(ctx).Error("unhandled checkout error")
		httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
	}
}

func buyerFromPayload(payload *buyerPayload) *domain.Buyer {
	if payload == nil {
		return nil
	}
	buyer := &domain.Buyer{
		FirstName: strings.TrimSpace(payload.FirstName),
		LastName:  strings.TrimSpace(payload.LastName),
		Email:     strings.TrimSpace(payload.Email),
	}
	if payload.PhoneNumber != nil {
		phone := strings.TrimSpace(*payload.PhoneNumber)
		buyer.PhoneNumber = &phone
	}
	return buyer
}

func addressFromPayload(payload *addressPayload) *domain.Address {
	if payload == nil {
		return nil
	}
	address := &domain.Address{
		Name:       strings.TrimSpace(payload.Name),
		LineOne:    strings.TrimSpace(payload.LineOne),
		City:       strings.TrimSpace(payload.City),
		State:      strings.TrimSpace(payload.State),
		Country:    strings.TrimSpace(payload.Country),
		PostalCode: strings.TrimSpace(payload.PostalCode),
	}
	if payload.LineTwo != nil {
		line := strings.TrimSpace(*payload.LineTwo)
		address.LineTwo = &line
	}
	return address
}
