package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stitchfield/api/internal/domain"
	"github.com/stitchfield/api/internal/payments"
	"github.com/stitchfield/api/internal/repositories"
)

const defaultVerifyTimeout = 10 * time.Second

// CheckoutSessionServiceDeps wires the lifecycle manager's dependencies.
type CheckoutSessionServiceDeps struct {
	Store       repositories.SessionStore
	Pricer      LineItemPricer
	Fulfillment FulfillmentOptionResolver
	Verifier    payments.Verifier

	// Currency is the ISO currency code applied to every session.
	Currency string
	// Provider describes the merchant's payment rails on every session.
	Provider domain.PaymentProvider
	// MerchantBaseURL is the base for policy links and order permalinks.
	MerchantBaseURL string
	// VerifyTimeout bounds a single payment verification call.
	VerifyTimeout time.Duration

	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
	// SessionID and OrderID mint ids; defaults produce cs_/order_ ULIDs.
	SessionID func() string
	OrderID   func() string
}

// checkoutSessionService implements CheckoutSessionService. Every mutation
// recomputes the derived state from the merged inputs and replaces the
// stored snapshot whole. Writes to a session are serialised by a per-id
// mutex so read-compute-write cycles do not interleave.
type checkoutSessionService struct {
	store       repositories.SessionStore
	pricer      LineItemPricer
	fulfillment FulfillmentOptionResolver
	verifier    payments.Verifier

	currency        string
	provider        domain.PaymentProvider
	merchantBaseURL string
	verifyTimeout   time.Duration

	clock     func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
	sessionID func() string
	orderID   func() string

	locks sync.Map
}

// NewCheckoutSessionService builds the lifecycle manager and validates
// dependencies.
func NewCheckoutSessionService(deps CheckoutSessionServiceDeps) (CheckoutSessionService, error) {
	if deps.Store == nil {
		return nil, errors.New("checkout session service: store is required")
	}
	if deps.Pricer == nil {
		return nil, errors.New("checkout session service: pricer is required")
	}
	if deps.Fulfillment == nil {
		return nil, errors.New("checkout session service: fulfillment resolver is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("checkout session service: verifier is required")
	}
	svc := &checkoutSessionService{
		store:           deps.Store,
		pricer:          deps.Pricer,
		fulfillment:     deps.Fulfillment,
		verifier:        deps.Verifier,
		currency:        deps.Currency,
		provider:        deps.Provider,
		merchantBaseURL: strings.TrimRight(deps.MerchantBaseURL, "/"),
		verifyTimeout:   deps.VerifyTimeout,
		clock:           deps.Clock,
		logger:          deps.Logger,
		sessionID:       deps.SessionID,
		orderID:         deps.OrderID,
	}
	if svc.currency == "" {
		svc.currency = "USD"
	}
	if svc.provider.Provider == "" {
		svc.provider = domain.PaymentProvider{
			Provider:                "stripe",
			SupportedPaymentMethods: []string{"card"},
		}
	}
	if svc.merchantBaseURL == "" {
		svc.merchantBaseURL = "https://merchant.example.com"
	}
	if svc.verifyTimeout <= 0 {
		svc.verifyTimeout = defaultVerifyTimeout
	}
	if svc.clock == nil {
		svc.clock = func() time.Time { return time.Now().UTC() }
	}
	if svc.logger == nil {
		svc.logger = func(context.Context, string, map[string]any) {}
	}
	if svc.sessionID == nil {
		svc.sessionID = func() string { return "cs_" + newULID() }
	}
	if svc.orderID == nil {
		svc.orderID = func() string { return "order_" + newULID() }
	}
	return svc, nil
}

func newULID() string {
	return strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String())
}

// lock serialises mutations for one session id and returns the unlock func.
func (s *checkoutSessionService) lock(sessionID string) func() {
	mu, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func (s *checkoutSessionService) Create(ctx context.Context, cmd CreateCheckoutSessionCommand) (domain.CheckoutSession, error) {
	if len(cmd.Items) == 0 {
		return domain.CheckoutSession{}, fmt.Errorf("%w: items are required", ErrCheckoutSessionInvalidInput)
	}

	id := s.sessionID()
	session, err := s.derive(ctx, deriveInput{
		id:         id,
		buyer:      cmd.Buyer,
		items:      cmd.Items,
		address:    cmd.FulfillmentAddress,
		autoSelect: true,
	})
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	session.Links = s.policyLinks()

	if err := s.store.PutSession(ctx, session); err != nil {
		return domain.CheckoutSession{}, s.storeFailure(ctx, "checkout_session.create", id, err)
	}
	s.logger(ctx, "checkout_session.created", map[string]any{
		"session_id": id,
		"status":     string(session.Status),
		"item_count": len(session.LineItems),
	})
	return session, nil
}

func (s *checkoutSessionService) Get(ctx context.Context, id string) (domain.CheckoutSession, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return domain.CheckoutSession{}, s.storeFailure(ctx, "checkout_session.get", id, err)
	}
	return session, nil
}

func (s *checkoutSessionService) Update(ctx context.Context, id string, cmd UpdateCheckoutSessionCommand) (domain.CheckoutSession, error) {
	unlock := s.lock(id)
	defer unlock()

	existing, err := s.store.GetSession(ctx, id)
	if err != nil {
		return domain.CheckoutSession{}, s.storeFailure(ctx, "checkout_session.update", id, err)
	}
	if existing.Status.Terminal() {
		return domain.CheckoutSession{}, fmt.Errorf("%w: session %s is %s", ErrCheckoutSessionTerminal, id, existing.Status)
	}

	buyer := existing.Buyer
	if cmd.Buyer != nil {
		buyer = cmd.Buyer
	}
	items := cmd.Items
	if items == nil {
		items = make([]domain.Item, 0, len(existing.LineItems))
		for _, line := range existing.LineItems {
			items = append(items, line.Item)
		}
	}
	address := existing.FulfillmentAddress
	if cmd.FulfillmentAddress != nil {
		address = cmd.FulfillmentAddress
	}
	optionID := existing.FulfillmentOptionID
	if cmd.FulfillmentOptionID != nil {
		optionID = *cmd.FulfillmentOptionID
	}

	session, err := s.derive(ctx, deriveInput{
		id:       id,
		buyer:    buyer,
		items:    items,
		address:  address,
		optionID: optionID,
	})
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	session.Links = existing.Links

	if err := s.store.PutSession(ctx, session); err != nil {
		return domain.CheckoutSession{}, s.storeFailure(ctx, "checkout_session.update", id, err)
	}
	s.logger(ctx, "checkout_session.updated", map[string]any{
		"session_id": id,
		"status":     string(session.Status),
	})
	return session, nil
}

func (s *checkoutSessionService) Complete(ctx context.Context, id string, cmd CompleteCheckoutSessionCommand) (domain.CheckoutSession, error) {
	if cmd.PaymentData.Token == "" {
		return domain.CheckoutSession{}, fmt.Errorf("%w: payment token is required", ErrCheckoutSessionInvalidInput)
	}

	unlock := s.lock(id)
	defer unlock()

	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return domain.CheckoutSession{}, s.storeFailure(ctx, "checkout_session.complete", id, err)
	}
	if session.Status.Terminal() {
		return domain.CheckoutSession{}, fmt.Errorf("%w: session %s is %s", ErrCheckoutSessionTerminal, id, session.Status)
	}
	if session.Status != domain.StatusReadyForPayment {
		return domain.CheckoutSession{}, fmt.Errorf("%w: status %s", ErrCheckoutSessionNotReady, session.Status)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()
	result, err := s.verifier.Verify(verifyCtx, payments.VerifyRequest{
		Token:          cmd.PaymentData.Token,
		Provider:       cmd.PaymentData.Provider,
		BillingAddress: cmd.PaymentData.BillingAddress,
	})
	if err != nil {
		if errors.Is(err, payments.ErrVerifierInvalidInput) {
			return domain.CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutSessionInvalidInput, err)
		}
		s.logger(ctx, "checkout_session.verify_failed", map[string]any{
			"session_id": id,
			"error":      err.Error(),
		})
		return domain.CheckoutSession{}, fmt.Errorf("%w: payment verification: %v", ErrCheckoutSessionUnavailable, err)
	}
	if !result.Accepted {
		s.logger(ctx, "checkout_session.payment_declined", map[string]any{
			"session_id":   id,
			"decline_code": result.DeclineCode,
		})
		return domain.CheckoutSession{}, fmt.Errorf("%w: %s", ErrCheckoutSessionPaymentDeclined, result.DeclineCode)
	}

	orderID := s.orderID()
	order := domain.Order{
		ID:                orderID,
		CheckoutSessionID: id,
		PermalinkURL:      fmt.Sprintf("%s/orders/%s", s.merchantBaseURL, orderID),
	}

	completed := session.Clone()
	if cmd.Buyer != nil {
		completed.Buyer = cmd.Buyer
	}
	completed.Status = domain.StatusCompleted
	completed.Order = &order

	// The session write is the commit point. Once the session is completed a
	// retried request trips the terminal guard above, so a second order can
	// never be minted for this session.
	if err := s.store.PutSession(ctx, completed); err != nil {
		return domain.CheckoutSession{}, s.storeFailure(ctx, "checkout_session.complete", id, err)
	}
	if err := s.store.PutOrder(ctx, order); err != nil {
		return domain.CheckoutSession{}, s.storeFailure(ctx, "checkout_session.complete", id, err)
	}
	s.logger(ctx, "checkout_session.completed", map[string]any{
		"session_id": id,
		"order_id":   order.ID,
	})
	return completed, nil
}

func (s *checkoutSessionService) Cancel(ctx context.Context, id string) (domain.CheckoutSession, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return domain.CheckoutSession{}, s.storeFailure(ctx, "checkout_session.cancel", id, err)
	}
	switch session.Status {
	case domain.StatusCompleted:
		return domain.CheckoutSession{}, fmt.Errorf("%w: session %s is completed", ErrCheckoutSessionNotCancelable, id)
	case domain.StatusCanceled:
		return session, nil
	}

	canceled := session.Clone()
	canceled.Status = domain.StatusCanceled
	if err := s.store.PutSession(ctx, canceled); err != nil {
		return domain.CheckoutSession{}, s.storeFailure(ctx, "checkout_session.cancel", id, err)
	}
	s.logger(ctx, "checkout_session.canceled", map[string]any{"session_id": id})
	return canceled, nil
}

// deriveInput carries the merged inputs of a create or update.
type deriveInput struct {
	id      string
	buyer   *domain.Buyer
	items   []domain.Item
	address *domain.Address
	// optionID is the previously chosen fulfillment option, if any.
	optionID string
	// autoSelect picks the first generated option when an address is
	// present and no option is chosen yet.
	autoSelect bool
}

// derive runs pricing, fulfillment and classification against the merged
// inputs and assembles a fresh session snapshot.
func (s *checkoutSessionService) derive(ctx context.Context, in deriveInput) (domain.CheckoutSession, error) {
	priced, err := s.pricer.Price(ctx, in.items, s.currency)
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutSessionUnavailable, err)
	}

	options, err := s.fulfillment.Resolve(ctx, in.address, priced.LineItems)
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutSessionUnavailable, err)
	}
	if options == nil {
		options = []domain.FulfillmentOption{}
	}

	optionID := in.optionID
	if in.autoSelect && optionID == "" && in.address != nil && len(options) > 0 {
		optionID = options[0].ID
	}
	var selected *domain.FulfillmentOption
	for i := range options {
		if options[i].ID == optionID {
			selected = &options[i]
			break
		}
	}

	status, messages := classifyReadiness(priced, in.address, optionID)
	totals := buildTotals(priced.LineItems, selected)

	return domain.CheckoutSession{
		ID:                  in.id,
		Buyer:               in.buyer,
		PaymentProvider:     s.provider,
		Status:              status,
		Currency:            s.currency,
		LineItems:           priced.LineItems,
		FulfillmentAddress:  in.address,
		FulfillmentOptions:  options,
		FulfillmentOptionID: optionID,
		Totals:              totals,
		Messages:            messages,
	}, nil
}

func (s *checkoutSessionService) policyLinks() []domain.Link {
	return []domain.Link{
		{Type: domain.LinkTypeTermsOfUse, URL: s.merchantBaseURL + "/terms"},
		{Type: domain.LinkTypePrivacyPolicy, URL: s.merchantBaseURL + "/privacy"},
	}
}

// storeFailure maps a store error onto the service's sentinel errors and
// logs non-lookup failures.
func (s *checkoutSessionService) storeFailure(ctx context.Context, event, id string, err error) error {
	var storeErr repositories.StoreError
	if errors.As(err, &storeErr) {
		switch {
		case storeErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrCheckoutSessionNotFound, id)
		case storeErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCheckoutSessionTerminal, err)
		}
	}
	s.logger(ctx, event+".store_error", map[string]any{
		"session_id": id,
		"error":      err.Error(),
	})
	return fmt.Errorf("%w: %v", ErrCheckoutSessionUnavailable, err)
}
