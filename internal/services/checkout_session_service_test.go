package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stitchfield/api/internal/catalog"
	"github.com/stitchfield/api/internal/domain"
	"github.com/stitchfield/api/internal/payments"
	"github.com/stitchfield/api/internal/repositories"
	"github.com/stitchfield/api/internal/repositories/memory"
)

type serviceFixture struct {
	service CheckoutSessionService
	store   *memory.SessionStore
}

func newServiceFixture(t *testing.T, verifier payments.Verifier) *serviceFixture {
	t.Helper()
	store := memory.NewSessionStore()
	return &serviceFixture{
		service: newServiceWithStore(t, store, verifier),
		store:   store,
	}
}

func newServiceWithStore(t *testing.T, store repositories.SessionStore, verifier payments.Verifier) CheckoutSessionService {
	t.Helper()
	c := catalog.NewStaticCatalog(catalog.DefaultProducts()...)
	engine, err := NewPricingEngine(PricingEngineDeps{Catalog: c})
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}
	resolver, err := NewFulfillmentResolver(FulfillmentResolverDeps{
		Catalog: c,
		Clock:   func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewFulfillmentResolver: %v", err)
	}
	if verifier == nil {
		verifier = payments.NewStaticVerifier()
	}
	service, err := NewCheckoutSessionService(CheckoutSessionServiceDeps{
		Store:       store,
		Pricer:      engine,
		Fulfillment: resolver,
		Verifier:    verifier,
	})
	if err != nil {
		t.Fatalf("NewCheckoutSessionService: %v", err)
	}
	return service
}

// orderWriteStore counts order writes and can fail them, for exercising the
// persistence order inside Complete.
type orderWriteStore struct {
	repositories.SessionStore
	failWrites bool
	writes     int
}

func (s *orderWriteStore) PutOrder(ctx context.Context, order domain.Order) error {
	s.writes++
	if s.failWrites {
		return errors.New("order write failed")
	}
	return s.SessionStore.PutOrder(ctx, order)
}

func TestCreateSessionPhysicalNoAddress(t *testing.T) {
	f := newServiceFixture(t, nil)

	session, err := f.service.Create(context.Background(), CreateCheckoutSessionCommand{
		Items: []domain.Item{{ID: "item_001", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(session.ID, "cs_") {
		t.Errorf("session id %q should carry the cs_ prefix", session.ID)
	}
	if session.Status != domain.StatusNotReadyForPayment {
		t.Errorf("status = %s, want not_ready_for_payment", session.Status)
	}
	if len(session.LineItems) != 1 || session.LineItems[0].Total != 2808 {
		t.Fatalf("unexpected line items: %+v", session.LineItems)
	}
	if len(session.FulfillmentOptions) != 0 {
		t.Errorf("expected no fulfillment options without an address, got %d", len(session.FulfillmentOptions))
	}
	if len(session.Messages) != 1 || session.Messages[0].Type != domain.MessageTypeInfo {
		t.Fatalf("expected a single info message, got %+v", session.Messages)
	}
	if len(session.Links) != 2 {
		t.Errorf("expected policy links, got %d", len(session.Links))
	}
}

func TestCreateSessionDigitalIsReady(t *testing.T) {
	f := newServiceFixture(t, nil)

	session, err := f.service.Create(context.Background(), CreateCheckoutSessionCommand{
		Items: []domain.Item{{ID: "item_005", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.Status != domain.StatusReadyForPayment {
		t.Errorf("status = %s, want ready_for_payment", session.Status)
	}
	if len(session.FulfillmentOptions) != 1 || session.FulfillmentOptions[0].Type != domain.FulfillmentOptionTypeDigital {
		t.Fatalf("expected one digital option, got %+v", session.FulfillmentOptions)
	}
	if len(session.Messages) != 0 {
		t.Errorf("expected no messages, got %+v", session.Messages)
	}
}

func TestCreateSessionWithAddressAutoSelects(t *testing.T) {
	f := newServiceFixture(t, nil)

	session, err := f.service.Create(context.Background(), CreateCheckoutSessionCommand{
		Items:              []domain.Item{{ID: "item_001", Quantity: 1}},
		FulfillmentAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.Status != domain.StatusReadyForPayment {
		t.Errorf("status = %s, want ready_for_payment", session.Status)
	}
	if session.FulfillmentOptionID != FulfillmentOptionIDStandard {
		t.Errorf("auto-selected option = %q, want %q", session.FulfillmentOptionID, FulfillmentOptionIDStandard)
	}
	var totalRow *domain.Total
	for i := range session.Totals {
		if session.Totals[i].Type == domain.TotalTypeTotal {
			totalRow = &session.Totals[i]
		}
	}
	// 2600 + 208 tax + 500 standard shipping.
	if totalRow == nil || totalRow.Amount != 3308 {
		t.Fatalf("grand total = %+v, want 3308", totalRow)
	}
}

func TestCreateSessionRequiresItems(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.service.Create(context.Background(), CreateCheckoutSessionCommand{})
	if !errors.Is(err, ErrCheckoutSessionInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.service.Get(context.Background(), "cs_missing")
	if !errors.Is(err, ErrCheckoutSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateSessionAddsAddress(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	created, err := f.service.Create(ctx, CreateCheckoutSessionCommand{
		Items: []domain.Item{{ID: "item_001", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	optionID := FulfillmentOptionIDExpress
	updated, err := f.service.Update(ctx, created.ID, UpdateCheckoutSessionCommand{
		FulfillmentAddress:  testAddress(),
		FulfillmentOptionID: &optionID,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != domain.StatusReadyForPayment {
		t.Errorf("status = %s, want ready_for_payment", updated.Status)
	}
	if updated.FulfillmentOptionID != FulfillmentOptionIDExpress {
		t.Errorf("option id = %q, want express", updated.FulfillmentOptionID)
	}
	if len(updated.FulfillmentOptions) != 2 {
		t.Errorf("expected two shipping options, got %d", len(updated.FulfillmentOptions))
	}
}

func TestUpdateSessionRetainsPriorFields(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	created, err := f.service.Create(ctx, CreateCheckoutSessionCommand{
		Buyer:              &domain.Buyer{FirstName: "Jordan", LastName: "Reyes", Email: "jordan@example.com"},
		Items:              []domain.Item{{ID: "item_001", Quantity: 1}},
		FulfillmentAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := f.service.Update(ctx, created.ID, UpdateCheckoutSessionCommand{
		Items: []domain.Item{{ID: "item_001", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Buyer == nil || updated.Buyer.Email != "jordan@example.com" {
		t.Errorf("buyer not retained: %+v", updated.Buyer)
	}
	if updated.FulfillmentAddress == nil {
		t.Error("address not retained")
	}
	if updated.FulfillmentOptionID != created.FulfillmentOptionID {
		t.Errorf("option id changed: %q -> %q", created.FulfillmentOptionID, updated.FulfillmentOptionID)
	}
	if updated.LineItems[0].BaseAmount != 5200 {
		t.Errorf("base amount = %d, want 5200", updated.LineItems[0].BaseAmount)
	}
}

func TestUpdateSessionUnknownOptionKept(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	created, err := f.service.Create(ctx, CreateCheckoutSessionCommand{
		Items:              []domain.Item{{ID: "item_001", Quantity: 1}},
		FulfillmentAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	bogus := "fulfillment_carrier_pigeon"
	updated, err := f.service.Update(ctx, created.ID, UpdateCheckoutSessionCommand{
		FulfillmentOptionID: &bogus,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.FulfillmentOptionID != bogus {
		t.Errorf("option id = %q, want %q", updated.FulfillmentOptionID, bogus)
	}
	// The unresolved option contributes no fulfillment cost.
	for _, total := range updated.Totals {
		if total.Type == domain.TotalTypeFulfillment {
			t.Fatalf("unexpected fulfillment row: %+v", total)
		}
		if total.Type == domain.TotalTypeTotal && total.Amount != 2808 {
			t.Errorf("total = %d, want 2808", total.Amount)
		}
	}
}

func TestUpdateSessionTerminalRejected(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	created, err := f.service.Create(ctx, CreateCheckoutSessionCommand{
		Items: []domain.Item{{ID: "item_005", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.service.Cancel(ctx, created.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	_, err = f.service.Update(ctx, created.ID, UpdateCheckoutSessionCommand{
		Items: []domain.Item{{ID: "item_005", Quantity: 2}},
	})
	if !errors.Is(err, ErrCheckoutSessionTerminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
}

func TestCompleteSession(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	created, err := f.service.Create(ctx, CreateCheckoutSessionCommand{
		Items: []domain.Item{{ID: "item_005", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	completed, err := f.service.Complete(ctx, created.ID, CompleteCheckoutSessionCommand{
		PaymentData: domain.PaymentData{Token: "tok_visa", Provider: "stripe"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completed.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want completed", completed.Status)
	}
	if completed.Order == nil {
		t.Fatal("expected an order on the completed session")
	}
	if !strings.HasPrefix(completed.Order.ID, "order_") {
		t.Errorf("order id %q should carry the order_ prefix", completed.Order.ID)
	}
	if completed.Order.CheckoutSessionID != created.ID {
		t.Errorf("order references session %q, want %q", completed.Order.CheckoutSessionID, created.ID)
	}
	if !strings.Contains(completed.Order.PermalinkURL, completed.Order.ID) {
		t.Errorf("permalink %q should reference the order id", completed.Order.PermalinkURL)
	}

	stored, err := f.store.GetOrder(ctx, completed.Order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if stored.CheckoutSessionID != created.ID {
		t.Errorf("stored order session = %q, want %q", stored.CheckoutSessionID, created.ID)
	}
}

func TestCompleteSessionNotReady(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	created, err := f.service.Create(ctx, CreateCheckoutSessionCommand{
		Items: []domain.Item{{ID: "item_001", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = f.service.Complete(ctx, created.ID, CompleteCheckoutSessionCommand{
		PaymentData: domain.PaymentData{Token: "tok_visa"},
	})
	if !errors.Is(err, ErrCheckoutSessionNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
}

func TestCompleteSessionTwiceConflicts(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	created, err := f.service.Create(ctx, CreateCheckoutSessionCommand{
		Items: []domain.Item{{ID: "item_005", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	first, err := f.service.Complete(ctx, created.ID, CompleteCheckoutSessionCommand{
		PaymentData: domain.PaymentData{Token: "tok_visa"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	_, err = f.service.Complete(ctx, created.ID, CompleteCheckoutSessionCommand{
		PaymentData: domain.PaymentData{Token: "tok_visa"},
	})
	if !errors.Is(err, ErrCheckoutSessionTerminal) {
		t.Fatalf("expected terminal error on second completion, got %v", err)
	}

	fetched, err := f.service.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.Order == nil || fetched.Order.ID != first.Order.ID {
		t.Errorf("stored order changed: %+v", fetched.Order)
	}
}

func TestCompleteSessionOrderWriteFailureMintsNoSecondOrder(t *testing.T) {
	store := &orderWriteStore{SessionStore: memory.NewSessionStore(), failWrites: true}
	service := newServiceWithStore(t, store, nil)
	ctx := context.Background()

	created, err := service.Create(ctx, CreateCheckoutSessionCommand{
		Items: []domain.Item{{ID: "item_005", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = service.Complete(ctx, created.ID, CompleteCheckoutSessionCommand{
		PaymentData: domain.PaymentData{Token: "tok_visa"},
	})
	if !errors.Is(err, ErrCheckoutSessionUnavailable) {
		t.Fatalf("expected unavailable on order write failure, got %v", err)
	}

	// The completed session is already committed, so a retry must hit the
	// terminal guard instead of charging and minting a second order.
	_, err = service.Complete(ctx, created.ID, CompleteCheckoutSessionCommand{
		PaymentData: domain.PaymentData{Token: "tok_visa"},
	})
	if !errors.Is(err, ErrCheckoutSessionTerminal) {
		t.Fatalf("expected terminal on retry, got %v", err)
	}
	if store.writes != 1 {
		t.Fatalf("order write attempted %d times, want 1", store.writes)
	}

	fetched, err := service.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.Status != domain.StatusCompleted || fetched.Order == nil {
		t.Fatalf("expected committed completion with order, got %+v", fetched)
	}
}

func TestUpdateSessionConcurrentWritersStayConsistent(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	created, err := f.service.Create(ctx, CreateCheckoutSessionCommand{
		Items:              []domain.Item{{ID: "item_001", Quantity: 1}},
		FulfillmentAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(quantity int) {
			defer wg.Done()
			_, err := f.service.Update(ctx, created.ID, UpdateCheckoutSessionCommand{
				Items: []domain.Item{{ID: "item_001", Quantity: quantity}},
			})
			errs <- err
		}(i + 1)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	// Whichever writer landed last, the stored snapshot must be derived from
	// a single read-compute-write cycle, never an interleaving of two.
	final, err := f.service.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(final.LineItems) != 1 {
		t.Fatalf("unexpected line items: %+v", final.LineItems)
	}
	base := final.LineItems[0].BaseAmount
	if base%2600 != 0 {
		t.Errorf("base amount %d is not a whole multiple of the unit price", base)
	}
	if got := totalOfType(final.Totals, domain.TotalTypeItemsBaseAmount); got != base {
		t.Errorf("items_base_amount row = %d, line items say %d", got, base)
	}
	sub := totalOfType(final.Totals, domain.TotalTypeSubtotal)
	tax := totalOfType(final.Totals, domain.TotalTypeTax)
	shipping := totalOfType(final.Totals, domain.TotalTypeFulfillment)
	if got := totalOfType(final.Totals, domain.TotalTypeTotal); got != sub+tax+shipping {
		t.Errorf("grand total %d != %d + %d + %d", got, sub, tax, shipping)
	}
}

func TestCompleteSessionConcurrentMintsSingleOrder(t *testing.T) {
	store := &orderWriteStore{SessionStore: memory.NewSessionStore()}
	service := newServiceWithStore(t, store, nil)
	ctx := context.Background()

	created, err := service.Create(ctx, CreateCheckoutSessionCommand{
		Items: []domain.Item{{ID: "item_005", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Complete(ctx, created.ID, CompleteCheckoutSessionCommand{
				PaymentData: domain.PaymentData{Token: "tok_visa"},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrCheckoutSessionTerminal):
		default:
			t.Fatalf("unexpected completion error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one successful completion, got %d", successes)
	}
	if store.writes != 1 {
		t.Fatalf("expected exactly one order write, got %d", store.writes)
	}
}

func totalOfType(totals []domain.Total, typ domain.TotalType) int64 {
	for _, total := range totals {
		if total.Type == typ {
			return total.Amount
		}
	}
	return 0
}

func TestCompleteSessionDeclined(t *testing.T) {
	f := newServiceFixture(t, payments.VerifierFunc(func(context.Context, payments.VerifyRequest) (payments.VerifyResult, error) {
		return payments.VerifyResult{Accepted: false, DeclineCode: "card_declined"}, nil
	}))
	ctx := context.Background()

	created, err := f.service.Create(ctx, CreateCheckoutSessionCommand{
		Items: []domain.Item{{ID: "item_005", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = f.service.Complete(ctx, created.ID, CompleteCheckoutSessionCommand{
		PaymentData: domain.PaymentData{Token: "declined_tok"},
	})
	if !errors.Is(err, ErrCheckoutSessionPaymentDeclined) {
		t.Fatalf("expected payment declined, got %v", err)
	}

	fetched, err := f.service.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.Status != domain.StatusReadyForPayment {
		t.Errorf("declined completion must not change status, got %s", fetched.Status)
	}
}

func TestCompleteSessionVerifierUnavailable(t *testing.T) {
	f := newServiceFixture(t, payments.VerifierFunc(func(context.Context, payments.VerifyRequest) (payments.VerifyResult, error) {
		return payments.VerifyResult{}, payments.ErrVerifierUnavailable
	}))
	ctx := context.Background()

	created, err := f.service.Create(ctx, CreateCheckoutSessionCommand{
		Items: []domain.Item{{ID: "item_005", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = f.service.Complete(ctx, created.ID, CompleteCheckoutSessionCommand{
		PaymentData: domain.PaymentData{Token: "tok_visa"},
	})
	if !errors.Is(err, ErrCheckoutSessionUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestCompleteSessionRequiresToken(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.service.Complete(context.Background(), "cs_any", CompleteCheckoutSessionCommand{})
	if !errors.Is(err, ErrCheckoutSessionInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCancelSession(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	created, err := f.service.Create(ctx, CreateCheckoutSessionCommand{
		Items: []domain.Item{{ID: "item_001", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	canceled, err := f.service.Cancel(ctx, created.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if canceled.Status != domain.StatusCanceled {
		t.Errorf("status = %s, want canceled", canceled.Status)
	}

	// Canceling again is a no-op returning the same snapshot.
	again, err := f.service.Cancel(ctx, created.ID)
	if err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	if again.Status != domain.StatusCanceled {
		t.Errorf("status = %s, want canceled", again.Status)
	}
}

func TestCancelCompletedSessionRejected(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	created, err := f.service.Create(ctx, CreateCheckoutSessionCommand{
		Items: []domain.Item{{ID: "item_005", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.service.Complete(ctx, created.ID, CompleteCheckoutSessionCommand{
		PaymentData: domain.PaymentData{Token: "tok_visa"},
	}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	_, err = f.service.Cancel(ctx, created.ID)
	if !errors.Is(err, ErrCheckoutSessionNotCancelable) {
		t.Fatalf("expected not cancelable, got %v", err)
	}
}

func TestNewCheckoutSessionServiceValidatesDeps(t *testing.T) {
	_, err := NewCheckoutSessionService(CheckoutSessionServiceDeps{})
	if err == nil {
		t.Fatal("expected dependency validation error")
	}
}
