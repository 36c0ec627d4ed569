package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/stitchfield/api/internal/domain"
)

// SessionStore is the in-memory SessionStore implementation. Sessions and
// orders live for the process lifetime; every read and write deep-copies
// the aggregate so callers never alias stored state.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.CheckoutSession
	orders   map[string]domain.Order
}

// NewSessionStore constructs an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.CheckoutSession),
		orders:   make(map[string]domain.Order),
	}
}

// GetSession implements repositories.SessionStore.
func (s *SessionStore) GetSession(_ context.Context, sessionID string) (domain.CheckoutSession, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return domain.CheckoutSession{}, notFoundError{resource: "checkout session", id: sessionID}
	}

	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return domain.CheckoutSession{}, notFoundError{resource: "checkout session", id: id}
	}
	return session.Clone(), nil
}

// PutSession implements repositories.SessionStore. The stored snapshot is
// replaced wholesale; partial updates are not supported.
func (s *SessionStore) PutSession(_ context.Context, session domain.CheckoutSession) error {
	id := strings.TrimSpace(session.ID)
	if id == "" {
		return invalidError{reason: "session id required"}
	}

	s.mu.Lock()
	s.sessions[id] = session.Clone()
	s.mu.Unlock()
	return nil
}

// GetOrder implements repositories.SessionStore.
func (s *SessionStore) GetOrder(_ context.Context, orderID string) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, notFoundError{resource: "order", id: orderID}
	}

	s.mu.RLock()
	order, ok := s.orders[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Order{}, notFoundError{resource: "order", id: id}
	}
	return order, nil
}

// PutOrder implements repositories.SessionStore. Orders are immutable;
// overwriting an existing order id is rejected as a conflict.
func (s *SessionStore) PutOrder(_ context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return invalidError{reason: "order id required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[id]; exists {
		return conflictError{resource: "order", id: id}
	}
	s.orders[id] = order
	return nil
}

type notFoundError struct {
	resource string
	id       string
}

func (e notFoundError) Error() string       { return fmt.Sprintf("%s %q not found", e.resource, e.id) }
func (e notFoundError) IsNotFound() bool    { return true }
func (e notFoundError) IsConflict() bool    { return false }
func (e notFoundError) IsUnavailable() bool { return false }

type conflictError struct {
	resource string
	id       string
}

func (e conflictError) Error() string       { return fmt.Sprintf("%s %q already exists", e.resource, e.id) }
func (e conflictError) IsNotFound() bool    { return false }
func (e conflictError) IsConflict() bool    { return true }
func (e conflictError) IsUnavailable() bool { return false }

type invalidError struct {
	reason string
}

func (e invalidError) Error() string       { return "session store: " + e.reason }
func (e invalidError) IsNotFound() bool    { return false }
func (e invalidError) IsConflict() bool    { return false }
func (e invalidError) IsUnavailable() bool { return false }
