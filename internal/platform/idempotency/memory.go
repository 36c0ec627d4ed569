package idempotency

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps idempotency entries in a process-local map. It backs the
// single-instance deployment and the tests; a multi-instance deployment would
// plug a durable Store into the middleware instead.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Claim takes ownership of key for the caller, or reports what an earlier
// request with the same key left behind. Expired entries are reclaimed.
func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := entryID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if ok && entry.expired(now) {
		delete(s.entries, id)
		ok = false
	}
	if !ok {
		entry = Entry{
			Key:         key,
			Fingerprint: fingerprint,
			FirstSeen:   now,
			ExpiresAt:   now.Add(ttl),
		}
		s.entries[id] = entry
		return Claim{Outcome: ClaimAccepted, Entry: entry}, nil
	}
	if entry.Fingerprint != fingerprint {
		return Claim{}, ErrKeyReused
	}
	if entry.Done {
		return Claim{Outcome: ClaimReplay, Entry: cloneEntry(entry)}, nil
	}
	return Claim{Outcome: ClaimInFlight, Entry: cloneEntry(entry)}, nil
}

// Complete records the response for key so later claims replay it.
func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp StoredResponse, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := entryID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if ok && entry.Fingerprint != fingerprint {
		return ErrKeyReused
	}
	if !ok {
		entry = Entry{Key: key, Fingerprint: fingerprint, FirstSeen: now}
	}
	entry.Done = true
	entry.Response = StoredResponse{
		StatusCode: resp.StatusCode,
		Header:     storableHeader(resp.Header),
	}
	if len(resp.Body) > 0 {
		entry.Response.Body = append([]byte(nil), resp.Body...)
	}
	entry.ExpiresAt = now.Add(ttl)
	s.entries[id] = entry
	return nil
}

// Forget drops the entry for key so a retry can claim it fresh.
func (s *MemoryStore) Forget(_ context.Context, key, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, entryID(key))
	return nil
}

// Sweep removes up to limit expired entries and reports how many were dropped.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	removed := 0
	for id, entry := range s.entries {
		if removed >= limit {
			break
		}
		if !entry.expired(now) {
			continue
		}
		delete(s.entries, id)
		removed++
	}
	return removed, nil
}

func cloneEntry(e Entry) Entry {
	out := e
	out.Response = StoredResponse{StatusCode: e.Response.StatusCode}
	if len(e.Response.Header) > 0 {
		out.Response.Header = make(http.Header, len(e.Response.Header))
		for name, values := range e.Response.Header {
			out.Response.Header[name] = append([]string(nil), values...)
		}
	}
	if len(e.Response.Body) > 0 {
		out.Response.Body = append([]byte(nil), e.Response.Body...)
	}
	return out
}

func entryID(key string) string {
	return strings.TrimSpace(key)
}
