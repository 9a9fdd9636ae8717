// Package store provides storage backends for CartRescue.
//
// This file implements an in-memory cart store used by unit tests and by
// local development runs without a database.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/CartRescue/internal/models"
)

// Compile-time check that InMemoryStore implements CartStore.
var _ CartStore = (*InMemoryStore)(nil)

// InMemoryStore keeps carts and run reports in process memory. The claim
// transition runs under the store mutex, giving the same one-winner
// guarantee as the SQL backends.
type InMemoryStore struct {
	mu      sync.Mutex
	carts   map[string]models.AbandonedCart
	reports []models.RunReport
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{carts: make(map[string]models.AbandonedCart)}
}

func (s *InMemoryStore) SaveCart(cart models.AbandonedCart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[cart.ID] = cloneCart(cart)
	return nil
}

func (s *InMemoryStore) GetCart(id string) (*models.AbandonedCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[id]
	if !ok {
		return nil, nil
	}
	out := cloneCart(c)
	return &out, nil
}

func (s *InMemoryStore) ListAbandonedCarts(oldest, newest time.Time, limit int) ([]models.AbandonedCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var carts []models.AbandonedCart
	for _, c := range s.carts {
		if c.EmailSent || c.Recovered {
			continue
		}
		if c.LastModified.Before(oldest) || !c.LastModified.Before(newest) {
			continue
		}
		carts = append(carts, cloneCart(c))
	}
	sort.Slice(carts, func(i, j int) bool {
		return carts[i].LastModified.Before(carts[j].LastModified)
	})
	if limit > 0 && len(carts) > limit {
		carts = carts[:limit]
	}
	return carts, nil
}

func (s *InMemoryStore) ClaimCart(id, token string, sentAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[id]
	if !ok || c.EmailSent || c.Recovered {
		return false, nil
	}
	c.EmailSent = true
	sent := sentAt
	c.EmailSentAt = &sent
	c.RecoveryToken = token
	c.Status = models.CartStatusRecoveryEmailSent
	s.carts[id] = c
	return true, nil
}

func (s *InMemoryStore) RecoverCartByToken(token string) (*models.AbandonedCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.carts {
		if c.RecoveryToken == token && token != "" {
			c.Recovered = true
			c.Status = models.CartStatusRecovered
			s.carts[id] = c
			out := cloneCart(c)
			return &out, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) SaveRunReport(report models.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

func (s *InMemoryStore) ListRunReports(limit int) ([]models.RunReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reports := make([]models.RunReport, len(s.reports))
	copy(reports, s.reports)
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].StartedAt.After(reports[j].StartedAt)
	})
	if limit > 0 && len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

func (s *InMemoryStore) Ping() error {
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

// cloneCart copies a cart so callers cannot mutate stored state through
// shared slices or pointers.
func cloneCart(c models.AbandonedCart) models.AbandonedCart {
	out := c
	if c.Items != nil {
		out.Items = make([]models.CartItem, len(c.Items))
		copy(out.Items, c.Items)
	}
	if c.EmailSentAt != nil {
		t := *c.EmailSentAt
		out.EmailSentAt = &t
	}
	return out
}
