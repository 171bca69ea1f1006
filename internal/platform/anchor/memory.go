package anchor

import (
	"context"
	"sync"

	"github.com/learnhub/learnhub-purchases/internal/domain"
)

// MemoryStore implements domain.AnchorStore in process memory. Used in tests
// and when the service runs without a database. Anchors do not survive a
// restart, so return reconciliation degrades to indeterminate outcomes.
type MemoryStore struct {
	mu      sync.Mutex
	anchors map[string]string
}

// NewMemoryStore creates an empty in-memory anchor store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{anchors: make(map[string]string)}
}

func (s *MemoryStore) Put(_ context.Context, userID, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchors[userID] = orderID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orderID, ok := s.anchors[userID]
	if !ok {
		return "", domain.ErrNoAnchor
	}
	return orderID, nil
}

func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.anchors, userID)
	return nil
}
