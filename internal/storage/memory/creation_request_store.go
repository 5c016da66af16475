package memory

import (
	"context"
	"sync"

	"curve-indexer/internal/domain"
	"curve-indexer/internal/storage"
)

// CreationRequestStore is an in-memory implementation of storage.CreationRequestStore.
type CreationRequestStore struct {
	mu   sync.Mutex
	data map[string]*domain.CreationRequest
}

// NewCreationRequestStore creates a new in-memory creation request store.
func NewCreationRequestStore() *CreationRequestStore {
	return &CreationRequestStore{
		data: make(map[string]*domain.CreationRequest),
	}
}

var _ storage.CreationRequestStore = (*CreationRequestStore)(nil)

func requestKey(network, tokenAddress string) string {
	return network + "|" + tokenAddress
}

// Put stores a request. Returns ErrDuplicateKey if the address is taken.
func (s *CreationRequestStore) Put(_ context.Context, req *domain.CreationRequest) error {
	if req == nil || req.TokenAddress == "" || req.Network == "" {
		return storage.ErrInvalidInput
	}

	key := requestKey(req.Network, req.TokenAddress)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *req
	s.data[key] = &copy
	return nil
}

// Take retrieves and deletes the request for an address in one step.
func (s *CreationRequestStore) Take(_ context.Context, network, tokenAddress string) (*domain.CreationRequest, error) {
	key := requestKey(network, tokenAddress)

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	delete(s.data, key)
	return req, nil
}
