package matching

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/boardcheck/internal/core/domain"
)

// OfferStore holds outstanding match offers keyed by (helper, seeker,
// board, kind). Implementations expire offers at ExpiresAt; lookups after
// that return nil.
type OfferStore interface {
	// Put stores an offer under its pair key.
	Put(ctx context.Context, offer *domain.MatchOffer) error

	// GetPair returns the unexpired offer for a pair key, or nil.
	GetPair(ctx context.Context, pairKey string) (*domain.MatchOffer, error)
}

// MemoryOfferStore keeps offers in-process with lazy expiry.
type MemoryOfferStore struct {
	mu     sync.Mutex
	offers map[string]*domain.MatchOffer
	now    func() time.Time
}

func NewMemoryOfferStore() *MemoryOfferStore {
	return &MemoryOfferStore{
		offers: make(map[string]*domain.MatchOffer),
		now:    time.Now,
	}
}

func (s *MemoryOfferStore) Put(ctx context.Context, offer *domain.MatchOffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *offer
	s.offers[offer.PairKey()] = &copied
	return nil
}

func (s *MemoryOfferStore) GetPair(ctx context.Context, pairKey string) (*domain.MatchOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	offer, ok := s.offers[pairKey]
	if !ok {
		return nil, nil
	}
	if offer.Expired(s.now()) {
		delete(s.offers, pairKey)
		return nil, nil
	}
	copied := *offer
	return &copied, nil
}
