package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/boardcheck/internal/core/domain"
)

func offerKey(pairKey string) string {
	return fmt.Sprintf("match_offer:%s", pairKey)
}

// OfferStore persists match offers with their TTL as the Redis key expiry,
// so offers survive restarts and expire without a sweep.
type OfferStore struct {
	client *Client
	now    func() time.Time
}

// NewOfferStore creates an offer store on an existing client.
func NewOfferStore(client *Client) *OfferStore {
	return &OfferStore{client: client, now: time.Now}
}

// Put stores an offer under its pair key, expiring at offer.ExpiresAt.
func (s *OfferStore) Put(ctx context.Context, offer *domain.MatchOffer) error {
	data, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("marshal offer: %w", err)
	}
	ttl := offer.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.rdb.Set(ctx, offerKey(offer.PairKey()), data, ttl).Err(); err != nil {
		return fmt.Errorf("store offer: %w", err)
	}
	return nil
}

// GetPair returns the unexpired offer for a pair key, or nil.
func (s *OfferStore) GetPair(ctx context.Context, pairKey string) (*domain.MatchOffer, error) {
	data, err := s.client.rdb.Get(ctx, offerKey(pairKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load offer: %w", err)
	}
	var offer domain.MatchOffer
	if err := json.Unmarshal(data, &offer); err != nil {
		return nil, fmt.Errorf("decode offer: %w", err)
	}
	if offer.Expired(s.now()) {
		return nil, nil
	}
	return &offer, nil
}
