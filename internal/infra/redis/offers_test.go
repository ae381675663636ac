package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/boardcheck/internal/core/domain"
)

func testStore(t *testing.T) (*OfferStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewOfferStore(client), mr
}

func offer(helper, seeker int64, ttl time.Duration) *domain.MatchOffer {
	now := time.Now()
	return &domain.MatchOffer{
		ID:        "offer-1",
		HelperID:  helper,
		SeekerID:  seeker,
		BoardID:   "board-1",
		Kind:      domain.KindFollowers,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestOfferStore_PutGet(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	o := offer(10, 1, time.Hour)
	require.NoError(t, store.Put(ctx, o))

	got, err := store.GetPair(ctx, o.PairKey())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, int64(10), got.HelperID)
	require.Equal(t, int64(1), got.SeekerID)
}

func TestOfferStore_MissingPair(t *testing.T) {
	store, _ := testStore(t)

	got, err := store.GetPair(context.Background(), domain.PairKey(99, 98, "board-1", domain.KindFollowers))
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestOfferStore_ExpiresWithTTL(t *testing.T) {
	store, mr := testStore(t)
	ctx := context.Background()

	o := offer(10, 1, time.Minute)
	require.NoError(t, store.Put(ctx, o))

	mr.FastForward(2 * time.Minute)

	got, err := store.GetPair(ctx, o.PairKey())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestOfferStore_AlreadyExpiredNotStored(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	o := offer(10, 1, -time.Minute)
	require.NoError(t, store.Put(ctx, o))

	got, err := store.GetPair(ctx, o.PairKey())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestOfferStore_PairKeysAreDirectional(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, offer(10, 1, time.Hour)))

	// The reverse pairing has no outstanding offer.
	got, err := store.GetPair(ctx, domain.PairKey(1, 10, "board-1", domain.KindFollowers))
	require.NoError(t, err)
	require.Nil(t, got)
}
