package matching

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/boardcheck/internal/core/domain"
	"github.com/vietddude/boardcheck/internal/verify/status"
)

func transition(userID int64, boardID string, kind domain.RequirementKind, to domain.RequirementState) status.Transition {
	return status.Transition{
		Key: domain.StatusKey{UserID: userID, BoardID: boardID, Kind: kind},
		To:  to,
		At:  time.Now(),
	}
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(Config{OfferTTL: time.Hour}, NewMemoryOfferStore())
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("offer-%d", n)
	}
	return e
}

func TestApply_SetMembership(t *testing.T) {
	e := testEngine(t)
	const board = "board-1"

	e.Apply(transition(1, board, domain.KindFollowers, domain.StateSatisfied))
	e.Apply(transition(2, board, domain.KindFollowers, domain.StateUnsatisfied))
	e.Apply(transition(3, board, domain.KindFollowers, domain.StatePending))
	e.Apply(transition(4, board, domain.KindFollowers, domain.StateError))

	stats := e.Stats()[board+"/followers"]
	if stats["helpers"] != 1 || stats["seekers"] != 1 {
		t.Fatalf("stats = %v, want 1 helper and 1 seeker", stats)
	}

	// A helper who drops below the threshold moves to the seeker set.
	e.Apply(transition(1, board, domain.KindFollowers, domain.StateUnsatisfied))
	stats = e.Stats()[board+"/followers"]
	if stats["helpers"] != 0 || stats["seekers"] != 2 {
		t.Errorf("stats after flip = %v, want 0 helpers and 2 seekers", stats)
	}
}

func TestRequestMatch_NoHelpers(t *testing.T) {
	e := testEngine(t)
	e.Apply(transition(1, "board-1", domain.KindFollowers, domain.StateUnsatisfied))

	_, err := e.RequestMatch(context.Background(), 1, "board-1", domain.KindFollowers)
	if !errors.Is(err, domain.ErrNoneAvailable) {
		t.Fatalf("err = %v, want ErrNoneAvailable", err)
	}
}

func TestRequestMatch_SatisfiedSeekerRejected(t *testing.T) {
	e := testEngine(t)
	e.Apply(transition(1, "board-1", domain.KindFollowers, domain.StateSatisfied))
	e.Apply(transition(2, "board-1", domain.KindFollowers, domain.StateSatisfied))

	_, err := e.RequestMatch(context.Background(), 1, "board-1", domain.KindFollowers)
	if !errors.Is(err, domain.ErrNoneAvailable) {
		t.Fatalf("err = %v, want ErrNoneAvailable for a helper seeking", err)
	}
}

func TestRequestMatch_RoundRobinFairness(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	const board = "board-1"

	for id := int64(10); id <= 12; id++ {
		e.Apply(transition(id, board, domain.KindFollowers, domain.StateSatisfied))
	}
	// Distinct seekers so pair exclusion never skews the rotation.
	for id := int64(1); id <= 3; id++ {
		e.Apply(transition(id, board, domain.KindFollowers, domain.StateUnsatisfied))
	}

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return clock }

	var helpers []int64
	for id := int64(1); id <= 3; id++ {
		offer, err := e.RequestMatch(ctx, id, board, domain.KindFollowers)
		if err != nil {
			t.Fatalf("RequestMatch(%d): %v", id, err)
		}
		helpers = append(helpers, offer.HelperID)
		clock = clock.Add(time.Minute)
	}

	seen := map[int64]bool{}
	for _, h := range helpers {
		if seen[h] {
			t.Fatalf("helper %d offered twice before rotation completed: %v", h, helpers)
		}
		seen[h] = true
	}
}

func TestRequestMatch_DeterministicByUserID(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	e.Apply(transition(30, "board-1", domain.KindFollowers, domain.StateSatisfied))
	e.Apply(transition(20, "board-1", domain.KindFollowers, domain.StateSatisfied))
	e.Apply(transition(1, "board-1", domain.KindFollowers, domain.StateUnsatisfied))

	offer, err := e.RequestMatch(ctx, 1, "board-1", domain.KindFollowers)
	if err != nil {
		t.Fatalf("RequestMatch: %v", err)
	}
	if offer.HelperID != 20 {
		t.Errorf("HelperID = %d, want lowest id 20", offer.HelperID)
	}
}

func TestRequestMatch_ReciprocityPreferred(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	// Helpers 20 and 30 both satisfy followers on board-1. The seeker (1)
	// satisfies token_holders, which helper 30 still needs. With equal
	// recency, 30 wins despite the higher id.
	e.Apply(transition(20, "board-1", domain.KindFollowers, domain.StateSatisfied))
	e.Apply(transition(30, "board-1", domain.KindFollowers, domain.StateSatisfied))
	e.Apply(transition(1, "board-1", domain.KindFollowers, domain.StateUnsatisfied))
	e.Apply(transition(1, "board-1", domain.KindTokenHolders, domain.StateSatisfied))
	e.Apply(transition(30, "board-1", domain.KindTokenHolders, domain.StateUnsatisfied))

	offer, err := e.RequestMatch(ctx, 1, "board-1", domain.KindFollowers)
	if err != nil {
		t.Fatalf("RequestMatch: %v", err)
	}
	if offer.HelperID != 30 {
		t.Errorf("HelperID = %d, want reciprocal helper 30", offer.HelperID)
	}
}

func TestRequestMatch_RecencyBeatsReciprocity(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	e.Apply(transition(20, "board-1", domain.KindFollowers, domain.StateSatisfied))
	e.Apply(transition(30, "board-1", domain.KindFollowers, domain.StateSatisfied))
	e.Apply(transition(1, "board-1", domain.KindFollowers, domain.StateUnsatisfied))
	e.Apply(transition(1, "board-1", domain.KindTokenHolders, domain.StateSatisfied))
	e.Apply(transition(30, "board-1", domain.KindTokenHolders, domain.StateUnsatisfied))

	// 30 was offered recently; the stale helper 20 goes first even though
	// 30 is the reciprocal candidate.
	e.lastMatched[30] = time.Now()

	offer, err := e.RequestMatch(ctx, 1, "board-1", domain.KindFollowers)
	if err != nil {
		t.Fatalf("RequestMatch: %v", err)
	}
	if offer.HelperID != 20 {
		t.Errorf("HelperID = %d, want least-recently-offered 20", offer.HelperID)
	}
}

func TestRequestMatch_NoDuplicateUnexpiredPair(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	e.Apply(transition(10, "board-1", domain.KindFollowers, domain.StateSatisfied))
	e.Apply(transition(1, "board-1", domain.KindFollowers, domain.StateUnsatisfied))

	first, err := e.RequestMatch(ctx, 1, "board-1", domain.KindFollowers)
	if err != nil {
		t.Fatalf("first RequestMatch: %v", err)
	}
	if first.HelperID != 10 {
		t.Fatalf("HelperID = %d, want 10", first.HelperID)
	}

	// Sole helper is excluded while the pair's offer is outstanding.
	_, err = e.RequestMatch(ctx, 1, "board-1", domain.KindFollowers)
	if !errors.Is(err, domain.ErrNoneAvailable) {
		t.Fatalf("err = %v, want ErrNoneAvailable for repeated pair", err)
	}
}

func TestRequestMatch_ExpiredPairEligibleAgain(t *testing.T) {
	store := NewMemoryOfferStore()
	e := NewEngine(Config{OfferTTL: time.Hour}, store)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return clock }
	store.now = func() time.Time { return clock }

	e.Apply(transition(10, "board-1", domain.KindFollowers, domain.StateSatisfied))
	e.Apply(transition(1, "board-1", domain.KindFollowers, domain.StateUnsatisfied))

	if _, err := e.RequestMatch(ctx, 1, "board-1", domain.KindFollowers); err != nil {
		t.Fatalf("first RequestMatch: %v", err)
	}

	clock = clock.Add(2 * time.Hour)
	offer, err := e.RequestMatch(ctx, 1, "board-1", domain.KindFollowers)
	if err != nil {
		t.Fatalf("RequestMatch after expiry: %v", err)
	}
	if offer.HelperID != 10 {
		t.Errorf("HelperID = %d, want 10 again", offer.HelperID)
	}
}

func TestOfferFields(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return clock }

	e.Apply(transition(10, "board-1", domain.KindTokenHolders, domain.StateSatisfied))
	e.Apply(transition(1, "board-1", domain.KindTokenHolders, domain.StateUnsatisfied))

	offer, err := e.RequestMatch(ctx, 1, "board-1", domain.KindTokenHolders)
	if err != nil {
		t.Fatalf("RequestMatch: %v", err)
	}
	if offer.ID == "" {
		t.Error("offer has no id")
	}
	if offer.BoardID != "board-1" || offer.Kind != domain.KindTokenHolders {
		t.Errorf("offer target = %s/%s", offer.BoardID, offer.Kind)
	}
	if !offer.ExpiresAt.Equal(clock.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want creation plus TTL", offer.ExpiresAt)
	}
}
