// Package matching pairs seekers (users who miss a requirement) with
// helpers (users who satisfy it), applying fairness and recency rules.
package matching

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/boardcheck/internal/core/domain"
	"github.com/vietddude/boardcheck/internal/verify/metrics"
	"github.com/vietddude/boardcheck/internal/verify/status"
)

// Config holds matching settings.
type Config struct {
	OfferTTL time.Duration
}

type bucketKey struct {
	BoardID string
	Kind    domain.RequirementKind
}

// bucket holds the two eligibility sets for one (board, kind).
type bucket struct {
	seekers map[int64]struct{}
	helpers map[int64]struct{}
}

// Engine maintains per-(board, kind) seeker/helper sets incrementally from
// status transitions and answers match requests.
type Engine struct {
	cfg    Config
	offers OfferStore
	log    *slog.Logger

	mu          sync.Mutex
	buckets     map[bucketKey]*bucket
	lastMatched map[int64]time.Time

	now   func() time.Time
	newID func() string
}

// NewEngine creates a matching engine storing offers in offers.
func NewEngine(cfg Config, offers OfferStore) *Engine {
	if cfg.OfferTTL <= 0 {
		cfg.OfferTTL = 24 * time.Hour
	}
	return &Engine{
		cfg:         cfg,
		offers:      offers,
		log:         slog.Default().With("component", "matching"),
		buckets:     make(map[bucketKey]*bucket),
		lastMatched: make(map[int64]time.Time),
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Apply updates set membership for one status transition. O(1); wired as a
// status store callback.
func (e *Engine) Apply(t status.Transition) {
	key := bucketKey{BoardID: t.Key.BoardID, Kind: t.Key.Kind}

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.bucketLocked(key)
	delete(b.seekers, t.Key.UserID)
	delete(b.helpers, t.Key.UserID)

	switch t.To {
	case domain.StateSatisfied:
		b.helpers[t.Key.UserID] = struct{}{}
	case domain.StateUnsatisfied, domain.StateUnchecked:
		b.seekers[t.Key.UserID] = struct{}{}
	}
	// PENDING and ERROR belong to neither set.
}

// RequestMatch selects a helper for the seeker on (boardID, kind) and
// emits a time-bounded offer. Helpers are ordered least-recently-offered
// first; among equally recent helpers one with an open need the seeker
// could fulfill wins, then the lowest user id. Pairs with an unexpired
// outstanding offer are excluded. Returns domain.ErrNoneAvailable when no
// helper qualifies.
func (e *Engine) RequestMatch(ctx context.Context, seekerID int64, boardID string, kind domain.RequirementKind) (*domain.MatchOffer, error) {
	key := bucketKey{BoardID: boardID, Kind: kind}

	e.mu.Lock()
	b := e.bucketLocked(key)
	if _, isHelper := b.helpers[seekerID]; isHelper {
		e.mu.Unlock()
		return nil, domain.ErrNoneAvailable
	}

	candidates := make([]int64, 0, len(b.helpers))
	for id := range b.helpers {
		if id != seekerID {
			candidates = append(candidates, id)
		}
	}
	reciprocal := e.reciprocalSetLocked(seekerID)
	last := make(map[int64]time.Time, len(candidates))
	for _, id := range candidates {
		last[id] = e.lastMatched[id]
	}
	e.mu.Unlock()

	sort.Slice(candidates, func(i, j int) bool {
		a, c := candidates[i], candidates[j]
		if !last[a].Equal(last[c]) {
			return last[a].Before(last[c])
		}
		_, aRecip := reciprocal[a]
		_, cRecip := reciprocal[c]
		if aRecip != cRecip {
			return aRecip
		}
		return a < c
	})

	now := e.now()
	for _, helperID := range candidates {
		pairKey := domain.PairKey(helperID, seekerID, boardID, kind)
		existing, err := e.offers.GetPair(ctx, pairKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}

		offer := &domain.MatchOffer{
			ID:        e.newID(),
			HelperID:  helperID,
			SeekerID:  seekerID,
			BoardID:   boardID,
			Kind:      kind,
			CreatedAt: now,
			ExpiresAt: now.Add(e.cfg.OfferTTL),
		}
		if err := e.offers.Put(ctx, offer); err != nil {
			return nil, err
		}

		e.mu.Lock()
		e.lastMatched[helperID] = now
		e.mu.Unlock()

		metrics.MatchesOffered.WithLabelValues(string(kind)).Inc()
		e.log.Debug("Match offered",
			"helper", helperID, "seeker", seekerID, "board", boardID, "kind", kind)
		return offer, nil
	}

	return nil, domain.ErrNoneAvailable
}

// Stats returns seeker/helper counts per (board, kind) for the health view.
func (e *Engine) Stats() map[string]map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]map[string]int, len(e.buckets))
	for key, b := range e.buckets {
		out[key.BoardID+"/"+string(key.Kind)] = map[string]int{
			"seekers": len(b.seekers),
			"helpers": len(b.helpers),
		}
	}
	return out
}

// reciprocalSetLocked returns the helpers who have an open need on a key
// where the seeker is itself a helper. Caller holds e.mu.
func (e *Engine) reciprocalSetLocked(seekerID int64) map[int64]struct{} {
	out := make(map[int64]struct{})
	for _, b := range e.buckets {
		if _, ok := b.helpers[seekerID]; !ok {
			continue
		}
		for id := range b.seekers {
			out[id] = struct{}{}
		}
	}
	return out
}

func (e *Engine) bucketLocked(key bucketKey) *bucket {
	b, ok := e.buckets[key]
	if !ok {
		b = &bucket{
			seekers: make(map[int64]struct{}),
			helpers: make(map[int64]struct{}),
		}
		e.buckets[key] = b
	}
	return b
}
