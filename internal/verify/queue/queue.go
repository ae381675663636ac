// Package queue implements the deduplicated check queue with retry
// backoff and in-flight tracking.
package queue

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/boardcheck/internal/core/domain"
	"github.com/vietddude/boardcheck/internal/infra/storage"
	"github.com/vietddude/boardcheck/internal/verify/metrics"
)

// Config holds queue behavior settings.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Capacity    int // 0 = unbounded
}

// backoffExpCap bounds the exponent so the shift cannot overflow before
// the MaxDelay cap applies.
const backoffExpCap = 16

type item struct {
	req      domain.CheckRequest
	index    int  // heap index, -1 when in flight
	canceled bool // in-flight item whose result must be discarded
}

// Queue is the durable, deduplicated check queue. Pending requests live in
// a min-heap ordered by (next_attempt_at, enqueued_at); the repository is
// written through on every mutation so the queue survives restarts.
type Queue struct {
	cfg  Config
	repo storage.CheckRepository
	log  *slog.Logger

	mu       sync.Mutex
	items    map[domain.CheckKey]*item
	pending  pendingHeap
	inflight map[domain.CheckKey]*item
	now      func() time.Time
}

// New creates a queue backed by repo.
func New(cfg Config, repo storage.CheckRepository) *Queue {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 30 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 15 * time.Minute
	}
	return &Queue{
		cfg:      cfg,
		repo:     repo,
		log:      slog.Default().With("component", "queue"),
		items:    make(map[domain.CheckKey]*item),
		inflight: make(map[domain.CheckKey]*item),
		now:      time.Now,
	}
}

// Load restores persisted pending requests. Called once at startup before
// workers run.
func (q *Queue) Load(ctx context.Context) error {
	reqs, err := q.repo.ListPending(ctx)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, req := range reqs {
		if _, ok := q.items[req.Key]; ok {
			continue
		}
		it := &item{req: *req}
		q.items[req.Key] = it
		heap.Push(&q.pending, it)
	}
	q.log.Info("Restored pending checks", "count", len(q.pending))
	metrics.QueueDepth.Set(float64(len(q.pending)))
	return nil
}

// Enqueue adds a request or refreshes an existing one with the same key.
// Refreshing resets the attempt counter and due time; it never duplicates.
// An in-flight key is a no-op; a canceled in-flight key is re-armed so the
// running check serves the new request.
func (q *Queue) Enqueue(ctx context.Context, req domain.CheckRequest) error {
	now := q.now()
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = now
	}
	if req.NextAttemptAt.IsZero() {
		req.NextAttemptAt = now
	}
	req.AttemptCount = 0

	q.mu.Lock()
	defer q.mu.Unlock()

	if it, ok := q.inflight[req.Key]; ok {
		if it.canceled {
			// The running check was canceled, so its result would be
			// discarded. Re-arm the in-flight slot so it serves this
			// fresh request instead of losing it.
			it.canceled = false
			it.req.Origin = req.Origin
			it.req.AttemptCount = 0
			return q.persistLocked(ctx, &it.req)
		}
		// A check for this key is already running; its result is as
		// fresh as a new one would be. Enqueueing again would break the
		// one-in-flight-per-key guarantee.
		return nil
	}

	if it, ok := q.items[req.Key]; ok && it.index >= 0 {
		it.req.Origin = req.Origin
		it.req.AttemptCount = 0
		it.req.NextAttemptAt = req.NextAttemptAt
		heap.Fix(&q.pending, it.index)
		return q.persistLocked(ctx, &it.req)
	}

	if q.cfg.Capacity > 0 && len(q.pending) >= q.cfg.Capacity {
		if !q.evictLocked(ctx) {
			// Only user-initiated requests remain; the overflow must
			// surface rather than silently drop one.
			return domain.ErrQueueFull
		}
	}

	it := &item{req: req}
	q.items[req.Key] = it
	heap.Push(&q.pending, it)
	metrics.QueueDepth.Set(float64(len(q.pending)))
	return q.persistLocked(ctx, &it.req)
}

// evictLocked drops the oldest rescan-originated pending request to make
// room. User-initiated requests are never evicted.
func (q *Queue) evictLocked(ctx context.Context) bool {
	var victim *item
	for _, it := range q.items {
		if it.index < 0 || it.req.Origin != domain.OriginRescan {
			continue
		}
		if victim == nil || it.req.EnqueuedAt.Before(victim.req.EnqueuedAt) {
			victim = it
		}
	}
	if victim == nil {
		return false
	}
	heap.Remove(&q.pending, victim.index)
	delete(q.items, victim.req.Key)
	if err := q.repo.Delete(ctx, victim.req.Key); err != nil {
		q.log.Warn("Failed to delete evicted check", "key", victim.req.Key, "error", err)
	}
	q.log.Debug("Evicted rescan check on overflow", "key", victim.req.Key)
	metrics.QueueEvictions.Inc()
	return true
}

// DequeueReady returns up to max requests due now and marks them in
// flight. A key already in flight cannot be returned again until it is
// completed or released.
func (q *Queue) DequeueReady(max int) []domain.CheckRequest {
	now := q.now()

	q.mu.Lock()
	defer q.mu.Unlock()

	var out []domain.CheckRequest
	for len(out) < max && len(q.pending) > 0 {
		head := q.pending[0]
		if head.req.NextAttemptAt.After(now) {
			break
		}
		heap.Pop(&q.pending)
		head.index = -1
		q.inflight[head.req.Key] = head
		out = append(out, head.req)
	}
	metrics.QueueDepth.Set(float64(len(q.pending)))
	metrics.QueueInFlight.Set(float64(len(q.inflight)))
	return out
}

// NextDue reports when the head of the queue becomes ready. ok is false
// when nothing is pending.
func (q *Queue) NextDue() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return time.Time{}, false
	}
	return q.pending[0].req.NextAttemptAt, true
}

// Complete removes a finished in-flight request. It returns false when the
// request was canceled or superseded while running, in which case the
// caller must discard the result.
func (q *Queue) Complete(ctx context.Context, key domain.CheckKey) bool {
	q.mu.Lock()
	it, ok := q.inflight[key]
	if !ok {
		q.mu.Unlock()
		return false
	}
	delete(q.inflight, key)
	canceled := it.canceled
	if cur, present := q.items[key]; present && cur == it {
		delete(q.items, key)
	}
	metrics.QueueInFlight.Set(float64(len(q.inflight)))
	q.mu.Unlock()

	if err := q.repo.Delete(ctx, key); err != nil {
		q.log.Warn("Failed to delete completed check", "key", key, "error", err)
	}
	return !canceled
}

// Release returns an in-flight request to the pending set without
// counting an attempt, due again after delay. Used when the failure was
// not the request's fault, such as a provider-wide rate limit. A canceled
// request is dropped instead.
func (q *Queue) Release(ctx context.Context, key domain.CheckKey, delay time.Duration) {
	q.mu.Lock()
	it, ok := q.inflight[key]
	if !ok {
		q.mu.Unlock()
		return
	}
	delete(q.inflight, key)
	metrics.QueueInFlight.Set(float64(len(q.inflight)))

	if it.canceled {
		if cur, present := q.items[key]; present && cur == it {
			delete(q.items, key)
		}
		q.mu.Unlock()
		if err := q.repo.Delete(ctx, key); err != nil {
			q.log.Warn("Failed to delete canceled check", "key", key, "error", err)
		}
		return
	}

	it.req.NextAttemptAt = q.now().Add(delay)
	heap.Push(&q.pending, it)
	metrics.QueueDepth.Set(float64(len(q.pending)))
	q.mu.Unlock()

	_ = q.persist(ctx, &it.req)
}

// RequeueAfterFailure returns a failed in-flight request to the pending
// set with exponential backoff. After MaxAttempts the request is dropped
// and ErrRetriesExhausted returned so the caller can mark the status ERROR.
// A canceled request is dropped silently.
func (q *Queue) RequeueAfterFailure(ctx context.Context, key domain.CheckKey) error {
	now := q.now()

	q.mu.Lock()
	it, ok := q.inflight[key]
	if !ok {
		q.mu.Unlock()
		return nil
	}
	delete(q.inflight, key)
	metrics.QueueInFlight.Set(float64(len(q.inflight)))

	if it.canceled {
		if cur, present := q.items[key]; present && cur == it {
			delete(q.items, key)
		}
		q.mu.Unlock()
		if err := q.repo.Delete(ctx, key); err != nil {
			q.log.Warn("Failed to delete canceled check", "key", key, "error", err)
		}
		return nil
	}

	it.req.AttemptCount++
	if it.req.AttemptCount >= q.cfg.MaxAttempts {
		if cur, present := q.items[key]; present && cur == it {
			delete(q.items, key)
		}
		q.mu.Unlock()
		if err := q.repo.Delete(ctx, key); err != nil {
			q.log.Warn("Failed to delete exhausted check", "key", key, "error", err)
		}
		return domain.ErrRetriesExhausted
	}

	it.req.NextAttemptAt = now.Add(q.Backoff(it.req.AttemptCount))
	heap.Push(&q.pending, it)
	metrics.QueueDepth.Set(float64(len(q.pending)))
	q.mu.Unlock()

	return q.persist(ctx, &it.req)
}

// Backoff returns the delay before the given attempt number, doubling per
// attempt and capped at MaxDelay.
func (q *Queue) Backoff(attempt int) time.Duration {
	if attempt > backoffExpCap {
		attempt = backoffExpCap
	}
	d := q.cfg.BaseDelay << uint(attempt)
	if d > q.cfg.MaxDelay || d <= 0 {
		return q.cfg.MaxDelay
	}
	return d
}

// Cancel removes every request for (userID, wallet). Pending requests are
// deleted; in-flight ones are flagged so their result is discarded.
func (q *Queue) Cancel(ctx context.Context, userID int64, wallet string) int {
	q.mu.Lock()
	var removed []domain.CheckKey
	for key, it := range q.items {
		if key.UserID != userID || key.Wallet != wallet {
			continue
		}
		if it.index >= 0 {
			heap.Remove(&q.pending, it.index)
			delete(q.items, key)
			removed = append(removed, key)
		} else {
			it.canceled = true
		}
	}
	metrics.QueueDepth.Set(float64(len(q.pending)))
	q.mu.Unlock()

	for _, key := range removed {
		if err := q.repo.Delete(ctx, key); err != nil {
			q.log.Warn("Failed to delete canceled check", "key", key, "error", err)
		}
	}
	return len(removed)
}

// Depth returns the number of pending (not in-flight) requests.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlight returns the number of requests currently being checked.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

func (q *Queue) persistLocked(ctx context.Context, req *domain.CheckRequest) error {
	copied := *req
	return q.persist(ctx, &copied)
}

func (q *Queue) persist(ctx context.Context, req *domain.CheckRequest) error {
	if err := q.repo.Put(ctx, req); err != nil {
		// The in-memory queue stays authoritative; durability degrades
		// until the store recovers.
		q.log.Warn("Failed to persist check", "key", req.Key, "error", err)
	}
	return nil
}

// setNow overrides the clock in tests.
func (q *Queue) setNow(now func() time.Time) { q.now = now }

// -----------------------------------------------------------------------------
// Heap ordering
// -----------------------------------------------------------------------------

type pendingHeap []*item

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	a, b := h[i].req, h[j].req
	if !a.NextAttemptAt.Equal(b.NextAttemptAt) {
		return a.NextAttemptAt.Before(b.NextAttemptAt)
	}
	return a.EnqueuedAt.Before(b.EnqueuedAt)
}

func (h pendingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *pendingHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
