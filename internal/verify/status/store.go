// Package status owns the per-(user, board, kind) requirement state
// machine and the notification diffing on its transitions.
package status

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/boardcheck/internal/core/domain"
	"github.com/vietddude/boardcheck/internal/infra/notify"
	"github.com/vietddude/boardcheck/internal/infra/storage"
	"github.com/vietddude/boardcheck/internal/verify/metrics"
)

var (
	// ErrInvalidTransition is returned for a transition the state machine
	// does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotInError is returned by ManualRetry when the status isn't ERROR.
	ErrNotInError = errors.New("status not in error state")
)

// shardCount trades memory for cross-key parallelism. Transitions for one
// key are linearized by its shard; keys in different shards never contend.
const shardCount = 32

// notifyTimeout bounds delivery so a slow sink cannot stall a worker.
const notifyTimeout = 10 * time.Second

// historyCap bounds the transition history ring.
const historyCap = 256

// Transition is one applied state change.
type Transition struct {
	Key           domain.StatusKey
	From          domain.RequirementState
	To            domain.RequirementState
	ObservedValue int
	At            time.Time
}

// Store tracks requirement statuses. All mutation goes through the
// transition methods; direct writes would bypass notification diffing.
type Store struct {
	repo     storage.StatusRepository
	notifier notify.Notifier
	log      *slog.Logger

	shards [shardCount]sync.Mutex

	mu       sync.RWMutex
	statuses map[domain.StatusKey]*domain.RequirementStatus

	cbMu      sync.RWMutex
	callbacks []func(Transition)

	histMu  sync.Mutex
	history []Transition

	now func() time.Time
}

// NewStore creates a status store backed by repo, delivering through
// notifier.
func NewStore(repo storage.StatusRepository, notifier notify.Notifier) *Store {
	return &Store{
		repo:     repo,
		notifier: notifier,
		log:      slog.Default().With("component", "status"),
		statuses: make(map[domain.StatusKey]*domain.RequirementStatus),
		now:      time.Now,
	}
}

// Load restores persisted statuses. Called once at startup.
func (s *Store) Load(ctx context.Context) error {
	statuses, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range statuses {
		copied := *st
		s.statuses[st.Key] = &copied
	}
	s.log.Info("Restored requirement statuses", "count", len(statuses))
	return nil
}

// OnTransition registers a callback invoked for every applied transition,
// in per-key order. Callbacks must not call back into the store.
func (s *Store) OnTransition(fn func(Transition)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// Get returns the status for a key, defaulting to UNCHECKED.
func (s *Store) Get(key domain.StatusKey) domain.RequirementStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.statuses[key]; ok {
		return *st
	}
	return domain.RequirementStatus{Key: key, State: domain.StateUnchecked}
}

// List returns a snapshot of every tracked status.
func (s *Store) List() []domain.RequirementStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RequirementStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, *st)
	}
	return out
}

// MarkPending transitions a key to PENDING when a check is enqueued.
// ERROR is excluded; it requires ManualRetry. Marking an already PENDING
// key is a no-op so re-enqueues stay idempotent.
func (s *Store) MarkPending(ctx context.Context, key domain.StatusKey) error {
	shard := s.lockKey(key)
	defer shard.Unlock()

	st := s.getOrInitLocked(key)
	if st.State == domain.StatePending {
		return nil
	}
	if !st.State.CanEnqueue() {
		return ErrInvalidTransition
	}
	s.applyLocked(ctx, st, domain.StatePending, st.LastValue, time.Time{})
	return nil
}

// ManualRetry re-arms an ERROR status for a user-triggered re-check.
func (s *Store) ManualRetry(ctx context.Context, key domain.StatusKey) error {
	shard := s.lockKey(key)
	defer shard.Unlock()

	st := s.getOrInitLocked(key)
	if st.State != domain.StateError {
		return ErrNotInError
	}
	s.applyLocked(ctx, st, domain.StatePending, st.LastValue, time.Time{})
	return nil
}

// ApplyResult applies a completed check. Only a PENDING status accepts a
// result; replays and results for canceled checks are dropped, which is
// what keeps notifications idempotent under provider retries.
func (s *Store) ApplyResult(ctx context.Context, result domain.CheckResult) {
	key := result.Req.Key.StatusKey()
	shard := s.lockKey(key)
	defer shard.Unlock()

	st := s.getOrInitLocked(key)
	if st.State != domain.StatePending {
		s.log.Debug("Dropping result for non-pending status", "key", key, "state", st.State)
		return
	}

	next := domain.StateUnsatisfied
	if result.Satisfied {
		next = domain.StateSatisfied
	}
	s.applyLocked(ctx, st, next, result.ObservedValue, result.CheckedAt)
	metrics.ChecksProcessed.WithLabelValues(string(key.Kind), string(next)).Inc()
}

// ApplyFailure marks a terminally failed check: permanent provider error
// or retry exhaustion.
func (s *Store) ApplyFailure(ctx context.Context, failure domain.CheckFailure) {
	key := failure.Req.Key.StatusKey()
	shard := s.lockKey(key)
	defer shard.Unlock()

	st := s.getOrInitLocked(key)
	if st.State != domain.StatePending {
		s.log.Debug("Dropping failure for non-pending status", "key", key, "state", st.State)
		return
	}

	s.log.Warn("Check failed terminally", "key", key, "error", failure.Err)
	s.applyLocked(ctx, st, domain.StateError, st.LastValue, s.now())
	metrics.ChecksProcessed.WithLabelValues(string(key.Kind), string(domain.StateError)).Inc()
}

// applyLocked performs the transition, persists it, notifies if the new
// state is a notifiable outcome the user hasn't seen, and fans out to
// callbacks. Caller holds the key's shard lock; field writes additionally
// take the map mutex so concurrent readers see consistent snapshots.
func (s *Store) applyLocked(ctx context.Context, st *domain.RequirementStatus, next domain.RequirementState, observed int, checkedAt time.Time) {
	s.mu.Lock()
	from := st.State
	st.State = next
	st.LastValue = observed
	st.UpdatedAt = s.now()
	if !checkedAt.IsZero() {
		st.LastCheckedAt = checkedAt
	}
	snapshot := *st
	s.mu.Unlock()

	t := Transition{Key: st.Key, From: from, To: next, ObservedValue: observed, At: snapshot.UpdatedAt}
	metrics.Transitions.WithLabelValues(string(from), string(next)).Inc()
	s.recordHistory(t)

	if notifiable(snapshot) {
		nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		err := s.notifier.Notify(nctx, st.Key.UserID, notify.Event{
			BoardID:       st.Key.BoardID,
			Kind:          st.Key.Kind,
			NewState:      next,
			ObservedValue: observed,
		})
		cancel()
		if err != nil {
			// Leave last_notified_state untouched; the next transition
			// into a notifiable state retries delivery.
			s.log.Warn("Notification delivery failed", "key", st.Key, "error", err)
		} else {
			s.mu.Lock()
			st.LastNotifiedState = next
			snapshot = *st
			s.mu.Unlock()
			metrics.NotificationsSent.WithLabelValues(string(next)).Inc()
		}
	}

	if err := s.repo.Save(ctx, &snapshot); err != nil {
		s.log.Warn("Failed to persist status", "key", st.Key, "error", err)
	}

	s.cbMu.RLock()
	callbacks := s.callbacks
	s.cbMu.RUnlock()
	for _, fn := range callbacks {
		fn(t)
	}
}

// notifiable reports whether the new state warrants a delivery: SATISFIED
// or UNSATISFIED, and different from what was last delivered.
func notifiable(st domain.RequirementStatus) bool {
	if st.State != domain.StateSatisfied && st.State != domain.StateUnsatisfied {
		return false
	}
	return st.State != st.LastNotifiedState
}

// History returns the most recent transitions, oldest first.
func (s *Store) History() []Transition {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	out := make([]Transition, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Store) recordHistory(t Transition) {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	s.history = append(s.history, t)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
}

// lockKey acquires the shard mutex for a key and returns it for deferral.
func (s *Store) lockKey(key domain.StatusKey) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	shard := &s.shards[h.Sum32()%shardCount]
	shard.Lock()
	return shard
}

// getOrInitLocked fetches or creates the live record. Caller holds the
// key's shard lock; the map mutex only guards the map itself.
func (s *Store) getOrInitLocked(key domain.StatusKey) *domain.RequirementStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[key]
	if !ok {
		st = &domain.RequirementStatus{Key: key, State: domain.StateUnchecked}
		s.statuses[key] = st
	}
	return st
}
