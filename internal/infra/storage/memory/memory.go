package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vietddude/boardcheck/internal/core/domain"
	"github.com/vietddude/boardcheck/internal/infra/storage"
)

// MemoryStorage backs every repository with in-process maps. Used in tests
// and when no database is configured.
type MemoryStorage struct {
	mu       sync.RWMutex
	checks   map[domain.CheckKey]*domain.CheckRequest
	statuses map[domain.StatusKey]*domain.RequirementStatus
	boards   map[string]*domain.Board
	tracking []*domain.Tracking
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		checks:   make(map[domain.CheckKey]*domain.CheckRequest),
		statuses: make(map[domain.StatusKey]*domain.RequirementStatus),
		boards:   make(map[string]*domain.Board),
	}
}

// SeedBoards adds boards to the catalog. Test/setup helper.
func (s *MemoryStorage) SeedBoards(boards ...*domain.Board) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range boards {
		copied := *b
		s.boards[b.ID] = &copied
	}
}

// SeedTracking replaces the tracking rows. Test/setup helper.
func (s *MemoryStorage) SeedTracking(rows ...*domain.Tracking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracking = s.tracking[:0]
	for _, row := range rows {
		copied := *row
		s.tracking = append(s.tracking, &copied)
	}
}

// -----------------------------------------------------------------------------
// Check Repository
// -----------------------------------------------------------------------------

type CheckRepo struct {
	store *MemoryStorage
}

func NewCheckRepo(store *MemoryStorage) *CheckRepo {
	return &CheckRepo{store: store}
}

func (r *CheckRepo) Put(ctx context.Context, req *domain.CheckRequest) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copied := *req
	r.store.checks[req.Key] = &copied
	return nil
}

func (r *CheckRepo) Delete(ctx context.Context, key domain.CheckKey) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.checks, key)
	return nil
}

func (r *CheckRepo) ListPending(ctx context.Context) ([]*domain.CheckRequest, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.CheckRequest, 0, len(r.store.checks))
	for _, req := range r.store.checks {
		copied := *req
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Status Repository
// -----------------------------------------------------------------------------

type StatusRepo struct {
	store *MemoryStorage
}

func NewStatusRepo(store *MemoryStorage) *StatusRepo {
	return &StatusRepo{store: store}
}

func (r *StatusRepo) Get(ctx context.Context, key domain.StatusKey) (*domain.RequirementStatus, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	st, ok := r.store.statuses[key]
	if !ok {
		return nil, storage.ErrStatusNotFound
	}
	copied := *st
	return &copied, nil
}

func (r *StatusRepo) Save(ctx context.Context, st *domain.RequirementStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copied := *st
	r.store.statuses[st.Key] = &copied
	return nil
}

func (r *StatusRepo) List(ctx context.Context) ([]*domain.RequirementStatus, error) {
	return r.list(func(*domain.RequirementStatus) bool { return true })
}

func (r *StatusRepo) ListByState(ctx context.Context, state domain.RequirementState) ([]*domain.RequirementStatus, error) {
	return r.list(func(st *domain.RequirementStatus) bool { return st.State == state })
}

func (r *StatusRepo) list(keep func(*domain.RequirementStatus) bool) ([]*domain.RequirementStatus, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.RequirementStatus
	for _, st := range r.store.statuses {
		if keep(st) {
			copied := *st
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Board Repository
// -----------------------------------------------------------------------------

type BoardRepo struct {
	store *MemoryStorage
}

func NewBoardRepo(store *MemoryStorage) *BoardRepo {
	return &BoardRepo{store: store}
}

func (r *BoardRepo) Get(ctx context.Context, boardID string) (*domain.Board, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	b, ok := r.store.boards[boardID]
	if !ok {
		return nil, domain.ErrBoardNotFound
	}
	copied := *b
	return &copied, nil
}

func (r *BoardRepo) List(ctx context.Context) ([]*domain.Board, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.Board, 0, len(r.store.boards))
	for _, b := range r.store.boards {
		copied := *b
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -----------------------------------------------------------------------------
// Tracking Repository
// -----------------------------------------------------------------------------

type TrackingRepo struct {
	store *MemoryStorage
}

func NewTrackingRepo(store *MemoryStorage) *TrackingRepo {
	return &TrackingRepo{store: store}
}

func (r *TrackingRepo) List(ctx context.Context) ([]*domain.Tracking, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.Tracking, 0, len(r.store.tracking))
	for _, row := range r.store.tracking {
		copied := *row
		out = append(out, &copied)
	}
	return out, nil
}

func (r *TrackingRepo) ListByBoard(ctx context.Context, boardID string) ([]*domain.Tracking, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Tracking
	for _, row := range r.store.tracking {
		if row.BoardID == boardID {
			copied := *row
			out = append(out, &copied)
		}
	}
	return out, nil
}
