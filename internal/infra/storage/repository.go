package storage

import (
	"context"
	"errors"

	"github.com/vietddude/boardcheck/internal/core/domain"
)

var (
	// ErrStatusNotFound is returned when a requirement status doesn't exist.
	ErrStatusNotFound = errors.New("status not found")
)

// CheckRepository persists pending check requests so the queue survives
// restarts. The queue owns the records; the repository is write-through.
type CheckRepository interface {
	// Put inserts or refreshes a pending request by key.
	Put(ctx context.Context, req *domain.CheckRequest) error

	// Delete removes a request by key.
	Delete(ctx context.Context, key domain.CheckKey) error

	// ListPending returns all persisted requests, oldest first.
	ListPending(ctx context.Context) ([]*domain.CheckRequest, error)
}

// StatusRepository persists requirement statuses.
type StatusRepository interface {
	// Get retrieves a status by key.
	Get(ctx context.Context, key domain.StatusKey) (*domain.RequirementStatus, error)

	// Save inserts or updates a status.
	Save(ctx context.Context, st *domain.RequirementStatus) error

	// List returns all statuses.
	List(ctx context.Context) ([]*domain.RequirementStatus, error)

	// ListByState returns statuses in a given state.
	ListByState(ctx context.Context, state domain.RequirementState) ([]*domain.RequirementStatus, error)
}

// BoardRepository is the catalog source for the requirement registry.
type BoardRepository interface {
	// Get retrieves a board by id.
	Get(ctx context.Context, boardID string) (*domain.Board, error)

	// List returns the full catalog.
	List(ctx context.Context) ([]*domain.Board, error)
}

// TrackingRepository lists the (user, wallet, board, kind) associations
// the engine verifies. Owned by the front-end, read-only here.
type TrackingRepository interface {
	// List returns every tracking row.
	List(ctx context.Context) ([]*domain.Tracking, error)

	// ListByBoard returns tracking rows for one board.
	ListByBoard(ctx context.Context, boardID string) ([]*domain.Tracking, error)
}
