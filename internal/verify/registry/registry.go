// Package registry holds the read-mostly board catalog, loaded at startup
// and reloadable on signal.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vietddude/boardcheck/internal/core/domain"
	"github.com/vietddude/boardcheck/internal/infra/storage"
)

// Registry caches the board catalog in memory. Reads are lock-cheap; Reload
// swaps the whole map.
type Registry struct {
	repo storage.BoardRepository
	log  *slog.Logger

	mu     sync.RWMutex
	boards map[string]domain.Board
}

// New creates an empty registry; call Reload before serving lookups.
func New(repo storage.BoardRepository) *Registry {
	return &Registry{
		repo:   repo,
		log:    slog.Default().With("component", "registry"),
		boards: make(map[string]domain.Board),
	}
}

// Reload replaces the cached catalog from the repository.
func (r *Registry) Reload(ctx context.Context) error {
	boards, err := r.repo.List(ctx)
	if err != nil {
		return err
	}
	next := make(map[string]domain.Board, len(boards))
	for _, b := range boards {
		next[b.ID] = *b
	}

	r.mu.Lock()
	r.boards = next
	r.mu.Unlock()

	r.log.Info("Catalog loaded", "boards", len(next))
	return nil
}

// Get returns a board by id, or domain.ErrBoardNotFound.
func (r *Registry) Get(boardID string) (domain.Board, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.boards[boardID]
	if !ok {
		return domain.Board{}, domain.ErrBoardNotFound
	}
	return b, nil
}

// List returns a snapshot of the catalog.
func (r *Registry) List() []domain.Board {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Board, 0, len(r.boards))
	for _, b := range r.boards {
		out = append(out, b)
	}
	return out
}
