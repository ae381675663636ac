package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vietddude/boardcheck/internal/core/domain"
)

// BoardRepo reads the board catalog.
type BoardRepo struct {
	db *DB
}

func NewBoardRepo(db *DB) *BoardRepo {
	return &BoardRepo{db: db}
}

type boardRow struct {
	ID                   string    `db:"id"`
	Name                 string    `db:"name"`
	RequiredFollowers    int       `db:"required_followers"`
	RequiredTokenHolders int       `db:"required_token_holders"`
	CreatedAt            time.Time `db:"created_at"`
}

func (row boardRow) toDomain() *domain.Board {
	return &domain.Board{
		ID:                   row.ID,
		Name:                 row.Name,
		RequiredFollowers:    row.RequiredFollowers,
		RequiredTokenHolders: row.RequiredTokenHolders,
		CreatedAt:            row.CreatedAt,
	}
}

func (r *BoardRepo) Get(ctx context.Context, boardID string) (*domain.Board, error) {
	query := `
		SELECT id, name, required_followers, required_token_holders, created_at
		FROM boards WHERE id = $1
	`
	var row boardRow
	err := r.db.GetContext(ctx, &row, query, boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBoardNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *BoardRepo) List(ctx context.Context) ([]*domain.Board, error) {
	query := `
		SELECT id, name, required_followers, required_token_holders, created_at
		FROM boards ORDER BY id
	`
	var rows []boardRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	out := make([]*domain.Board, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
