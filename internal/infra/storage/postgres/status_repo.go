package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vietddude/boardcheck/internal/core/domain"
	"github.com/vietddude/boardcheck/internal/infra/storage"
)

// StatusRepo persists requirement statuses.
type StatusRepo struct {
	db *DB
}

func NewStatusRepo(db *DB) *StatusRepo {
	return &StatusRepo{db: db}
}

type statusRow struct {
	UserID            int64     `db:"user_id"`
	BoardID           string    `db:"board_id"`
	Kind              string    `db:"kind"`
	State             string    `db:"state"`
	LastCheckedAt     time.Time `db:"last_checked_at"`
	LastValue         int       `db:"last_value"`
	LastNotifiedState string    `db:"last_notified_state"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (row statusRow) toDomain() *domain.RequirementStatus {
	return &domain.RequirementStatus{
		Key: domain.StatusKey{
			UserID:  row.UserID,
			BoardID: row.BoardID,
			Kind:    domain.RequirementKind(row.Kind),
		},
		State:             domain.RequirementState(row.State),
		LastCheckedAt:     row.LastCheckedAt,
		LastValue:         row.LastValue,
		LastNotifiedState: domain.RequirementState(row.LastNotifiedState),
		UpdatedAt:         row.UpdatedAt,
	}
}

func (r *StatusRepo) Get(ctx context.Context, key domain.StatusKey) (*domain.RequirementStatus, error) {
	query := `
		SELECT user_id, board_id, kind, state, last_checked_at, last_value, last_notified_state, updated_at
		FROM requirement_statuses
		WHERE user_id = $1 AND board_id = $2 AND kind = $3
	`
	var row statusRow
	err := r.db.GetContext(ctx, &row, query, key.UserID, key.BoardID, string(key.Kind))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrStatusNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *StatusRepo) Save(ctx context.Context, st *domain.RequirementStatus) error {
	query := `
		INSERT INTO requirement_statuses (user_id, board_id, kind, state, last_checked_at, last_value, last_notified_state, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (user_id, board_id, kind) DO UPDATE SET
			state = EXCLUDED.state,
			last_checked_at = EXCLUDED.last_checked_at,
			last_value = EXCLUDED.last_value,
			last_notified_state = EXCLUDED.last_notified_state,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query,
		st.Key.UserID, st.Key.BoardID, string(st.Key.Kind),
		string(st.State), st.LastCheckedAt, st.LastValue, string(st.LastNotifiedState),
	)
	return err
}

func (r *StatusRepo) List(ctx context.Context) ([]*domain.RequirementStatus, error) {
	query := `
		SELECT user_id, board_id, kind, state, last_checked_at, last_value, last_notified_state, updated_at
		FROM requirement_statuses
		ORDER BY user_id, board_id, kind
	`
	return r.selectStatuses(ctx, query)
}

func (r *StatusRepo) ListByState(ctx context.Context, state domain.RequirementState) ([]*domain.RequirementStatus, error) {
	query := `
		SELECT user_id, board_id, kind, state, last_checked_at, last_value, last_notified_state, updated_at
		FROM requirement_statuses
		WHERE state = $1
		ORDER BY user_id, board_id, kind
	`
	return r.selectStatuses(ctx, query, string(state))
}

func (r *StatusRepo) selectStatuses(ctx context.Context, query string, args ...any) ([]*domain.RequirementStatus, error) {
	var rows []statusRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*domain.RequirementStatus, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
