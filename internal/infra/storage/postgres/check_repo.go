package postgres

import (
	"context"
	"time"

	"github.com/vietddude/boardcheck/internal/core/domain"
)

// CheckRepo persists pending check requests.
type CheckRepo struct {
	db *DB
}

func NewCheckRepo(db *DB) *CheckRepo {
	return &CheckRepo{db: db}
}

type checkRow struct {
	UserID        int64     `db:"user_id"`
	Wallet        string    `db:"wallet"`
	BoardID       string    `db:"board_id"`
	Kind          string    `db:"kind"`
	Origin        string    `db:"origin"`
	EnqueuedAt    time.Time `db:"enqueued_at"`
	AttemptCount  int       `db:"attempt_count"`
	NextAttemptAt time.Time `db:"next_attempt_at"`
}

func (row checkRow) toDomain() *domain.CheckRequest {
	return &domain.CheckRequest{
		Key: domain.CheckKey{
			UserID:  row.UserID,
			Wallet:  row.Wallet,
			BoardID: row.BoardID,
			Kind:    domain.RequirementKind(row.Kind),
		},
		Origin:        domain.CheckOrigin(row.Origin),
		EnqueuedAt:    row.EnqueuedAt,
		AttemptCount:  row.AttemptCount,
		NextAttemptAt: row.NextAttemptAt,
	}
}

func (r *CheckRepo) Put(ctx context.Context, req *domain.CheckRequest) error {
	query := `
		INSERT INTO pending_checks (user_id, wallet, board_id, kind, origin, enqueued_at, attempt_count, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, wallet, board_id, kind) DO UPDATE SET
			origin = EXCLUDED.origin,
			attempt_count = EXCLUDED.attempt_count,
			next_attempt_at = EXCLUDED.next_attempt_at
	`
	_, err := r.db.ExecContext(ctx, query,
		req.Key.UserID, req.Key.Wallet, req.Key.BoardID, string(req.Key.Kind),
		string(req.Origin), req.EnqueuedAt, req.AttemptCount, req.NextAttemptAt,
	)
	return err
}

func (r *CheckRepo) Delete(ctx context.Context, key domain.CheckKey) error {
	query := `
		DELETE FROM pending_checks
		WHERE user_id = $1 AND wallet = $2 AND board_id = $3 AND kind = $4
	`
	_, err := r.db.ExecContext(ctx, query, key.UserID, key.Wallet, key.BoardID, string(key.Kind))
	return err
}

func (r *CheckRepo) ListPending(ctx context.Context) ([]*domain.CheckRequest, error) {
	query := `
		SELECT user_id, wallet, board_id, kind, origin, enqueued_at, attempt_count, next_attempt_at
		FROM pending_checks
		ORDER BY enqueued_at ASC
	`
	var rows []checkRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	out := make([]*domain.CheckRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
