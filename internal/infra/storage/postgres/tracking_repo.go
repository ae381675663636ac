package postgres

import (
	"context"

	"github.com/vietddude/boardcheck/internal/core/domain"
)

// TrackingRepo reads the (user, wallet, board, kind) associations owned by
// the front-end.
type TrackingRepo struct {
	db *DB
}

func NewTrackingRepo(db *DB) *TrackingRepo {
	return &TrackingRepo{db: db}
}

type trackingRow struct {
	UserID  int64  `db:"user_id"`
	Wallet  string `db:"wallet"`
	BoardID string `db:"board_id"`
	Kind    string `db:"kind"`
}

func (row trackingRow) toDomain() *domain.Tracking {
	return &domain.Tracking{
		UserID:  row.UserID,
		Wallet:  row.Wallet,
		BoardID: row.BoardID,
		Kind:    domain.RequirementKind(row.Kind),
	}
}

func (r *TrackingRepo) List(ctx context.Context) ([]*domain.Tracking, error) {
	query := `SELECT user_id, wallet, board_id, kind FROM tracking ORDER BY user_id, wallet`
	return r.selectTracking(ctx, query)
}

func (r *TrackingRepo) ListByBoard(ctx context.Context, boardID string) ([]*domain.Tracking, error) {
	query := `SELECT user_id, wallet, board_id, kind FROM tracking WHERE board_id = $1 ORDER BY user_id, wallet`
	return r.selectTracking(ctx, query, boardID)
}

func (r *TrackingRepo) selectTracking(ctx context.Context, query string, args ...any) ([]*domain.Tracking, error) {
	var rows []trackingRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*domain.Tracking, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
