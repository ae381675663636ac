package domain

// Tracking is one (user, wallet, board, kind) association the engine
// verifies. Rows are owned by the front-end; the engine consumes them
// through the tracking repository.
type Tracking struct {
	UserID  int64
	Wallet  string
	BoardID string
	Kind    RequirementKind
}

// Key returns the check identity for this tracking row.
func (t Tracking) Key() CheckKey {
	return CheckKey{UserID: t.UserID, Wallet: t.Wallet, BoardID: t.BoardID, Kind: t.Kind}
}
