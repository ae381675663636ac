package domain

import "time"

// MatchOffer is a time-bounded pairing proposal between a helper who
// satisfies a requirement and a seeker who does not.
type MatchOffer struct {
	ID        string
	HelperID  int64
	SeekerID  int64
	BoardID   string
	Kind      RequirementKind
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the offer is past its validity window.
func (o MatchOffer) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// PairKey identifies the (helper, seeker, board, kind) tuple an offer is
// outstanding for. Used to suppress duplicate offers for the same pair.
func (o MatchOffer) PairKey() string {
	return PairKey(o.HelperID, o.SeekerID, o.BoardID, o.Kind)
}

// PairKey builds the dedup key for an outstanding (helper, seeker) pair.
func PairKey(helperID, seekerID int64, boardID string, kind RequirementKind) string {
	return StatusKey{UserID: helperID, BoardID: boardID, Kind: kind}.String() + ":" +
		StatusKey{UserID: seekerID, BoardID: boardID, Kind: kind}.String()
}
