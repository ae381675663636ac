package domain

import "time"

// Default thresholds applied when a catalog row omits them.
const (
	DefaultRequiredFollowers    = 10
	DefaultRequiredTokenHolders = 10
)

// Board is a campaign target with follower and token-holder thresholds.
// Catalog data, read-only to the engine.
type Board struct {
	ID                   string
	Name                 string
	RequiredFollowers    int
	RequiredTokenHolders int
	CreatedAt            time.Time
}

// Threshold returns the required count for a requirement kind.
func (b Board) Threshold(kind RequirementKind) int {
	switch kind {
	case KindFollowers:
		if b.RequiredFollowers > 0 {
			return b.RequiredFollowers
		}
		return DefaultRequiredFollowers
	case KindTokenHolders:
		if b.RequiredTokenHolders > 0 {
			return b.RequiredTokenHolders
		}
		return DefaultRequiredTokenHolders
	}
	return 0
}
