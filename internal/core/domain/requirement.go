package domain

// RequirementKind identifies which achievement dimension a check verifies.
type RequirementKind string

const (
	KindFollowers    RequirementKind = "followers"
	KindTokenHolders RequirementKind = "token_holders"
)

// Kinds lists every requirement kind, in catalog order.
var Kinds = []RequirementKind{KindFollowers, KindTokenHolders}

// RequirementState is the per-(user, board, kind) verification state.
type RequirementState string

const (
	StateUnchecked   RequirementState = "unchecked"
	StatePending     RequirementState = "pending"
	StateSatisfied   RequirementState = "satisfied"
	StateUnsatisfied RequirementState = "unsatisfied"
	StateError       RequirementState = "error"
)

// CanEnqueue reports whether a new check may move this state to PENDING.
// ERROR requires a manual retry and PENDING already has a check in flight.
func (s RequirementState) CanEnqueue() bool {
	switch s {
	case StateUnchecked, StateSatisfied, StateUnsatisfied:
		return true
	}
	return false
}

// Terminal reports whether the state is a check outcome rather than a
// transit state.
func (s RequirementState) Terminal() bool {
	return s == StateSatisfied || s == StateUnsatisfied || s == StateError
}
