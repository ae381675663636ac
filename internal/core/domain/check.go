package domain

import (
	"fmt"
	"time"
)

// CheckOrigin records what scheduled a check. User-initiated requests are
// never evicted on queue overflow; rescan requests are.
type CheckOrigin string

const (
	OriginUser   CheckOrigin = "user"
	OriginRescan CheckOrigin = "rescan"
)

// CheckKey uniquely identifies a verification request.
type CheckKey struct {
	UserID  int64
	Wallet  string
	BoardID string
	Kind    RequirementKind
}

func (k CheckKey) String() string {
	return fmt.Sprintf("%d:%s:%s:%s", k.UserID, k.Wallet, k.BoardID, k.Kind)
}

// StatusKey drops the wallet dimension, identifying the RequirementStatus
// the check feeds into.
func (k CheckKey) StatusKey() StatusKey {
	return StatusKey{UserID: k.UserID, BoardID: k.BoardID, Kind: k.Kind}
}

// CheckRequest is a pending verification against the external provider.
type CheckRequest struct {
	Key           CheckKey
	Origin        CheckOrigin
	EnqueuedAt    time.Time
	AttemptCount  int
	NextAttemptAt time.Time
}

// CheckResult is a completed provider observation for a request.
type CheckResult struct {
	Req           CheckRequest
	ObservedValue int
	Satisfied     bool
	CheckedAt     time.Time
}

// CheckFailure is a terminally failed request: a permanent provider error
// or retry exhaustion.
type CheckFailure struct {
	Req CheckRequest
	Err error
}

// StatusKey identifies a RequirementStatus record.
type StatusKey struct {
	UserID  int64
	BoardID string
	Kind    RequirementKind
}

func (k StatusKey) String() string {
	return fmt.Sprintf("%d:%s:%s", k.UserID, k.BoardID, k.Kind)
}

// RequirementStatus tracks whether a user meets a board requirement.
type RequirementStatus struct {
	Key               StatusKey
	State             RequirementState
	LastCheckedAt     time.Time
	LastValue         int
	LastNotifiedState RequirementState
	UpdatedAt         time.Time
}
