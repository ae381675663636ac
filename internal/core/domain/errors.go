package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBoardNotFound is returned for an unknown board id.
	ErrBoardNotFound = errors.New("board not found")

	// ErrQueueFull is returned when a bounded queue cannot accept a
	// request and nothing evictable remains.
	ErrQueueFull = errors.New("check queue full")

	// ErrRetriesExhausted is returned when a request has failed
	// max_attempts times and will not be retried automatically.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrNoneAvailable is returned when no eligible helper exists for a
	// match request.
	ErrNoneAvailable = errors.New("no helper available")
)

// ProviderErrorKind classifies failures at the provider boundary.
type ProviderErrorKind string

const (
	ProviderTimeout       ProviderErrorKind = "timeout"
	ProviderRateLimited   ProviderErrorKind = "rate_limited"
	ProviderInvalidWallet ProviderErrorKind = "invalid_wallet"
	ProviderMalformed     ProviderErrorKind = "malformed"
	ProviderUnknown       ProviderErrorKind = "unknown"
)

// ProviderError is a failure from the external data provider.
type ProviderError struct {
	Kind       ProviderErrorKind
	RetryAfter time.Duration // only set for rate_limited responses
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("provider %s", e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Transient reports whether the failure should be retried with backoff.
// Invalid wallets and malformed responses will not heal on retry.
func (e *ProviderError) Transient() bool {
	switch e.Kind {
	case ProviderInvalidWallet, ProviderMalformed:
		return false
	}
	return true
}

// AsProviderError unwraps err into a *ProviderError, defaulting to the
// unknown kind so that unexpected failures are retried rather than
// surfaced as permanent.
func AsProviderError(err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Kind: ProviderUnknown, Cause: err}
}
