package engine

import (
	"errors"
	"fmt"
)

// ErrChainMismatch is returned by ProcessBlock when the block does not extend
// the processed chain. The caller treats it as a reorg signal.
var ErrChainMismatch = errors.New("block does not extend processed chain")

// ConsistencyError reports state that the replay must never reach: a
// colliding address book, a broken asset invariant or a snapshot that does
// not match what was recorded. Processing stops and an operator has to
// intervene.
type ConsistencyError struct {
	// Code identifies the error category.
	Code ConsistencyErrorCode

	// Message is a human-readable description.
	Message string

	// Height is the block being applied, when known.
	Height int64

	// Details contains additional context.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error
}

// ConsistencyErrorCode categorizes consistency violations.
type ConsistencyErrorCode string

const (
	// ErrCodeAddressCollision indicates two service addresses are equal.
	ErrCodeAddressCollision ConsistencyErrorCode = "ADDRESS_COLLISION"

	// ErrCodeInvariantBroken indicates an asset invariant no longer holds.
	ErrCodeInvariantBroken ConsistencyErrorCode = "INVARIANT_BROKEN"

	// ErrCodeSnapshotCorrupt indicates a stored snapshot failed to decode or
	// verify.
	ErrCodeSnapshotCorrupt ConsistencyErrorCode = "SNAPSHOT_CORRUPT"

	// ErrCodePaymentRecordMismatch indicates a re-applied block produced
	// obligations different from the ones already recorded for its height.
	ErrCodePaymentRecordMismatch ConsistencyErrorCode = "PAYMENT_RECORD_MISMATCH"

	// ErrCodeSnapshotEncode indicates a state could not be serialized.
	ErrCodeSnapshotEncode ConsistencyErrorCode = "SNAPSHOT_ENCODE"

	// ErrCodePendingBatch indicates a payment batch may or may not have been
	// broadcast before a crash.
	ErrCodePendingBatch ConsistencyErrorCode = "PENDING_BATCH"
)

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	if e.Height != 0 {
		return fmt.Sprintf("%s: %s (height=%d)", e.Code, e.Message, e.Height)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ConsistencyError) Unwrap() error { return e.Cause }

// IsConsistencyError returns true if err wraps a *ConsistencyError.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

// NewAddressCollision creates a ConsistencyError for a duplicated address.
func NewAddressCollision(addr, first, second string) *ConsistencyError {
	return &ConsistencyError{
		Code:    ErrCodeAddressCollision,
		Message: fmt.Sprintf("address %q is used by both %s and %s", addr, first, second),
		Details: map[string]string{
			"address": addr,
			"first":   first,
			"second":  second,
		},
	}
}

// NewInvariantError creates a ConsistencyError for a broken asset invariant.
func NewInvariantError(asset, format string, args ...any) *ConsistencyError {
	return &ConsistencyError{
		Code:    ErrCodeInvariantBroken,
		Message: fmt.Sprintf("asset %s: %s", asset, fmt.Sprintf(format, args...)),
		Details: map[string]string{"asset": asset},
	}
}
