package server

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by operations that need a genesis state.
	ErrNotInitialized = errors.New("exchange not initialized")

	// ErrAlreadyInitialized is returned by Init on a store that holds states.
	ErrAlreadyInitialized = errors.New("exchange already initialized")
)

// UnavailableError reports an external collaborator failure. The operation
// changed nothing that a retry would repeat.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: temporarily unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err should be retried later.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

func unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}
