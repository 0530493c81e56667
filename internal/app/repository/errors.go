package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL signals a destination whose scheme is not http or https.
	ErrInvalidURL = errors.New("invalid url: scheme must be http or https")
	// ErrInvalidCode signals a custom code that is not alphanumeric.
	ErrInvalidCode = errors.New("invalid code: must be alphanumeric")
	// ErrCodeConflict signals a custom code that is already registered.
	ErrCodeConflict = errors.New("code already exists")
	// ErrLinkNotFound signals that the requested short link does not exist.
	ErrLinkNotFound = errors.New("link not found")
	// ErrLinkExpired signals a redirect attempted after the link's expiry.
	ErrLinkExpired = errors.New("link expired")
	// ErrExhaustedKeyspace signals that code generation gave up.
	ErrExhaustedKeyspace = errors.New("no free short code available")
	// ErrPersistence signals that state could not be written to disk.
	ErrPersistence = errors.New("persistence failure")
)

// PersistenceError carries the failed operation and the underlying I/O error.
// It matches ErrPersistence under errors.Is.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
