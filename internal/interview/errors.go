package interview

import (
	"github.com/pavelanni/mockinterview/internal/ledger"
	"github.com/pavelanni/mockinterview/internal/store"
)

// Errors callers match with errors.Is / errors.As.
var (
	ErrNotFound      = store.ErrNotFound
	ErrSessionClosed = ledger.ErrSessionClosed
)

// ValidationError reports a missing or malformed request field.
type ValidationError = ledger.ValidationError

// PersistenceError wraps a storage failure that the caller cannot fix.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
