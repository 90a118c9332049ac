package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested scan does not exist
var ErrNotFound = errors.New("scan not found")

// PersistenceError wraps a failure to read or write scan history
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
