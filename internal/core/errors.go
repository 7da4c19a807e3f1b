package core

import (
	"errors"
	"fmt"
)

// StorageError reports a counter store failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("counter store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err for op. A nil err yields nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *StorageError
	if errors.As(err, &existing) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err came from the counter store.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// StorageOp returns the store operation that produced err, if it came from
// the counter store.
func StorageOp(err error) (string, bool) {
	var se *StorageError
	if !errors.As(err, &se) {
		return "", false
	}
	return se.Op, true
}
