package kcv

import (
	"errors"
	"fmt"
)

// BackendError wraps any failure reported by a backend read or write.
// The caching layer propagates these unchanged; retry policy belongs to
// the transaction layer above, not to the cache.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("kcv backend: %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapBackend wraps err into a BackendError unless it already is one.
// A nil err stays nil.
func WrapBackend(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}
