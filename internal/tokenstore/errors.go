package tokenstore

import (
	"errors"
	"fmt"
)

// ErrReadOnly is returned by backends that cannot persist tokens.
var ErrReadOnly = errors.New("token storage is read-only")

// StorageError reports that the durable record could not be accessed.
// There is no recovery path; callers surface it to the user.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("token storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
