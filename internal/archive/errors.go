package archive

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the library entry does not exist.
var ErrNotFound = errors.New("library entry not found")

// PersistenceError reports a failed write to the archive backend.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
