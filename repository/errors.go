package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSupported is returned by operations the repository does not implement.
	ErrNotSupported = errors.New("docrepo: operation not supported")

	// ErrUnknownField is returned when a filter or sort names a field the document does not have.
	ErrUnknownField = errors.New("docrepo: unknown field")
)

// SaveError reports the document whose persistence stopped a save pass.
// Documents written earlier in the same pass stay written.
type SaveError struct {
	// ID is the identity of the failing document.
	ID string

	// Insert is true when the document was being inserted rather than replaced.
	Insert bool

	Err error
}

func (e *SaveError) Error() string {
	op := "replace"
	if e.Insert {
		op = "insert"
	}
	return fmt.Sprintf("docrepo: save %s %s: %v", op, e.ID, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}
