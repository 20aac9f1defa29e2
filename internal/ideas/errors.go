package ideas

import (
	"errors"
	"fmt"
)

// ErrDuplicateIdea is returned by CreateIdea when the id is already stored.
var ErrDuplicateIdea = errors.New("idea already exists")

// StorageError reports a failed read, write or (de)serialisation of a
// persisted key. Callers should surface it as a retryable failure.
type StorageError struct {
	Op  string // "read", "write", "decode", "encode"
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
