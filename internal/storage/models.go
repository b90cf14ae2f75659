package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by conditional writes when the stored revision
// no longer matches the one the caller read.
var ErrConflict = errors.New("revision conflict")

// ErrExists is returned by Create when the key is already taken.
var ErrExists = errors.New("key already exists")

// Entry is a stored value together with the revision it was read at.
// Revisions start at 1 and grow by one on every write to the key.
type Entry struct {
	Key       string
	Value     []byte
	Revision  uint64
	UpdatedAt time.Time
}
