package storage

import "errors"

// ErrNotFound is returned when a requested repository, job, or push does
// not exist. Callers match it with errors.Is.
var ErrNotFound = errors.New("storage: not found")
