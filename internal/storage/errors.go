package storage

import "errors"

// ErrNotFound indicates the requested key does not exist.
var ErrNotFound = errors.New("not found")
