package store

import "errors"

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")
