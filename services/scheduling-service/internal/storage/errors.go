package storage

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("slot no longer available")
	ErrInvalidState = errors.New("invalid appointment state")
)
