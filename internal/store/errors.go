package store

import "errors"

var (
	// ErrInvalidCursor wraps every DecodeCursor failure.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrInvalidEvent rejects an event before it reaches SQLite.
	ErrInvalidEvent = errors.New("invalid event")

	ErrUserNotFound = errors.New("user not found")
)
