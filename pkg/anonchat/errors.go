package anonchat

import "errors"

// Node errors.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("anonchat: already started")

	// ErrNotStarted is returned when operating on a stopped node.
	ErrNotStarted = errors.New("anonchat: not started")
)
