package discovery

import "errors"

// Discovery errors.
var (
	// ErrClosed is returned when an operation is attempted on a stopped Discovery.
	ErrClosed = errors.New("discovery: closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("discovery: already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("discovery: not started")
)
