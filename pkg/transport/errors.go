package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed endpoint.
	ErrClosed = errors.New("transport: closed")

	// ErrInvalidAddress is returned when a target address cannot be parsed.
	ErrInvalidAddress = errors.New("transport: invalid address")

	// ErrMessageTooLarge is returned when a datagram exceeds MaxDatagramSize.
	ErrMessageTooLarge = errors.New("transport: message too large")
)
