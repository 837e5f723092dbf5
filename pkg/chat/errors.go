package chat

import "errors"

// Chat errors.
var (
	// ErrUnknownPeer is returned when the target peer is not in the
	// current discovery snapshot.
	ErrUnknownPeer = errors.New("chat: unknown peer")
)
