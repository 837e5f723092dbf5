package cryptobox

import "errors"

// CryptoBox errors.
var (
	// ErrUnknownPeer is returned when no shared key is registered for a peer.
	ErrUnknownPeer = errors.New("cryptobox: unknown peer")

	// ErrKeyParse is returned when a peer public key is not valid
	// URL-safe base64 or does not decode to 32 bytes.
	ErrKeyParse = errors.New("cryptobox: malformed peer public key")

	// ErrDecrypt is returned on malformed ciphertext framing or AEAD
	// tag verification failure. Callers must not distinguish the cases.
	ErrDecrypt = errors.New("cryptobox: decrypt failed")
)
