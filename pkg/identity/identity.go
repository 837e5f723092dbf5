// Package identity provides the ephemeral per-session peer identity.
//
// An Identity is created once per process: a random `anon-` id, an
// optional cosmetic nickname and an owned cryptobox.Box. The id has no
// cryptographic role; authenticity is bound to the box key.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/anonchat/anonchat/pkg/cryptobox"
)

// IDPrefix is the fixed tag preceding the 8-hex-character session suffix.
const IDPrefix = "anon-"

// MaxNicknameBytes is the nickname length limit.
const MaxNicknameBytes = 32

// ErrNicknameTooLong is returned when a nickname exceeds MaxNicknameBytes.
var ErrNicknameTooLong = errors.New("identity: nickname too long (max 32)")

// Identity is the ephemeral anonymous identity for this session.
// The id and box are immutable; the nickname may change at runtime and
// is safe to read and write concurrently.
type Identity struct {
	anonID string
	box    *cryptobox.Box

	mu       sync.RWMutex
	nickname string
}

// New creates a fresh identity with a random session id.
// The nickname is optional; empty means none.
func New(nickname string) (*Identity, error) {
	if len(nickname) > MaxNicknameBytes {
		return nil, ErrNicknameTooLong
	}

	box, err := cryptobox.New()
	if err != nil {
		return nil, err
	}

	suffix := make([]byte, 4)
	if _, err := io.ReadFull(rand.Reader, suffix); err != nil {
		return nil, err
	}

	return &Identity{
		anonID:   IDPrefix + hex.EncodeToString(suffix),
		box:      box,
		nickname: nickname,
	}, nil
}

// AnonID returns the session identifier, stable for the process lifetime.
func (i *Identity) AnonID() string {
	return i.anonID
}

// Box returns the owned crypto container.
func (i *Identity) Box() *cryptobox.Box {
	return i.box
}

// Nickname returns the current nickname, or "" if unset.
func (i *Identity) Nickname() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.nickname
}

// SetNickname updates the nickname. An empty string clears it.
func (i *Identity) SetNickname(nickname string) error {
	if len(nickname) > MaxNicknameBytes {
		return ErrNicknameTooLong
	}

	i.mu.Lock()
	i.nickname = nickname
	i.mu.Unlock()
	return nil
}

// DisplayName returns "anon-xxxxxxxx (nick)" or the bare id without nickname.
func (i *Identity) DisplayName() string {
	if nick := i.Nickname(); nick != "" {
		return fmt.Sprintf("%s (%s)", i.anonID, nick)
	}
	return i.anonID
}
