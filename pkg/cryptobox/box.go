// Package cryptobox holds the ephemeral session key material and the
// pairwise authenticated-encryption channel keys.
//
// A Box owns one freshly generated X25519 scalar for the lifetime of
// the process. Per-peer 32-byte keys are derived with X25519 ECDH
// followed by HKDF-SHA256 (empty salt, info "anonchat") and are
// write-once: a peer id, once bound to a key, is never rebound within
// the same session.
package cryptobox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the X25519 public/private key and derived AEAD key length.
	KeySize = 32

	// NonceSize is the ChaCha20-Poly1305 nonce length.
	NonceSize = chacha20poly1305.NonceSize
)

// hkdfInfo is the HKDF context string binding derived keys to this protocol.
var hkdfInfo = []byte("anonchat")

// b64 is the wire encoding for keys, nonces and ciphertexts:
// URL-safe base64 without padding.
var b64 = base64.RawURLEncoding

// Box is an ephemeral per-process crypto container.
// It is safe for concurrent use.
type Box struct {
	priv []byte
	pub  []byte

	mu   sync.RWMutex
	keys map[string][]byte // peer_id -> 32-byte shared key, write-once
}

// New generates a fresh X25519 keypair and returns an empty Box.
func New() (*Box, error) {
	priv := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, priv); err != nil {
		return nil, err
	}

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	return &Box{
		priv: priv,
		pub:  pub,
		keys: make(map[string][]byte),
	}, nil
}

// PublicKeyB64 returns the process public key as URL-safe unpadded base64.
func (b *Box) PublicKeyB64() string {
	return b64.EncodeToString(b.pub)
}

// RegisterPeer derives and stores the shared key for a peer.
// It is idempotent: if the peer is already registered the call is a
// no-op, even when a different public key is supplied.
func (b *Box) RegisterPeer(peerID, peerPubB64 string) error {
	b.mu.RLock()
	_, known := b.keys[peerID]
	b.mu.RUnlock()
	if known {
		return nil
	}

	peerPub, err := decodeB64(peerPubB64)
	if err != nil || len(peerPub) != KeySize {
		return ErrKeyParse
	}

	shared, err := curve25519.X25519(b.priv, peerPub)
	if err != nil {
		return ErrKeyParse
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, hkdfInfo), key); err != nil {
		return err
	}

	b.mu.Lock()
	// Re-check under the write lock; first registration wins.
	if _, known := b.keys[peerID]; !known {
		b.keys[peerID] = key
	}
	b.mu.Unlock()

	return nil
}

// HasPeer reports whether a shared key is registered for the peer.
func (b *Box) HasPeer(peerID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.keys[peerID]
	return ok
}

// Encrypt seals plaintext for a registered peer.
// The result is b64url(nonce) + "." + b64url(ciphertext||tag) with a
// fresh random 12-byte nonce per call.
func (b *Box) Encrypt(peerID, plaintext string) (string, error) {
	key, err := b.peerKey(peerID)
	if err != nil {
		return "", err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ct := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return b64.EncodeToString(nonce) + "." + b64.EncodeToString(ct), nil
}

// Decrypt opens a blob produced by a peer's Encrypt.
// Malformed framing, bad base64 and tag failures all map to ErrDecrypt
// so the adversary path is indistinguishable to a sender.
func (b *Box) Decrypt(peerID, blob string) (string, error) {
	key, err := b.peerKey(peerID)
	if err != nil {
		return "", err
	}

	nonceB64, ctB64, found := strings.Cut(blob, ".")
	if !found {
		return "", ErrDecrypt
	}

	nonce, err := decodeB64(nonceB64)
	if err != nil || len(nonce) != NonceSize {
		return "", ErrDecrypt
	}

	ct, err := decodeB64(ctB64)
	if err != nil {
		return "", ErrDecrypt
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}

	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrDecrypt
	}

	return string(pt), nil
}

func (b *Box) peerKey(peerID string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	key, ok := b.keys[peerID]
	if !ok {
		return nil, ErrUnknownPeer
	}
	return key, nil
}

// decodeB64 accepts URL-safe base64 with or without padding.
// Peers strip padding on the wire but tolerating it costs nothing.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.URLEncoding.DecodeString(s)
	}
	return b64.DecodeString(s)
}
