package discovery

import (
	"encoding/base64"
	"strings"
)

// Frame types carried in the first token of a discovery datagram.
const (
	// FrameGM is the periodic presence beacon.
	FrameGM = "GM"

	// FrameGMAck is the unicast reply to a GM.
	FrameGMAck = "GM_ACK"

	// FrameNick is a nickname-only update.
	FrameNick = "NICK"

	// FrameEnc is an encrypted application payload for the chat layer.
	FrameEnc = "ENC"
)

// nickB64 is the nickname wire encoding: URL-safe base64. It contains
// no '|', which keeps the single-split presence payload unambiguous.
var nickB64 = base64.RawURLEncoding

// parseFrame splits a datagram on its first two ASCII spaces.
// The third token is the literal remainder and may itself contain '|'
// (presence) or '.' (ciphertext). Returns ok=false when any of the
// three tokens is missing or empty.
func parseFrame(msg string) (frameType, peerID, payload string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(msg), " ", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// parsePresence splits a GM/GM_ACK payload into public key and optional
// nickname. A malformed base64 nickname yields ""; the frame is
// otherwise accepted.
func parsePresence(payload string) (pubKey, nickname string) {
	pubKey, nickPart, found := strings.Cut(payload, "|")
	if !found || nickPart == "" {
		return pubKey, ""
	}
	return pubKey, decodeNick(nickPart)
}

func decodeNick(s string) string {
	raw, err := nickB64.DecodeString(s)
	if err != nil {
		return ""
	}
	return string(raw)
}

func encodeNick(nickname string) string {
	return nickB64.EncodeToString([]byte(nickname))
}

// presencePayload renders pub_key[|nick_b64] for GM and GM_ACK frames.
func presencePayload(pubKey, nickname string) string {
	if nickname == "" {
		return pubKey
	}
	return pubKey + "|" + encodeNick(nickname)
}
