package discovery

import "testing"

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name      string
		msg       string
		frameType string
		peerID    string
		payload   string
		ok        bool
	}{
		{"presence", "GM anon-aaaaaaaa pubkey", "GM", "anon-aaaaaaaa", "pubkey", true},
		{"presence with nick", "GM anon-aaaaaaaa pub|QWxpY2U", "GM", "anon-aaaaaaaa", "pub|QWxpY2U", true},
		{"ack", "GM_ACK anon-bbbbbbbb pubkey", "GM_ACK", "anon-bbbbbbbb", "pubkey", true},
		{"enc with dot", "ENC anon-aaaaaaaa bm9uY2U.Y3Q", "ENC", "anon-aaaaaaaa", "bm9uY2U.Y3Q", true},
		{"trailing remainder kept whole", "ENC anon-aaaaaaaa a b c", "ENC", "anon-aaaaaaaa", "a b c", true},
		{"leading and trailing space trimmed", "  GM anon-aaaaaaaa pub  ", "GM", "anon-aaaaaaaa", "pub", true},
		{"two tokens", "GM anon-aaaaaaaa", "", "", "", false},
		{"one token", "GM", "", "", "", false},
		{"empty", "", "", "", "", false},
		{"double space yields empty token", "GM  pub", "", "", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			frameType, peerID, payload, ok := parseFrame(tc.msg)
			if ok != tc.ok {
				t.Fatalf("parseFrame(%q) ok = %v, want %v", tc.msg, ok, tc.ok)
			}
			if !ok {
				return
			}
			if frameType != tc.frameType || peerID != tc.peerID || payload != tc.payload {
				t.Errorf("parseFrame(%q) = (%q, %q, %q), want (%q, %q, %q)",
					tc.msg, frameType, peerID, payload, tc.frameType, tc.peerID, tc.payload)
			}
		})
	}
}

func TestParsePresence(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		pubKey   string
		nickname string
	}{
		{"bare key", "somekey", "somekey", ""},
		{"key with nick", "somekey|QWxpY2U", "somekey", "Alice"},
		{"empty nick part", "somekey|", "somekey", ""},
		{"malformed nick base64", "somekey|???", "somekey", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pubKey, nickname := parsePresence(tc.payload)
			if pubKey != tc.pubKey || nickname != tc.nickname {
				t.Errorf("parsePresence(%q) = (%q, %q), want (%q, %q)",
					tc.payload, pubKey, nickname, tc.pubKey, tc.nickname)
			}
		})
	}
}

func TestPresencePayloadRoundTrip(t *testing.T) {
	payload := presencePayload("key", "Alice")
	if payload != "key|QWxpY2U" {
		t.Errorf("presencePayload() = %q", payload)
	}
	pub, nick := parsePresence(payload)
	if pub != "key" || nick != "Alice" {
		t.Errorf("round trip = (%q, %q)", pub, nick)
	}

	if presencePayload("key", "") != "key" {
		t.Errorf("presencePayload without nick = %q", presencePayload("key", ""))
	}
}
