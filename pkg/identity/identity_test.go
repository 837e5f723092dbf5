package identity

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	id, err := New("")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !strings.HasPrefix(id.AnonID(), IDPrefix) {
		t.Errorf("AnonID() = %q, want %q prefix", id.AnonID(), IDPrefix)
	}
	suffix := strings.TrimPrefix(id.AnonID(), IDPrefix)
	if len(suffix) != 8 {
		t.Errorf("id suffix %q length = %d, want 8", suffix, len(suffix))
	}
	for _, c := range suffix {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("id suffix %q contains non-hex %q", suffix, c)
		}
	}

	if id.Box() == nil {
		t.Error("Box() = nil")
	}

	// Id is stable across reads.
	if id.AnonID() != id.AnonID() {
		t.Error("AnonID() not stable")
	}
}

func TestNewIDsDiffer(t *testing.T) {
	a, err := New("")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	b, err := New("")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.AnonID() == b.AnonID() {
		t.Errorf("two identities share id %q", a.AnonID())
	}
}

func TestNickname(t *testing.T) {
	id, err := New("Alice")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := id.DisplayName(); got != id.AnonID()+" (Alice)" {
		t.Errorf("DisplayName() = %q", got)
	}

	if err := id.SetNickname(""); err != nil {
		t.Fatalf("SetNickname() error = %v", err)
	}
	if got := id.DisplayName(); got != id.AnonID() {
		t.Errorf("DisplayName() = %q, want bare id", got)
	}

	if err := id.SetNickname(strings.Repeat("x", MaxNicknameBytes+1)); err != ErrNicknameTooLong {
		t.Errorf("SetNickname() error = %v, want %v", err, ErrNicknameTooLong)
	}

	if _, err := New(strings.Repeat("x", MaxNicknameBytes+1)); err != ErrNicknameTooLong {
		t.Errorf("New() error = %v, want %v", err, ErrNicknameTooLong)
	}
}
