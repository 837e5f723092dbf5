package store

import (
	"path/filepath"
	"testing"
)

// openStores returns one of each implementation, both backed by
// throwaway state.
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestAddAssignsMonotonicIDs(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			var last int64
			for i := 0; i < 5; i++ {
				msg, err := s.Add(DirOut, "room_a", "anon-aaaaaaaa", "x")
				if err != nil {
					t.Fatalf("Add() error = %v", err)
				}
				if msg.ID <= last {
					t.Fatalf("id %d not greater than %d", msg.ID, last)
				}
				if msg.TS.IsZero() {
					t.Errorf("zero timestamp")
				}
				last = msg.ID
			}
		})
	}
}

func TestMessagesSinceFilters(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			first, err := s.Add(DirIn, "room_a", "anon-aaaaaaaa", "one")
			if err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if _, err := s.Add(DirIn, "room_b", "anon-bbbbbbbb", "two"); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if _, err := s.Add(DirOut, "room_a", "anon-cccccccc", "three"); err != nil {
				t.Fatalf("Add() error = %v", err)
			}

			all, err := s.MessagesSince(0, AllRooms)
			if err != nil {
				t.Fatalf("MessagesSince() error = %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("all rooms: %d messages, want 3", len(all))
			}

			roomA, err := s.MessagesSince(0, "room_a")
			if err != nil {
				t.Fatalf("MessagesSince() error = %v", err)
			}
			if len(roomA) != 2 || roomA[0].Text != "one" || roomA[1].Text != "three" {
				t.Errorf("room_a = %+v", roomA)
			}

			after, err := s.MessagesSince(first.ID, AllRooms)
			if err != nil {
				t.Fatalf("MessagesSince() error = %v", err)
			}
			if len(after) != 2 {
				t.Errorf("after first: %d messages, want 2", len(after))
			}

			if none, _ := s.MessagesSince(0, "room_missing"); len(none) != 0 {
				t.Errorf("unknown room returned %d messages", len(none))
			}
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	msg, err := s.Add(DirIn, "room_a", "anon-aaaaaaaa", "persisted")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.MessagesSince(0, AllRooms)
	if err != nil {
		t.Fatalf("MessagesSince() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != msg.ID || got[0].Text != "persisted" {
		t.Fatalf("after reopen = %+v", got)
	}

	// New inserts continue the id sequence.
	next, err := reopened.Add(DirOut, "room_a", "anon-aaaaaaaa", "more")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if next.ID <= msg.ID {
		t.Errorf("id %d not greater than %d after reopen", next.ID, msg.ID)
	}
}
