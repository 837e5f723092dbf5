// Package store persists chat messages. The core only needs monotonic
// ids and timestamps; two implementations are provided, an in-memory
// slice and a SQLite file that survives restarts.
package store

import (
	"sync"
	"time"
)

// Directions.
const (
	DirIn  = "in"
	DirOut = "out"
)

// AllRooms is the sentinel room filter matching every message.
const AllRooms = "all"

// Message is one stored chat line. Room is the room id for room
// messages and the peer id for direct messages.
type Message struct {
	ID        int64     `json:"id"`
	Direction string    `json:"direction"`
	Room      string    `json:"room"`
	PeerID    string    `json:"peer_id"`
	Text      string    `json:"text"`
	TS        time.Time `json:"-"`
}

// Store is the message log. Implementations are safe for concurrent
// use; ids are strictly monotonic per store.
type Store interface {
	Add(direction, room, peerID, text string) (Message, error)
	MessagesSince(afterID int64, room string) ([]Message, error)
	Close() error
}

// MemoryStore keeps messages in a slice. Contents are lost on exit.
type MemoryStore struct {
	mu       sync.Mutex
	messages []Message
	lastID   int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add appends one message and assigns it the next id.
func (s *MemoryStore) Add(direction, room, peerID, text string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	msg := Message{
		ID:        s.lastID,
		Direction: direction,
		Room:      room,
		PeerID:    peerID,
		Text:      text,
		TS:        time.Now(),
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

// MessagesSince returns messages with id > afterID, filtered by room
// unless room is AllRooms.
func (s *MemoryStore) MessagesSince(afterID int64, room string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Message
	for _, msg := range s.messages {
		if msg.ID <= afterID {
			continue
		}
		if room != AllRooms && msg.Room != room {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
