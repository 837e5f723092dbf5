package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a file-backed message log.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path. ":memory:"
// gives a private in-process database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// The message log is written from several goroutines through one
	// connection; the sqlite driver serializes at the database level.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		direction TEXT NOT NULL,
		room TEXT NOT NULL,
		peer_id TEXT NOT NULL,
		text TEXT NOT NULL,
		ts INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add inserts one message and returns it with the assigned id.
func (s *SQLiteStore) Add(direction, room, peerID, text string) (Message, error) {
	now := time.Now()
	result, err := s.db.Exec(
		"INSERT INTO messages (direction, room, peer_id, text, ts) VALUES (?, ?, ?, ?, ?)",
		direction, room, peerID, text, now.UnixNano(),
	)
	if err != nil {
		return Message{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:        id,
		Direction: direction,
		Room:      room,
		PeerID:    peerID,
		Text:      text,
		TS:        now,
	}, nil
}

// MessagesSince returns messages with id > afterID, filtered by room
// unless room is AllRooms.
func (s *SQLiteStore) MessagesSince(afterID int64, room string) ([]Message, error) {
	query := "SELECT id, direction, room, peer_id, text, ts FROM messages WHERE id > ? ORDER BY id"
	args := []interface{}{afterID}
	if room != AllRooms {
		query = "SELECT id, direction, room, peer_id, text, ts FROM messages WHERE id > ? AND room = ? ORDER BY id"
		args = append(args, room)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var msg Message
		var tsNano int64
		if err := rows.Scan(&msg.ID, &msg.Direction, &msg.Room, &msg.PeerID, &msg.Text, &tsNano); err != nil {
			return nil, err
		}
		msg.TS = time.Unix(0, tsNano)
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
