package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/roomcast/roomcast-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	connection_id TEXT NOT NULL DEFAULT '',
	online        BOOLEAN NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room       TEXT NOT NULL,
	username   TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room, created_at);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== Gateway implementation ====

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, username, connectionID string, online bool) error {
	query := `
		INSERT INTO users (username, connection_id, online)
		VALUES (?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			connection_id = excluded.connection_id,
			online        = excluded.online
	`
	if _, err := s.db.ExecContext(ctx, query, username, connectionID, online); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// InsertMessage appends a message row.
func (s *SQLiteStore) InsertMessage(ctx context.Context, room, username, text string, ts time.Time) error {
	query := `
		INSERT INTO messages (room, username, body, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, room, username, text, ts.UTC()); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// FindMessages returns all messages for a room, oldest first. An unknown
// room yields an empty slice.
func (s *SQLiteStore) FindMessages(ctx context.Context, room string) ([]store.Message, error) {
	query := `
		SELECT id, room, username, body, created_at
		FROM messages
		WHERE room = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, room)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer rows.Close()

	messages := []store.Message{}
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.Room, &m.Username, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// ==== RoomStore implementation ====

// CreateRoom creates a room with a generated id.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string) (*store.Room, error) {
	room := &store.Room{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	query := `INSERT INTO rooms (id, name, created_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, room.ID, room.Name, room.CreatedAt); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, store.ErrRoomExists
		}
		return nil, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

// GetRoomByName retrieves a room by name.
func (s *SQLiteStore) GetRoomByName(ctx context.Context, name string) (*store.Room, error) {
	query := `SELECT id, name, created_at FROM rooms WHERE name = ?`
	var room store.Room
	err := s.db.QueryRowContext(ctx, query, name).Scan(&room.ID, &room.Name, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return &room, nil
}

// ListRooms lists all rooms, oldest first.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]*store.Room, error) {
	query := `SELECT id, name, created_at FROM rooms ORDER BY created_at ASC, name ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := []*store.Room{}
	for rows.Next() {
		var room store.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, &room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}
