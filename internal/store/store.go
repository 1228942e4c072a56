package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRoomExists is returned when creating a room whose name is taken.
	ErrRoomExists = errors.New("room already exists")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// User represents a persisted user. The online flag and connection id are
// best-effort advisory: live presence is held only in memory by the core.
type User struct {
	Username     string
	ConnectionID string
	Online       bool
	CreatedAt    time.Time
}

// Room represents a persisted chat room. The id is generated at creation and
// independent of the name, so a room can be renamed without breaking links.
type Room struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Message represents a persisted chat message. Records are append-only and
// never mutated or deleted.
type Message struct {
	ID        int64
	Room      string
	Username  string
	Body      string
	CreatedAt time.Time
}

// Gateway is the narrow surface the core uses to reach durable storage.
type Gateway interface {
	// UpsertUser creates or updates a user record, setting its last-known
	// connection id and online flag.
	UpsertUser(ctx context.Context, username, connectionID string, online bool) error

	// InsertMessage appends a message with the given server-assigned timestamp.
	InsertMessage(ctx context.Context, room, username, text string, ts time.Time) error

	// FindMessages returns all messages for a room ordered by timestamp
	// ascending; an unknown room yields an empty slice, not an error.
	FindMessages(ctx context.Context, room string) ([]Message, error)
}

// RoomStore handles room records for the HTTP surface. The core never
// consults it: a room exists in the core's view as soon as someone joins it.
type RoomStore interface {
	// CreateRoom creates a room with a generated id. A duplicate name is
	// rejected with ErrRoomExists.
	CreateRoom(ctx context.Context, name string) (*Room, error)

	// GetRoomByName retrieves a room by name.
	GetRoomByName(ctx context.Context, name string) (*Room, error)

	// ListRooms lists all rooms ordered by creation time.
	ListRooms(ctx context.Context) ([]*Room, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	Gateway
	RoomStore

	// Close closes the underlying database connection.
	Close() error
}
