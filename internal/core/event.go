package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessage notifies clients about a chat message in a room.
	EventMessage EventKind = iota
	// EventHistory delivers message history to a client upon joining a room.
	EventHistory
	// EventOnlineUsers delivers the current presence snapshot for a room.
	EventOnlineUsers
	// EventUserTyping notifies clients about a typing-state change.
	EventUserTyping
	// EventUserJoined notifies clients about a user joining a room.
	EventUserJoined
	// EventUserLeft notifies clients about a user leaving a room.
	EventUserLeft
	// EventError notifies a single client about a failure it caused.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	Room     string
	User     string
	Text     string // for EventUserJoined / EventUserLeft notices
	IsTyping bool
	Message  Message
	Messages []Message // for EventHistory
	Users    []string  // for EventOnlineUsers
	Error    *CoreError
}
