package core

import "github.com/google/uuid"

// Client is one open bidirectional event channel to a single client process,
// as seen by the core layer. Identity (username, room) lives in the Registry,
// not here; the transport only needs the id and the outbound event queue.
type Client struct {
	ID     string
	Events chan *Event
}

// NewClient constructs a client with a fresh connection id.
func NewClient() *Client {
	return &Client{
		ID:     uuid.NewString(),
		Events: make(chan *Event, 16),
	}
}

func (c *Client) send(event *Event) {
	select {
	case c.Events <- event:
	default:
		// Drop if slow consumer.
	}
}
