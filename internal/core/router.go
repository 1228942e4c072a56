package core

import "sync"

// Router fans events out to every connection subscribed to a room.
// Delivery is best-effort and fire-and-forget: a closed or slow recipient
// never aborts delivery to the rest and never surfaces an error to the
// sender. FIFO order per room is guaranteed by the Session, which serializes
// all broadcasts targeting the same room.
type Router struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

// NewRouter constructs a router with no subscriptions.
func NewRouter() *Router {
	return &Router{rooms: make(map[string]map[*Client]struct{})}
}

// Subscribe binds a client to a room's fan-out set.
func (r *Router) Subscribe(room string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.rooms[room]
	if !ok {
		set = make(map[*Client]struct{})
		r.rooms[room] = set
	}
	set[c] = struct{}{}
}

// Unsubscribe removes a client from a room's fan-out set; unknown room or
// client is a no-op.
func (r *Router) Unsubscribe(room string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.rooms, room)
	}
}

// BroadcastToRoom delivers event to every connection subscribed to room.
func (r *Router) BroadcastToRoom(room string, event *Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.rooms[room] {
		c.send(event)
	}
}

// BroadcastToRoomExcept delivers event to every connection subscribed to
// room except the one with senderID, so a client never receives its own
// action back as a third-person notification.
func (r *Router) BroadcastToRoomExcept(room, senderID string, event *Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.rooms[room] {
		if c.ID == senderID {
			continue
		}
		c.send(event)
	}
}
