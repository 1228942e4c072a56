package core

import "sync"

// binding is the registry's view of one open connection.
type binding struct {
	username string
	room     string
}

// Registry tracks every open connection and its bound identity.
// It owns no other state: presence and persistence are orchestrated
// by the Session, never from here.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*binding
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*binding)}
}

// OnOpen records a newly opened connection with no identity yet.
func (r *Registry) OnOpen(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &binding{}
}

// BindIdentity records username and room on the connection. Calling it again
// for the same connection overwrites the prior binding (re-join).
// Returns false if the connection is not open.
func (r *Registry) BindIdentity(id, username, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.conns[id]
	if !ok {
		return false
	}
	b.username = username
	b.room = room
	return true
}

// UnbindRoom clears the room binding but keeps the connection open.
func (r *Registry) UnbindRoom(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.conns[id]; ok {
		b.room = ""
	}
}

// Identity returns the current binding for a connection.
func (r *Registry) Identity(id string) (username, room string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.conns[id]
	if !ok {
		return "", "", false
	}
	return b.username, b.room, true
}

// OnClose removes the connection and returns its last bound identity.
// The read-and-clear is atomic with respect to concurrent reads, and closing
// an already-closed connection is a no-op returning ok=false.
func (r *Registry) OnClose(id string) (username, room string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.conns[id]
	if !ok {
		return "", "", false
	}
	delete(r.conns, id)
	return b.username, b.room, true
}
