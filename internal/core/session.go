package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast-server/internal/store"
)

// Session is the per-connection protocol state machine. Each inbound event is
// one transition: connect -> joinRoom -> {chatMessage, typing, leaveRoom}* ->
// disconnect. It orchestrates the Registry, Presence table and Router, and is
// the only component that talks to durable storage.
//
// Every transition that mutates a room's presence and broadcasts the
// resulting snapshot runs under that room's lock, so no conflicting
// join/leave can interleave between the mutation and the broadcast. Storage
// calls are issued before the lock is taken: a slow write stalls only the
// issuing connection, never the room.
type Session struct {
	registry *Registry
	presence *Presence
	router   *Router
	gateway  store.Gateway
	log      *zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*roomLock
}

// roomLock serializes presence mutation + broadcast for one room. refs counts
// the holder plus waiters so the map entry can be reclaimed as soon as no
// operation targets the room.
type roomLock struct {
	mu   sync.Mutex
	refs int
}

// NewSession constructs the session coordinator over the given gateway.
func NewSession(gateway store.Gateway, logger *zerolog.Logger) *Session {
	return &Session{
		registry: NewRegistry(),
		presence: NewPresence(),
		router:   NewRouter(),
		gateway:  gateway,
		log:      logger,
		locks:    make(map[string]*roomLock),
	}
}

// Presence exposes the presence table for read-only inspection.
func (s *Session) Presence() *Presence { return s.presence }

// Registry exposes the connection registry for read-only inspection.
func (s *Session) Registry() *Registry { return s.registry }

func (s *Session) lockRoom(room string) *roomLock {
	s.locksMu.Lock()
	l, ok := s.locks[room]
	if !ok {
		l = &roomLock{}
		s.locks[room] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return l
}

func (s *Session) unlockRoom(room string, l *roomLock) {
	l.mu.Unlock()

	s.locksMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, room)
	}
	s.locksMu.Unlock()
}

// Open allocates a new connection. The client is Connected but has no
// identity until the first joinRoom.
func (s *Session) Open() *Client {
	c := NewClient()
	s.registry.OnOpen(c.ID)
	return c
}

// Join handles a joinRoom event: the user record is written first, then the
// history fetched, and only if both succeed does the in-memory state change.
// A connection already bound to another room implicitly leaves it before
// joining the new one.
func (s *Session) Join(ctx context.Context, c *Client, username, room string) {
	if username == "" || room == "" {
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "username and room are required")})
		return
	}

	if err := s.gateway.UpsertUser(ctx, username, c.ID, true); err != nil {
		s.log.Warn().Err(err).Str("user", username).Str("room", room).Msg("join: upsert user failed")
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeStorage, "could not join room: "+err.Error())})
		return
	}
	stored, err := s.gateway.FindMessages(ctx, room)
	if err != nil {
		s.log.Warn().Err(err).Str("room", room).Msg("join: history fetch failed")
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeStorage, "could not load history: "+err.Error())})
		return
	}
	history := make([]Message, len(stored))
	for i, m := range stored {
		history[i] = Message{Room: m.Room, From: m.Username, Text: m.Body, CreatedAt: m.CreatedAt}
	}

	// A prior binding to another room, or to this room under another
	// username, must be fully left first or its presence entry would outlive
	// the connection.
	prevUser, prevRoom, bound := s.registry.Identity(c.ID)
	rejoined := bound && prevRoom == room && prevUser == username
	if bound && prevRoom != "" && !rejoined {
		s.leaveRoom(c, prevUser, prevRoom)
	}

	l := s.lockRoom(room)
	defer s.unlockRoom(room, l)

	s.registry.BindIdentity(c.ID, username, room)
	s.router.Subscribe(room, c)
	var users []string
	if rejoined {
		// The connection already contributes this name; joining again must
		// not inflate its member count.
		users = s.presence.Snapshot(room)
	} else {
		users = s.presence.Join(room, username)
	}

	c.send(&Event{Kind: EventHistory, Room: room, Messages: history})
	s.router.BroadcastToRoom(room, &Event{Kind: EventOnlineUsers, Room: room, Users: users})
	s.router.BroadcastToRoomExcept(room, c.ID, &Event{
		Kind: EventUserJoined,
		Room: room,
		User: username,
		Text: username + " joined the room",
	})

	s.log.Debug().Str("user", username).Str("room", room).Str("conn", c.ID).Msg("joined room")
}

// SendMessage handles a chatMessage event. Whitespace-only bodies are
// silently dropped; the message is persisted with a server timestamp before
// it is broadcast, and a failed write is reported only to the sender.
func (s *Session) SendMessage(ctx context.Context, c *Client, room, username, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	boundUser, boundRoom, ok := s.registry.Identity(c.ID)
	if !ok || boundRoom != room || boundUser != username {
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeNotInRoom, "not joined to room "+room)})
		return
	}

	ts := time.Now()
	if err := s.gateway.InsertMessage(ctx, room, username, text, ts); err != nil {
		s.log.Warn().Err(err).Str("room", room).Msg("message persist failed")
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeStorage, "could not send message: "+err.Error())})
		return
	}

	l := s.lockRoom(room)
	defer s.unlockRoom(room, l)
	s.router.BroadcastToRoom(room, &Event{
		Kind:    EventMessage,
		Room:    room,
		Message: Message{Room: room, From: username, Text: text, CreatedAt: ts},
	})
}

// Typing handles a typing event, relaying the state to everyone in the room
// except the sender.
func (s *Session) Typing(c *Client, room, username string, isTyping bool) {
	_, boundRoom, ok := s.registry.Identity(c.ID)
	if !ok || boundRoom != room {
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeNotInRoom, "not joined to room "+room)})
		return
	}
	l := s.lockRoom(room)
	defer s.unlockRoom(room, l)
	s.router.BroadcastToRoomExcept(room, c.ID, &Event{
		Kind:     EventUserTyping,
		Room:     room,
		User:     username,
		IsTyping: isTyping,
	})
}

// Leave handles an explicit leaveRoom event. The connection stays open with
// no room bound.
func (s *Session) Leave(c *Client, username, room string) {
	boundUser, boundRoom, ok := s.registry.Identity(c.ID)
	if !ok || boundRoom != room || boundUser != username {
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeNotInRoom, "not joined to room "+room)})
		return
	}
	s.leaveRoom(c, username, room)
}

// leaveRoom runs the shared leave flow under the room lock: unbind,
// unsubscribe, presence removal, then snapshot and notice broadcasts.
func (s *Session) leaveRoom(c *Client, username, room string) {
	l := s.lockRoom(room)
	defer s.unlockRoom(room, l)

	s.registry.UnbindRoom(c.ID)
	s.router.Unsubscribe(room, c)
	users := s.presence.Leave(room, username)

	s.router.BroadcastToRoom(room, &Event{Kind: EventOnlineUsers, Room: room, Users: users})
	s.router.BroadcastToRoomExcept(room, c.ID, &Event{
		Kind: EventUserLeft,
		Room: room,
		User: username,
		Text: username + " left the room",
	})

	s.log.Debug().Str("user", username).Str("room", room).Str("conn", c.ID).Msg("left room")
}

// Disconnect handles channel close. In-memory cleanup always runs, even when
// the user-record write fails, so a dead connection can never leave a ghost
// presence entry; the write failure can only be logged since the channel is
// already gone. Closing an already-closed connection is a no-op.
func (s *Session) Disconnect(ctx context.Context, c *Client) {
	username, room, ok := s.registry.OnClose(c.ID)
	if !ok {
		return
	}

	if room != "" {
		s.leaveRoom(c, username, room)
	}
	if username != "" {
		if err := s.gateway.UpsertUser(ctx, username, "", false); err != nil {
			s.log.Warn().Err(err).Str("user", username).Msg("disconnect: user record update failed")
		}
	}
}
