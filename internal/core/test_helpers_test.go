package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event kind %v received: %+v", kind, ev)
			}
		default:
			return
		}
	}
}

// fakeGateway is an in-memory store.Gateway with switchable failure modes.
type fakeGateway struct {
	mu       sync.Mutex
	users    map[string]store.User
	messages []store.Message

	failUpsert bool
	failInsert bool
	failFind   bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{users: make(map[string]store.User)}
}

func (g *fakeGateway) UpsertUser(_ context.Context, username, connectionID string, online bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failUpsert {
		return errors.New("upsert failed")
	}
	u := g.users[username]
	u.Username = username
	u.ConnectionID = connectionID
	u.Online = online
	g.users[username] = u
	return nil
}

func (g *fakeGateway) InsertMessage(_ context.Context, room, username, text string, ts time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failInsert {
		return errors.New("insert failed")
	}
	g.messages = append(g.messages, store.Message{
		ID:        int64(len(g.messages) + 1),
		Room:      room,
		Username:  username,
		Body:      text,
		CreatedAt: ts,
	})
	return nil
}

func (g *fakeGateway) FindMessages(_ context.Context, room string) ([]store.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failFind {
		return nil, errors.New("find failed")
	}
	out := []store.Message{}
	for _, m := range g.messages {
		if m.Room == room {
			out = append(out, m)
		}
	}
	return out, nil
}

func (g *fakeGateway) messageCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.messages)
}

func (g *fakeGateway) user(username string) (store.User, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[username]
	return u, ok
}

func newTestSession(gw store.Gateway) *Session {
	logger := zerolog.Nop()
	return NewSession(gw, &logger)
}
