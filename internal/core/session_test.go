package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSessionJoinBroadcastAndLeave(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	s := newTestSession(gw)

	alice := s.Open()
	bob := s.Open()

	s.Join(ctx, alice, "alice", "general")
	s.Join(ctx, bob, "bob", "general")

	// Alice sees Bob's arrival: a fresh snapshot plus a joined notice.
	snap := mustEvent(t, alice.Events, EventOnlineUsers)
	if !equalStrings(snap.Users, []string{"alice"}) {
		t.Fatalf("unexpected first snapshot: %v", snap.Users)
	}
	snap = mustEvent(t, alice.Events, EventOnlineUsers)
	if !equalStrings(snap.Users, []string{"alice", "bob"}) {
		t.Fatalf("unexpected second snapshot: %v", snap.Users)
	}
	joined := mustEvent(t, alice.Events, EventUserJoined)
	if joined.User != "bob" || joined.Room != "general" {
		t.Fatalf("unexpected join notice: %+v", joined)
	}

	// Bob never receives his own joined notice.
	mustEvent(t, bob.Events, EventOnlineUsers)
	mustNoEvent(t, bob.Events, EventUserJoined)

	s.SendMessage(ctx, alice, "general", "alice", "hi")
	msg := mustEvent(t, bob.Events, EventMessage)
	if msg.Message.Text != "hi" || msg.Message.From != "alice" || msg.Message.Room != "general" {
		t.Fatalf("unexpected message event: %+v", msg)
	}
	// Full broadcast includes the sender.
	msg = mustEvent(t, alice.Events, EventMessage)
	if msg.Message.Text != "hi" {
		t.Fatalf("sender did not receive own message: %+v", msg)
	}

	// The leave flow broadcasts the fresh snapshot first, then the notice.
	s.Leave(alice, "alice", "general")
	snap = mustEvent(t, bob.Events, EventOnlineUsers)
	if !equalStrings(snap.Users, []string{"bob"}) {
		t.Fatalf("unexpected snapshot after leave: %v", snap.Users)
	}
	left := mustEvent(t, bob.Events, EventUserLeft)
	if left.User != "alice" || left.Room != "general" {
		t.Fatalf("unexpected leave notice: %+v", left)
	}

	// Leaver stays connected with no room bound.
	user, room, ok := s.Registry().Identity(alice.ID)
	if !ok || user != "alice" || room != "" {
		t.Fatalf("unexpected binding after leave: %q %q %v", user, room, ok)
	}
}

func TestSessionHistoryDeliveredToJoinerOnly(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	_ = gw.InsertMessage(ctx, "general", "old", "first", time.Unix(100, 0))
	_ = gw.InsertMessage(ctx, "other", "old", "elsewhere", time.Unix(150, 0))
	_ = gw.InsertMessage(ctx, "general", "old", "second", time.Unix(200, 0))

	s := newTestSession(gw)
	alice := s.Open()
	s.Join(ctx, alice, "alice", "general")

	history := mustEvent(t, alice.Events, EventHistory)
	if len(history.Messages) != 2 {
		t.Fatalf("expected 2 history messages, got %d", len(history.Messages))
	}
	if history.Messages[0].Text != "first" || history.Messages[1].Text != "second" {
		t.Fatalf("history out of order: %+v", history.Messages)
	}
	for i := 1; i < len(history.Messages); i++ {
		if history.Messages[i].CreatedAt.Before(history.Messages[i-1].CreatedAt) {
			t.Fatalf("history timestamps decrease at %d", i)
		}
	}

	bob := s.Open()
	s.Join(ctx, bob, "bob", "general")
	// Alice must not receive Bob's history.
	mustNoEvent(t, alice.Events, EventHistory)
}

func TestSessionWhitespaceMessageDropped(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	s := newTestSession(gw)

	alice := s.Open()
	bob := s.Open()
	s.Join(ctx, alice, "alice", "general")
	s.Join(ctx, bob, "bob", "general")

	s.SendMessage(ctx, alice, "general", "alice", "   ")

	if n := gw.messageCount(); n != 0 {
		t.Fatalf("whitespace message was persisted: %d records", n)
	}
	mustNoEvent(t, bob.Events, EventMessage)
	mustNoEvent(t, alice.Events, EventError)
}

func TestSessionTypingExcludesSender(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(newFakeGateway())

	alice := s.Open()
	bob := s.Open()
	s.Join(ctx, alice, "alice", "general")
	s.Join(ctx, bob, "bob", "general")

	s.Typing(alice, "general", "alice", true)

	typing := mustEvent(t, bob.Events, EventUserTyping)
	if typing.User != "alice" || !typing.IsTyping {
		t.Fatalf("unexpected typing event: %+v", typing)
	}
	mustNoEvent(t, alice.Events, EventUserTyping)
}

func TestSessionSendWithoutJoin(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	s := newTestSession(gw)

	alice := s.Open()
	s.SendMessage(ctx, alice, "general", "alice", "hi")

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotInRoom {
		t.Fatalf("expected not_in_room error, got %+v", ev)
	}
	if gw.messageCount() != 0 {
		t.Fatal("message persisted without join")
	}
}

func TestSessionDisconnectCleansPresence(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	s := newTestSession(gw)

	alice := s.Open()
	bob := s.Open()
	s.Join(ctx, alice, "alice", "general")
	s.Join(ctx, bob, "bob", "general")

	// Abrupt close, no explicit leaveRoom.
	s.Disconnect(ctx, alice)

	left := mustEvent(t, bob.Events, EventUserLeft)
	if left.User != "alice" {
		t.Fatalf("unexpected left notice: %+v", left)
	}
	snap := s.Presence().Snapshot("general")
	if !equalStrings(snap, []string{"bob"}) {
		t.Fatalf("presence still contains disconnected user: %v", snap)
	}
	if u, ok := gw.user("alice"); !ok || u.Online || u.ConnectionID != "" {
		t.Fatalf("user record not marked offline: %+v", u)
	}

	// Second close of the same connection is a no-op.
	s.Disconnect(ctx, alice)
	mustNoEvent(t, bob.Events, EventUserLeft)
}

func TestSessionLeaveThenDisconnectIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(newFakeGateway())

	alice := s.Open()
	bob := s.Open()
	s.Join(ctx, alice, "alice", "general")
	s.Join(ctx, bob, "bob", "general")

	s.Leave(alice, "alice", "general")
	mustEvent(t, bob.Events, EventUserLeft)

	// Disconnect after leave cleans the registry without a second notice.
	s.Disconnect(ctx, alice)
	mustNoEvent(t, bob.Events, EventUserLeft)

	if _, _, ok := s.Registry().Identity(alice.ID); ok {
		t.Fatal("registry entry survived disconnect")
	}
}

func TestSessionRejoinMovesPresence(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(newFakeGateway())

	alice := s.Open()
	bob := s.Open()
	s.Join(ctx, alice, "alice", "general")
	s.Join(ctx, bob, "bob", "general")

	// Joining a second room implicitly leaves the first.
	s.Join(ctx, alice, "alice", "random")

	left := mustEvent(t, bob.Events, EventUserLeft)
	if left.User != "alice" || left.Room != "general" {
		t.Fatalf("unexpected left notice: %+v", left)
	}
	if snap := s.Presence().Snapshot("general"); !equalStrings(snap, []string{"bob"}) {
		t.Fatalf("stale presence in old room: %v", snap)
	}
	if snap := s.Presence().Snapshot("random"); !equalStrings(snap, []string{"alice"}) {
		t.Fatalf("missing presence in new room: %v", snap)
	}
	_, room, _ := s.Registry().Identity(alice.ID)
	if room != "random" {
		t.Fatalf("registry bound to %q, want random", room)
	}
}

func TestSessionRejoinSameRoomNewUsername(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(newFakeGateway())

	alice := s.Open()
	bob := s.Open()
	s.Join(ctx, alice, "alice", "general")
	s.Join(ctx, bob, "bob", "general")

	// Re-joining the same room under a new name must retire the old one.
	s.Join(ctx, alice, "alicia", "general")

	if snap := s.Presence().Snapshot("general"); !equalStrings(snap, []string{"bob", "alicia"}) {
		t.Fatalf("old username survived the rename: %v", snap)
	}
	user, room, _ := s.Registry().Identity(alice.ID)
	if user != "alicia" || room != "general" {
		t.Fatalf("unexpected binding after rename: %q %q", user, room)
	}

	s.Disconnect(ctx, alice)
	if snap := s.Presence().Snapshot("general"); !equalStrings(snap, []string{"bob"}) {
		t.Fatalf("ghost presence entry after disconnect: %v", snap)
	}
}

func TestSessionSharedUsernameTwoConnections(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(newFakeGateway())

	first := s.Open()
	second := s.Open()
	s.Join(ctx, first, "alice", "general")
	s.Join(ctx, second, "alice", "general")

	if snap := s.Presence().Snapshot("general"); !equalStrings(snap, []string{"alice"}) {
		t.Fatalf("unexpected snapshot: %v", snap)
	}

	// One connection closing must not drop the name while the other is
	// still bound to the room.
	s.Disconnect(ctx, first)
	if snap := s.Presence().Snapshot("general"); !equalStrings(snap, []string{"alice"}) {
		t.Fatalf("name dropped while a connection is still joined: %v", snap)
	}

	s.Disconnect(ctx, second)
	if snap := s.Presence().Snapshot("general"); len(snap) != 0 {
		t.Fatalf("name survived both disconnects: %v", snap)
	}
}

func TestSessionRoomLocksReleased(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(newFakeGateway())

	alice := s.Open()
	s.Join(ctx, alice, "alice", "general")
	s.SendMessage(ctx, alice, "general", "alice", "hi")
	s.Leave(alice, "alice", "general")
	s.Disconnect(ctx, alice)

	s.locksMu.Lock()
	n := len(s.locks)
	s.locksMu.Unlock()
	if n != 0 {
		t.Fatalf("%d room locks left after all operations finished", n)
	}
}

func TestSessionJoinUpsertFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.failUpsert = true
	s := newTestSession(gw)

	alice := s.Open()
	s.Join(ctx, alice, "alice", "general")

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeStorage {
		t.Fatalf("expected storage error, got %+v", ev)
	}
	if snap := s.Presence().Snapshot("general"); len(snap) != 0 {
		t.Fatalf("failed join mutated presence: %v", snap)
	}
	if _, room, _ := s.Registry().Identity(alice.ID); room != "" {
		t.Fatalf("failed join bound a room: %q", room)
	}
	mustNoEvent(t, alice.Events, EventHistory)
}

func TestSessionJoinHistoryFetchFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.failFind = true
	s := newTestSession(gw)

	alice := s.Open()
	s.Join(ctx, alice, "alice", "general")

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeStorage {
		t.Fatalf("expected storage error, got %+v", ev)
	}
	if snap := s.Presence().Snapshot("general"); len(snap) != 0 {
		t.Fatalf("failed join mutated presence: %v", snap)
	}
	if _, room, _ := s.Registry().Identity(alice.ID); room != "" {
		t.Fatalf("failed join bound a room: %q", room)
	}
	mustNoEvent(t, alice.Events, EventHistory)
}

func TestSessionMessagePersistFailureNotBroadcast(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	s := newTestSession(gw)

	alice := s.Open()
	bob := s.Open()
	s.Join(ctx, alice, "alice", "general")
	s.Join(ctx, bob, "bob", "general")

	gw.failInsert = true
	s.SendMessage(ctx, alice, "general", "alice", "hi")

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeStorage {
		t.Fatalf("expected storage error, got %+v", ev)
	}
	mustNoEvent(t, bob.Events, EventMessage)
}

func TestSessionDisconnectCleanupSurvivesStoreFailure(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	s := newTestSession(gw)

	alice := s.Open()
	bob := s.Open()
	s.Join(ctx, alice, "alice", "general")
	s.Join(ctx, bob, "bob", "general")

	gw.failUpsert = true
	s.Disconnect(ctx, alice)

	// In-memory cleanup must happen even though the offline write failed.
	if snap := s.Presence().Snapshot("general"); !equalStrings(snap, []string{"bob"}) {
		t.Fatalf("ghost presence entry after failed disconnect write: %v", snap)
	}
	if _, _, ok := s.Registry().Identity(alice.ID); ok {
		t.Fatal("registry entry survived disconnect")
	}
	mustEvent(t, bob.Events, EventUserLeft)
}

func TestSessionConcurrentJoinsSameRoom(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(newFakeGateway())

	const n = 2
	clients := make([]*Client, n)
	names := []string{"alice", "bob"}
	for i := range clients {
		clients[i] = s.Open()
	}

	var wg sync.WaitGroup
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Join(ctx, clients[i], names[i], "r")
		}(i)
	}
	wg.Wait()

	snap := s.Presence().Snapshot("r")
	if len(snap) != n {
		t.Fatalf("expected %d members, got %v", n, snap)
	}
	seen := map[string]bool{}
	for _, u := range snap {
		seen[u] = true
	}
	if !seen["alice"] || !seen["bob"] {
		t.Fatalf("snapshot missing members: %v", snap)
	}
}

func TestSessionJoinWithoutPersistedRoom(t *testing.T) {
	// Rooms are logically createable by the first joiner: no Room record is
	// ever consulted on the join path.
	ctx := context.Background()
	s := newTestSession(newFakeGateway())

	alice := s.Open()
	s.Join(ctx, alice, "alice", "never-created")

	mustEvent(t, alice.Events, EventHistory)
	snap := mustEvent(t, alice.Events, EventOnlineUsers)
	if !equalStrings(snap.Users, []string{"alice"}) {
		t.Fatalf("unexpected snapshot: %v", snap.Users)
	}
}
