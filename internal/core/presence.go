package core

import "sync"

// presenceMember is one username in a room with the number of connections
// currently contributing it. Two connections sharing a name must both leave
// before the name drops out of the snapshot.
type presenceMember struct {
	name string
	refs int
}

// roomSet holds one room's online members in join order, so every snapshot
// of a given state looks the same to every recipient.
type roomSet struct {
	mu      sync.Mutex
	members []presenceMember
}

func (s *roomSet) add(username string) {
	for i := range s.members {
		if s.members[i].name == username {
			s.members[i].refs++
			return
		}
	}
	s.members = append(s.members, presenceMember{name: username, refs: 1})
}

func (s *roomSet) remove(username string) {
	for i := range s.members {
		if s.members[i].name == username {
			s.members[i].refs--
			if s.members[i].refs <= 0 {
				s.members = append(s.members[:i], s.members[i+1:]...)
			}
			return
		}
	}
}

func (s *roomSet) snapshot() []string {
	out := make([]string, len(s.members))
	for i, m := range s.members {
		out[i] = m.name
	}
	return out
}

// Presence is the authoritative in-memory view of who is online where.
// It is empty at process start and rebuilt purely from live connection
// activity; it is never reconciled from durable storage.
//
// The outer RWMutex guards the room map, the per-room mutex serializes
// membership changes, so rooms never block each other. Lock order is
// always outer before room.
type Presence struct {
	mu    sync.RWMutex
	rooms map[string]*roomSet
}

// NewPresence constructs an empty presence table.
func NewPresence() *Presence {
	return &Presence{rooms: make(map[string]*roomSet)}
}

// Join adds username to the room's member set, creating the room entry if
// absent, and returns the resulting snapshot. Joins are counted per member:
// each connection contributing a name must Leave it once for the name to
// drop out.
func (p *Presence) Join(room, username string) []string {
	for {
		p.mu.RLock()
		set, ok := p.rooms[room]
		if ok {
			// Holding the read lock across the mutation keeps a concurrent
			// empty-room delete from orphaning this entry mid-add.
			set.mu.Lock()
			set.add(username)
			snap := set.snapshot()
			set.mu.Unlock()
			p.mu.RUnlock()
			return snap
		}
		p.mu.RUnlock()

		p.mu.Lock()
		if _, exists := p.rooms[room]; !exists {
			p.rooms[room] = &roomSet{}
		}
		p.mu.Unlock()
	}
}

// Leave removes username from the room's set if present; removing an absent
// member is a no-op, since explicit leave and later disconnect processing
// may both clean up the same user. The room entry is deleted once empty.
// Returns the resulting snapshot.
func (p *Presence) Leave(room, username string) []string {
	p.mu.RLock()
	set, ok := p.rooms[room]
	if !ok {
		p.mu.RUnlock()
		return nil
	}
	set.mu.Lock()
	set.remove(username)
	snap := set.snapshot()
	empty := len(set.members) == 0
	set.mu.Unlock()
	p.mu.RUnlock()

	if empty {
		p.mu.Lock()
		if cur, ok := p.rooms[room]; ok {
			cur.mu.Lock()
			if len(cur.members) == 0 {
				delete(p.rooms, room)
			}
			cur.mu.Unlock()
		}
		p.mu.Unlock()
	}
	return snap
}

// Snapshot returns the current member names for a room, empty for an
// unknown room.
func (p *Presence) Snapshot(room string) []string {
	p.mu.RLock()
	set, ok := p.rooms[room]
	if !ok {
		p.mu.RUnlock()
		return nil
	}
	set.mu.Lock()
	snap := set.snapshot()
	set.mu.Unlock()
	p.mu.RUnlock()
	return snap
}
