package room

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room is full")
	ErrNoPeer       = errors.New("no peer in room")
)

// Registry is the sole owner of all rooms. Every membership change runs
// under one lock, so mutations to a room's occupant set and to the id→room
// mapping never interleave. The byConn index is maintained alongside the
// room table so disconnect-driven cleanup is a lookup, not a scan.
//
// All methods return snapshots; no caller ever holds a live room reference.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*room
	byConn map[string]string // connection id → room id
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]*room),
		byConn: make(map[string]string),
	}
}

// MatchResult is the outcome of AutoMatch and of JoinOrCreate.
type MatchResult struct {
	RoomID    string
	IsCreator bool
	// Peer is the occupant already waiting in the room, set when IsCreator
	// is false. The caller notifies it; the registry never does.
	Peer *Occupant
}

// Exists reports whether a room id is registered. Non-reserving: a true
// result guarantees nothing about a later join.
func (g *Registry) Exists(roomID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.rooms[roomID]
	return ok
}

// Get returns a snapshot of a room.
func (g *Registry) Get(roomID string) (Info, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[roomID]
	if !ok {
		return Info{}, false
	}
	return Info{ID: r.id, Occupants: r.occupantSnapshot()}, true
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// AutoMatch pairs the caller with any waiting room (exactly one occupant),
// or creates a new room with the caller as sole occupant. Tie-break among
// multiple waiting rooms is arbitrary. The caller must not already be in a
// room.
func (g *Registry) AutoMatch(occ Occupant) MatchResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, r := range g.rooms {
		if len(r.occupants) != 1 {
			continue
		}
		var peer Occupant
		for _, existing := range r.occupants {
			peer = existing
		}
		// Never pair a connection with itself.
		if peer.ConnID == occ.ConnID {
			continue
		}
		g.addLocked(r, occ)
		return MatchResult{RoomID: r.id, IsCreator: false, Peer: &peer}
	}

	r := g.createLocked()
	g.addLocked(r, occ)
	return MatchResult{RoomID: r.id, IsCreator: true}
}

// JoinOrCreate implements join-room without a room id: a fresh room with the
// caller as sole occupant, in the same table AutoMatch scans.
func (g *Registry) JoinOrCreate(occ Occupant) MatchResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := g.createLocked()
	g.addLocked(r, occ)
	return MatchResult{RoomID: r.id, IsCreator: true}
}

// Join adds the caller to an existing room. On error no state changes:
// ErrRoomNotFound for an unknown id, ErrRoomFull at two occupants.
func (g *Registry) Join(roomID string, occ Occupant) (MatchResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return MatchResult{}, ErrRoomNotFound
	}
	if _, already := r.occupants[occ.ConnID]; already {
		// Rejoining a room the connection is in is a no-op success.
		return MatchResult{RoomID: r.id}, nil
	}
	if len(r.occupants) >= MaxOccupants {
		return MatchResult{}, ErrRoomFull
	}

	var peer *Occupant
	for _, existing := range r.occupants {
		p := existing
		peer = &p
	}
	g.addLocked(r, occ)
	return MatchResult{RoomID: r.id, Peer: peer}, nil
}

// Peer resolves the counterparty of connID in roomID: the occupant whose
// connection id differs.
func (g *Registry) Peer(roomID, connID string) (Occupant, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return Occupant{}, ErrRoomNotFound
	}
	for id, occ := range r.occupants {
		if id != connID {
			return occ, nil
		}
	}
	return Occupant{}, ErrNoPeer
}

// Leave removes connID from roomID and deletes the room if it empties.
// Removing an absent connection id is a no-op, never an error. The returned
// peer (nil when the room emptied or was unknown) is the remaining occupant
// to notify.
func (g *Registry) Leave(roomID, connID string) (peer *Occupant) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return nil
	}
	return g.removeLocked(r, connID)
}

// RemoveConnection is the abrupt-disconnect path: it finds the connection's
// room through the index and removes it exactly as Leave does. ok is false
// when the connection was in no room.
func (g *Registry) RemoveConnection(connID string) (roomID string, peer *Occupant, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	roomID, ok = g.byConn[connID]
	if !ok {
		return "", nil, false
	}
	r := g.rooms[roomID]
	peer = g.removeLocked(r, connID)
	return roomID, peer, true
}

// RoomOf returns the room a connection currently occupies.
func (g *Registry) RoomOf(connID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	roomID, ok := g.byConn[connID]
	return roomID, ok
}

func (g *Registry) createLocked() *room {
	id := uuid.NewString()
	r := &room{id: id, occupants: make(map[string]Occupant, MaxOccupants)}
	g.rooms[id] = r
	return r
}

func (g *Registry) addLocked(r *room, occ Occupant) {
	// A connection occupies at most one room; joining a new room implicitly
	// leaves the old one so the invariant cannot be violated.
	if prevID, ok := g.byConn[occ.ConnID]; ok && prevID != r.id {
		if prev, exists := g.rooms[prevID]; exists {
			g.removeLocked(prev, occ.ConnID)
		}
	}
	r.occupants[occ.ConnID] = occ
	g.byConn[occ.ConnID] = r.id
}

func (g *Registry) removeLocked(r *room, connID string) (peer *Occupant) {
	if _, ok := r.occupants[connID]; !ok {
		return nil
	}
	delete(r.occupants, connID)
	if g.byConn[connID] == r.id {
		delete(g.byConn, connID)
	}

	if len(r.occupants) == 0 {
		delete(g.rooms, r.id)
		return nil
	}
	for _, occ := range r.occupants {
		p := occ
		return &p
	}
	return nil
}
