// Package room owns the in-memory pairing state: the room table, the
// connection→room index, and every membership mutation. Rooms hold at most
// two occupants and are deleted the moment they empty.
package room

import (
	"github.com/overdive/call-relay/internal/auth"
)

// MaxOccupants is the hard cap per room; a third join is always rejected.
const MaxOccupants = 2

// Occupant is the snapshot of a connection taken at join time. It is owned
// by its room and never re-fetched; callers receive copies.
type Occupant struct {
	ConnID    string
	Principal auth.Principal
}

// room is the registry's internal representation. Only the Registry mutates
// it, always under the registry lock.
type room struct {
	id        string
	occupants map[string]Occupant // keyed by connection id
}

func (r *room) occupantSnapshot() []Occupant {
	out := make([]Occupant, 0, len(r.occupants))
	for _, occ := range r.occupants {
		out = append(out, occ)
	}
	return out
}

// Info is a read-only snapshot of a room for callers outside the registry.
type Info struct {
	ID        string
	Occupants []Occupant
}
