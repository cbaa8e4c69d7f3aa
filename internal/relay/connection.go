package relay

import (
	"time"
)

// Connection is the session record for one live transport connection.
type Connection struct {
	ID          string
	RoomID      string // empty when not in a room
	Username    string
	ConnectedAt time.Time
	LastSeen    time.Time
}

// ConnectionRegistry tracks every live connection and its session metadata.
//
// The registry performs no locking of its own: the Router serializes all
// access through its single mutation point, which is what keeps the
// cross-registry invariants (room membership vs. Connection.RoomID) intact.
type ConnectionRegistry struct {
	conns map[string]*Connection
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[string]*Connection),
	}
}

// Register creates a session record for id. The transport guarantees unique
// ids; a duplicate is an internal invariant violation and is overwritten
// defensively. The second return reports whether an existing record was
// replaced so the caller can log it.
func (r *ConnectionRegistry) Register(id string, now time.Time) (*Connection, bool) {
	_, replaced := r.conns[id]
	c := &Connection{
		ID:          id,
		ConnectedAt: now,
		LastSeen:    now,
	}
	r.conns[id] = c
	return c, replaced
}

func (r *ConnectionRegistry) Get(id string) (*Connection, bool) {
	c, ok := r.conns[id]
	return c, ok
}

// Touch updates LastSeen. No-op for unknown ids (already disconnected) and
// never moves LastSeen backwards.
func (r *ConnectionRegistry) Touch(id string, now time.Time) {
	c, ok := r.conns[id]
	if !ok {
		return
	}
	if now.After(c.LastSeen) {
		c.LastSeen = now
	}
}

// SetRoom mutates the RoomID field. Callers are responsible for keeping room
// membership in sync (see RoomRegistry).
func (r *ConnectionRegistry) SetRoom(id, roomID string) {
	if c, ok := r.conns[id]; ok {
		c.RoomID = roomID
	}
}

// Unregister removes and returns the record. Idempotent: removing an absent
// id returns ok=false, tolerating a disconnect racing the reaper.
func (r *ConnectionRegistry) Unregister(id string) (*Connection, bool) {
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	return c, ok
}

func (r *ConnectionRegistry) Len() int {
	return len(r.conns)
}

// Snapshot returns a copy of all session records for monitoring.
func (r *ConnectionRegistry) Snapshot() []Connection {
	out := make([]Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, *c)
	}
	return out
}

// StaleIDs returns the ids of connections idle longer than threshold.
func (r *ConnectionRegistry) StaleIDs(now time.Time, threshold time.Duration) []string {
	var ids []string
	for id, c := range r.conns {
		if now.Sub(c.LastSeen) > threshold {
			ids = append(ids, id)
		}
	}
	return ids
}
