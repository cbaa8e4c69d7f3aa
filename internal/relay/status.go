package relay

import "time"

// MemberStatus is one room member as reported by the monitoring API.
type MemberStatus struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastSeen    time.Time `json:"lastSeen"`
}

// RoomStatus is one room as reported by GET /api/rooms.
type RoomStatus struct {
	MemberCount int            `json:"memberCount"`
	Members     []MemberStatus `json:"members"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// UserStatus is one connection as reported by GET /api/users.
type UserStatus struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	RoomID      string    `json:"roomId,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastSeen    time.Time `json:"lastSeen"`
	IsOnline    bool      `json:"isOnline"`
}

// RoomsSnapshot returns the monitoring view of all rooms.
func (r *Router) RoomsSnapshot() map[string]RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]RoomStatus, r.rooms.RoomCount())
	for _, roomID := range r.rooms.RoomIDs() {
		ids := r.rooms.MembersOf(roomID)
		members := make([]MemberStatus, 0, len(ids))
		for _, id := range ids {
			c, ok := r.conns.Get(id)
			if !ok {
				continue
			}
			members = append(members, MemberStatus{
				ID:          c.ID,
				Username:    c.Username,
				ConnectedAt: c.ConnectedAt,
				LastSeen:    c.LastSeen,
			})
		}
		out[roomID] = RoomStatus{
			MemberCount: len(members),
			Members:     members,
			CreatedAt:   r.rooms.earliestConnectedAt(roomID),
		}
	}
	return out
}

// UsersSnapshot returns the monitoring view of all connections.
func (r *Router) UsersSnapshot() map[string]UserStatus {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]UserStatus, r.conns.Len())
	for _, c := range r.conns.Snapshot() {
		out[c.ID] = UserStatus{
			ID:          c.ID,
			Username:    c.Username,
			RoomID:      c.RoomID,
			ConnectedAt: c.ConnectedAt,
			LastSeen:    c.LastSeen,
			IsOnline:    now.Sub(c.LastSeen) <= onlineWindow,
		}
	}
	return out
}

// Counts returns the number of active rooms and connections for /health.
func (r *Router) Counts() (rooms, users int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms.RoomCount(), r.conns.Len()
}
