package relay

import "time"

// RoomRegistry tracks room membership sets keyed by room id. It owns the
// leave-before-join ordering and keeps Connection.RoomID and the member sets
// consistent as one unit; like ConnectionRegistry it relies on the Router to
// serialize access.
//
// Rooms are created lazily on first join and deleted as soon as their member
// set becomes empty; an empty room is never observable.
type RoomRegistry struct {
	rooms map[string]map[string]struct{}
	conns *ConnectionRegistry
}

func NewRoomRegistry(conns *ConnectionRegistry) *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]map[string]struct{}),
		conns: conns,
	}
}

// LeaveResult describes the outcome of a leave so the Router can notify the
// remaining members.
type LeaveResult struct {
	RoomID      string
	Left        bool // the connection was actually a member
	RoomDeleted bool
	Remaining   []string
}

// Join adds connID to roomID, first fully leaving any different room the
// connection currently belongs to. The two steps happen back to back under
// the Router's lock, so a connection is never counted in two rooms, even
// momentarily.
//
// It returns the prior room's leave outcome (nil if there was none) and the
// room's member list after the join, for the joining connection to consume.
func (r *RoomRegistry) Join(roomID, connID, username string) (prior *LeaveResult, members []Member) {
	c, ok := r.conns.Get(connID)
	if !ok {
		return nil, nil
	}

	if c.RoomID != "" && c.RoomID != roomID {
		res := r.Leave(connID, c.RoomID)
		prior = &res
	}

	set, ok := r.rooms[roomID]
	if !ok {
		set = make(map[string]struct{})
		r.rooms[roomID] = set
	}
	set[connID] = struct{}{}
	r.conns.SetRoom(connID, roomID)
	c.Username = username

	members = make([]Member, 0, len(set))
	for id := range set {
		name := ""
		if mc, ok := r.conns.Get(id); ok {
			name = mc.Username
		}
		members = append(members, Member{ID: id, Username: name})
	}
	return prior, members
}

// Leave removes connID from roomID's member set if present and deletes the
// room when the set becomes empty. The Connection's RoomID is cleared when it
// points at roomID. Idempotent: leaving a room the connection is not a member
// of is a no-op, not an error.
func (r *RoomRegistry) Leave(connID, roomID string) LeaveResult {
	res := LeaveResult{RoomID: roomID}

	if set, ok := r.rooms[roomID]; ok {
		if _, member := set[connID]; member {
			delete(set, connID)
			res.Left = true
		}
		if len(set) == 0 {
			delete(r.rooms, roomID)
			res.RoomDeleted = true
		} else {
			res.Remaining = make([]string, 0, len(set))
			for id := range set {
				res.Remaining = append(res.Remaining, id)
			}
		}
	}

	if c, ok := r.conns.Get(connID); ok && c.RoomID == roomID {
		c.RoomID = ""
	}
	return res
}

// MembersOf returns the member ids of roomID, empty if the room is absent.
func (r *RoomRegistry) MembersOf(roomID string) []string {
	set, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (r *RoomRegistry) Contains(roomID, connID string) bool {
	set, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	_, member := set[connID]
	return member
}

func (r *RoomRegistry) RoomCount() int {
	return len(r.rooms)
}

func (r *RoomRegistry) MemberCount(roomID string) int {
	return len(r.rooms[roomID])
}

func (r *RoomRegistry) RoomIDs() []string {
	out := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		out = append(out, id)
	}
	return out
}

// earliestConnectedAt returns the oldest ConnectedAt among a room's members,
// used as the room's createdAt in the monitoring API.
func (r *RoomRegistry) earliestConnectedAt(roomID string) time.Time {
	var min time.Time
	for id := range r.rooms[roomID] {
		c, ok := r.conns.Get(id)
		if !ok {
			continue
		}
		if min.IsZero() || c.ConnectedAt.Before(min) {
			min = c.ConnectedAt
		}
	}
	return min
}
