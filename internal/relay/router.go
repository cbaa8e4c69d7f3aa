// Package relay implements the room/session registry and message-routing
// core of the signaling server: connection lifecycle tracking, room
// membership bookkeeping, targeted and broadcast dispatch, inbound event
// validation, and reaping of stale sessions.
package relay

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/miniduonline/webrtc-video-call/internal/metrics"
	"github.com/miniduonline/webrtc-video-call/internal/ratelimit"
)

// onlineWindow is how recently a connection must have been seen to count as
// online in the monitoring API.
const onlineWindow = 30 * time.Second

// Sender delivers one outbound message to a single connection's transport.
//
// Send must not block: implementations enqueue into a bounded buffer and
// report false when the message was dropped (queue full or connection gone).
// Close tears the transport down; it must be safe to call more than once.
type Sender interface {
	Send(msg ServerMessage) bool
	Close()
}

// RouterConfig wires the Router's runtime dependencies. Zero values get
// sensible defaults.
type RouterConfig struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Clock   ratelimit.Clock
	Version string
}

// Router owns the registries and is the single serialized mutation point for
// all shared state. Events from different connections may arrive
// concurrently; every handler runs under one mutex so the cross-registry
// invariants hold at each instant and one connection's fault cannot leave
// the registries half-mutated.
type Router struct {
	log     *slog.Logger
	m       *metrics.Metrics
	clock   ratelimit.Clock
	version string

	mu      sync.Mutex
	conns   *ConnectionRegistry
	rooms   *RoomRegistry
	senders map[string]Sender

	faults       atomic.Uint64
	shutdownOnce sync.Once
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = ratelimit.RealClock{}
	}

	conns := NewConnectionRegistry()
	return &Router{
		log:     cfg.Logger,
		m:       cfg.Metrics,
		clock:   cfg.Clock,
		version: cfg.Version,
		conns:   conns,
		rooms:   NewRoomRegistry(conns),
		senders: make(map[string]Sender),
	}
}

// Connect registers a new connection and sends its welcome event.
func (r *Router) Connect(id string, s Sender) {
	r.mu.Lock()
	_, replaced := r.conns.Register(id, r.clock.Now())
	r.senders[id] = s
	r.mu.Unlock()

	if replaced {
		// Transport ids are unique by contract; log and carry on with the
		// fresh record.
		r.log.Error("duplicate connection id registered", "id", id)
	}

	r.m.Inc(metrics.Connects)
	r.log.Info("user connected", "id", id)

	r.sendTo(id, ServerMessage{
		Type:    EventConnected,
		ID:      id,
		Version: r.version,
		Message: "Connected to WebRTC signaling server",
	})
}

// Disconnect performs the departure sequence for a closed transport
// connection: leave the current room (notifying remaining members), then
// unregister. Idempotent, so a disconnect racing the reaper is harmless.
func (r *Router) Disconnect(id string) {
	r.mu.Lock()
	var leave LeaveResult
	if c, ok := r.conns.Get(id); ok && c.RoomID != "" {
		leave = r.rooms.Leave(id, c.RoomID)
	}
	_, existed := r.conns.Unregister(id)
	delete(r.senders, id)
	r.mu.Unlock()

	if !existed {
		return
	}

	r.notifyUserLeft(id, leave)
	r.m.Inc(metrics.Disconnects)
	r.log.Info("user disconnected", "id", id)
}

// Handle processes one inbound frame from connection id. Validation failures
// and handler faults are converted into sender-only error events; nothing
// escapes to affect other connections.
func (r *Router) Handle(id string, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.faults.Add(1)
			r.m.Inc(metrics.InternalFaults)
			r.log.Error("panic while handling event",
				"id", id,
				"recover", rec,
				"stack", string(debug.Stack()),
			)
			r.sendError(id, "internal server error")
		}
	}()

	// Any inbound activity counts as presence.
	r.Touch(id)

	msg, err := ParseClientMessage(data)
	if err != nil {
		r.m.Inc(metrics.ValidationErrors)
		r.sendError(id, err.Error())
		return
	}

	switch msg.Type {
	case EventJoinRoom:
		r.handleJoin(id, msg)
	case EventLeaveRoom:
		r.handleLeave(id, msg)
	case EventOffer, EventAnswer, EventICECandidate, EventConnectionState:
		r.relaySignal(id, msg)
	case EventPing:
		r.m.Inc(metrics.Pings)
		r.sendTo(id, ServerMessage{Type: EventPong})
	}
}

// Touch refreshes a connection's LastSeen. Called for protocol events and by
// the transport on keepalive pongs.
func (r *Router) Touch(id string) {
	r.mu.Lock()
	r.conns.Touch(id, r.clock.Now())
	r.mu.Unlock()
}

func (r *Router) handleJoin(id string, msg ClientMessage) {
	username := msg.Username
	if username == "" {
		username = "anonymous"
	}

	r.mu.Lock()
	prior, members := r.rooms.Join(msg.RoomID, id, username)
	memberCount := r.rooms.MemberCount(msg.RoomID)
	r.mu.Unlock()

	if members == nil {
		// Connection vanished between read and dispatch.
		return
	}

	if prior != nil {
		r.notifyUserLeft(id, *prior)
	}

	r.sendTo(id, ServerMessage{
		Type:    EventRoomJoined,
		RoomID:  msg.RoomID,
		ID:      id,
		Members: members,
	})
	for _, m := range members {
		if m.ID == id {
			continue
		}
		r.sendTo(m.ID, ServerMessage{
			Type:     EventUserJoined,
			RoomID:   msg.RoomID,
			UserID:   id,
			Username: username,
		})
	}

	r.m.Inc(metrics.RoomsJoined)
	r.log.Info("user joined room", "id", id, "room", msg.RoomID, "members", memberCount)
}

func (r *Router) handleLeave(id string, msg ClientMessage) {
	r.mu.Lock()
	res := r.rooms.Leave(id, msg.RoomID)
	r.mu.Unlock()

	r.notifyUserLeft(id, res)
	if res.Left {
		r.m.Inc(metrics.RoomsLeft)
		r.log.Info("user left room", "id", id, "room", msg.RoomID)
	}
}

// relaySignal forwards offer/answer/ice-candidate/connection-state payloads
// without interpreting them. Targeted events go to the target only; the rest
// fan out to every other current member of the room.
func (r *Router) relaySignal(id string, msg ClientMessage) {
	out := ServerMessage{
		Type:      msg.Type,
		RoomID:    msg.RoomID,
		From:      id,
		Offer:     msg.Offer,
		Answer:    msg.Answer,
		Candidate: msg.Candidate,
		State:     msg.State,
	}

	if msg.TargetID != "" {
		// Unknown targets are a no-op: the peer may have just disconnected.
		r.sendTo(msg.TargetID, out)
		r.m.Inc(metrics.SignalsRelayed)
		return
	}

	r.mu.Lock()
	targets := r.rooms.MembersOf(msg.RoomID)
	r.mu.Unlock()

	for _, target := range targets {
		if target == id {
			continue
		}
		r.sendTo(target, out)
	}
	r.m.Inc(metrics.SignalsRelayed)
}

// EvictStale forces the departure of every connection idle longer than
// threshold, through the same path a transport disconnect takes. Returns the
// number of evicted connections.
func (r *Router) EvictStale(threshold time.Duration) int {
	r.mu.Lock()
	ids := r.conns.StaleIDs(r.clock.Now(), threshold)
	r.mu.Unlock()

	for _, id := range ids {
		r.mu.Lock()
		s := r.senders[id]
		r.mu.Unlock()

		r.log.Info("evicting stale connection", "id", id)
		r.Disconnect(id)
		if s != nil {
			s.Close()
		}
		r.m.Inc(metrics.StaleEvicted)
	}
	return len(ids)
}

// Shutdown broadcasts a shutdown notice to every live connection. Exactly
// one broadcast runs per process lifetime, no matter how many termination
// signals arrive.
func (r *Router) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.mu.Lock()
		senders := make([]Sender, 0, len(r.senders))
		for _, s := range r.senders {
			senders = append(senders, s)
		}
		r.mu.Unlock()

		r.log.Info("broadcasting shutdown notice", "connections", len(senders))
		msg := ServerMessage{
			Type:      EventServerShutdown,
			Message:   "server is shutting down",
			Timestamp: r.clock.Now().UnixMilli(),
		}
		for _, s := range senders {
			s.Send(msg)
		}
	})
}

// Degraded reports whether an unexpected handler fault has occurred since
// startup. Surfaced via /health so operators can tell a possibly-degraded
// process from a healthy one.
func (r *Router) Degraded() bool {
	return r.faults.Load() > 0
}

func (r *Router) notifyUserLeft(id string, res LeaveResult) {
	if !res.Left {
		return
	}
	msg := ServerMessage{
		Type:   EventUserLeft,
		RoomID: res.RoomID,
		UserID: id,
	}
	for _, target := range res.Remaining {
		r.sendTo(target, msg)
	}
}

func (r *Router) sendTo(id string, msg ServerMessage) {
	r.mu.Lock()
	s := r.senders[id]
	r.mu.Unlock()

	if s == nil {
		return
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = r.clock.Now().UnixMilli()
	}
	if !s.Send(msg) {
		r.m.Inc(metrics.SendQueueDrops)
		r.log.Warn("dropped outbound message", "id", id, "event", msg.Type)
	}
}

func (r *Router) sendError(id, message string) {
	r.sendTo(id, ServerMessage{
		Type:    EventError,
		Message: message,
	})
}
