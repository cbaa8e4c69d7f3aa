// Package signaling is the WebSocket transport for the relay: it upgrades
// connections, enforces per-connection read limits and rate limits, runs the
// keepalive ping loop, and feeds inbound frames to the router. All protocol
// semantics live in the relay package; this layer only moves bytes.
package signaling

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/miniduonline/webrtc-video-call/internal/config"
	"github.com/miniduonline/webrtc-video-call/internal/metrics"
	"github.com/miniduonline/webrtc-video-call/internal/ratelimit"
	"github.com/miniduonline/webrtc-video-call/internal/relay"
)

const wsWriteWait = 1 * time.Second

// WebSocketServer upgrades HTTP requests on the signaling endpoint and binds
// each resulting connection to the router under a fresh session id.
type WebSocketServer struct {
	cfg      config.Config
	log      *slog.Logger
	m        *metrics.Metrics
	router   *relay.Router
	clock    ratelimit.Clock
	upgrader websocket.Upgrader
}

func NewWebSocketServer(cfg config.Config, router *relay.Router, m *metrics.Metrics, logger *slog.Logger) *WebSocketServer {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &WebSocketServer{
		cfg:    cfg,
		log:    logger,
		m:      m,
		router: router,
		clock:  ratelimit.RealClock{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sess := &session{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan relay.ServerMessage, s.cfg.SendQueueSize),
		done: make(chan struct{}),
	}

	go s.writePump(sess)
	s.readPump(sess)
}

// session is one live WebSocket connection. It implements relay.Sender: Send
// enqueues without blocking and Close tears the connection down, both safe to
// call from any goroutine.
type session struct {
	id   string
	conn *websocket.Conn
	send chan relay.ServerMessage

	closeOnce sync.Once
	done      chan struct{}
}

func (c *session) Send(msg relay.ServerMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *session) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump owns all reads on the connection. It applies the inbound
// hardening (size limit, idle deadline, token bucket) and hands every frame
// to the router; when it returns the session is fully torn down.
func (s *WebSocketServer) readPump(sess *session) {
	conn := sess.conn
	defer func() {
		s.router.Disconnect(sess.id)
		sess.Close()
		conn.Close()
	}()

	conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))
		s.router.Touch(sess.id)
		return nil
	})

	s.router.Connect(sess.id, sess)

	limiter := ratelimit.NewTokenBucket(s.clock, s.cfg.MaxMessagesPerSecond, s.cfg.MaxMessagesPerSecond)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket read error", "id", sess.id, "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			writeClose(conn, websocket.CloseUnsupportedData, "expected text message")
			return
		}

		if !limiter.Allow() {
			s.m.Inc(metrics.RateLimited)
			s.log.Warn("rate limit exceeded", "id", sess.id)
			writeClose(conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))
		s.router.Handle(sess.id, data)
	}
}

// writePump owns all writes on the connection: queued outbound messages and
// the keepalive pings. It exits when the session closes, unsticking any
// reader on the peer side with a close frame first.
func (s *WebSocketServer) writePump(sess *session) {
	conn := sess.conn
	ticker := time.NewTicker(s.cfg.WSPingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg := <-sess.send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				sess.Close()
				return
			}
		case <-ticker.C:
			s.m.Inc(metrics.KeepalivePings)
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				sess.Close()
				return
			}
		case <-sess.done:
			// Drain anything already queued so a shutdown notice sent just
			// before Close still reaches the client.
			for {
				select {
				case msg := <-sess.send:
					_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
					if err := conn.WriteJSON(msg); err != nil {
						return
					}
				default:
					writeClose(conn, websocket.CloseNormalClosure, "")
					return
				}
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}
