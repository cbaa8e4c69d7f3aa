package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/miniduonline/webrtc-video-call/internal/config"
	"github.com/miniduonline/webrtc-video-call/internal/metrics"
	"github.com/miniduonline/webrtc-video-call/internal/relay"
)

type nopSender struct{}

func (nopSender) Send(relay.ServerMessage) bool { return true }
func (nopSender) Close()                        {}

func newTestServer(t *testing.T) (*Server, *relay.Router, *metrics.Metrics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := relay.NewRouter(relay.RouterConfig{Logger: logger})
	m := metrics.New()
	cfg := config.Config{Port: 3000, LogFormat: config.LogFormatText}
	return New(cfg, router, nil, m, logger, "1.2.3"), router, m
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return body
}

func join(t *testing.T, router *relay.Router, id, room, username string) {
	t.Helper()
	router.Connect(id, nopSender{})
	router.Handle(id, []byte(`{"type":"join-room","roomId":"`+room+`","username":"`+username+`"}`))
}

func TestRoomsEndpoint(t *testing.T) {
	s, router, _ := newTestServer(t)
	join(t, router, "c1", "r1", "alice")
	join(t, router, "c2", "r1", "bob")
	join(t, router, "c3", "r2", "carol")

	rec := doGet(t, s, "/api/rooms")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}

	body := decodeBody(t, rec)
	if body["totalRooms"] != float64(2) {
		t.Fatalf("totalRooms=%v, want 2", body["totalRooms"])
	}
	rooms := body["rooms"].(map[string]any)
	r1 := rooms["r1"].(map[string]any)
	if r1["memberCount"] != float64(2) {
		t.Fatalf("r1 memberCount=%v", r1["memberCount"])
	}
	if len(r1["members"].([]any)) != 2 {
		t.Fatalf("r1 members=%v", r1["members"])
	}
	if _, err := time.Parse(time.RFC3339, r1["createdAt"].(string)); err != nil {
		t.Fatalf("createdAt not RFC3339: %v", err)
	}
}

func TestUsersEndpoint(t *testing.T) {
	s, router, _ := newTestServer(t)
	join(t, router, "c1", "r1", "alice")
	router.Connect("c2", nopSender{})

	rec := doGet(t, s, "/api/users")
	body := decodeBody(t, rec)
	if body["totalUsers"] != float64(2) {
		t.Fatalf("totalUsers=%v, want 2", body["totalUsers"])
	}

	users := body["users"].(map[string]any)
	c1 := users["c1"].(map[string]any)
	if c1["roomId"] != "r1" || c1["username"] != "alice" {
		t.Fatalf("c1=%v", c1)
	}
	if c1["isOnline"] != true {
		t.Fatalf("freshly active user should be online")
	}
	c2 := users["c2"].(map[string]any)
	if _, hasRoom := c2["roomId"]; hasRoom {
		t.Fatalf("roomless user should omit roomId: %v", c2)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, router, _ := newTestServer(t)
	join(t, router, "c1", "r1", "alice")

	rec := doGet(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["status"] != "healthy" {
		t.Fatalf("status=%v", body["status"])
	}
	if body["activeRooms"] != float64(1) || body["activeUsers"] != float64(1) {
		t.Fatalf("activeRooms=%v activeUsers=%v", body["activeRooms"], body["activeUsers"])
	}
	if body["version"] != "1.2.3" {
		t.Fatalf("version=%v", body["version"])
	}
	if _, ok := body["memory"].(map[string]any); !ok {
		t.Fatalf("memory section missing")
	}
	if _, err := time.Parse(time.RFC3339, body["timestamp"].(string)); err != nil {
		t.Fatalf("timestamp not RFC3339: %v", err)
	}
}

func TestHealthReportsDegradedAfterFault(t *testing.T) {
	s, router, _ := newTestServer(t)

	// A sender that panics mid-dispatch trips the router's fault recovery.
	router.Connect("c1", panickySender{})
	router.Handle("c1", []byte(`{"type":"ping"}`))

	rec := doGet(t, s, "/health")
	body := decodeBody(t, rec)
	if body["status"] != "degraded" {
		t.Fatalf("status=%v, want degraded", body["status"])
	}
}

type panickySender struct{}

func (panickySender) Send(msg relay.ServerMessage) bool {
	if msg.Type == relay.EventPong {
		panic("send failed")
	}
	return true
}

func (panickySender) Close() {}

func TestMetricsEndpoint(t *testing.T) {
	s, _, m := newTestServer(t)
	m.Inc(metrics.Connects)
	m.Add(metrics.SignalsRelayed, 3)

	rec := doGet(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	out := rec.Body.String()
	if !strings.Contains(out, `webrtc_signaling_events_total{event="connects"} 1`) {
		t.Fatalf("missing connects counter:\n%s", out)
	}
	if !strings.Contains(out, `webrtc_signaling_events_total{event="signals_relayed"} 3`) {
		t.Fatalf("missing signals counter:\n%s", out)
	}
}

func TestVersionEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	body := decodeBody(t, doGet(t, s, "/version"))
	if body["version"] != "1.2.3" {
		t.Fatalf("version=%v", body["version"])
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	s, _, _ := newTestServer(t)
	if rec := doGet(t, s, "/nope"); rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc123" {
		t.Fatalf("request id=%q, want abc123", got)
	}

	rec = doGet(t, s, "/health")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("generated request id missing")
	}
}
