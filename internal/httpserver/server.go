// Package httpserver hosts the HTTP surface of the relay: the WebSocket
// signaling endpoint plus the read-only monitoring API (rooms, users, health,
// metrics, version).
package httpserver

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/miniduonline/webrtc-video-call/internal/config"
	"github.com/miniduonline/webrtc-video-call/internal/metrics"
	"github.com/miniduonline/webrtc-video-call/internal/relay"
)

var ErrServerClosed = http.ErrServerClosed

type Server struct {
	log     *slog.Logger
	cfg     config.Config
	router  *relay.Router
	m       *metrics.Metrics
	version string
	started time.Time

	mux *http.ServeMux
	srv *http.Server
}

// New assembles the HTTP server. The ws handler is mounted at GET /ws; pass
// nil to serve only the monitoring API (used by tests).
func New(cfg config.Config, router *relay.Router, ws http.Handler, m *metrics.Metrics, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:     logger,
		cfg:     cfg,
		router:  router,
		m:       m,
		version: version,
		started: time.Now(),
		mux:     http.NewServeMux(),
	}

	s.registerRoutes(ws)

	handler := chain(s.mux,
		recoverMiddleware(s.log),
		requestIDMiddleware(),
		requestLoggerMiddleware(s.log),
	)

	s.srv = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// Other timeouts stay zero: /ws connections are long-lived.
	}

	return s
}

func (s *Server) Serve(l net.Listener) error {
	s.log.Info("http server serving", "addr", l.Addr().String())
	return s.srv.Serve(l)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.srv.Close()
}

// Handler exposes the full middleware-wrapped handler for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) registerRoutes(ws http.Handler) {
	if ws != nil {
		s.mux.Handle("GET /ws", ws)
	}

	s.mux.HandleFunc("GET /api/rooms", func(w http.ResponseWriter, r *http.Request) {
		rooms := s.router.RoomsSnapshot()
		WriteJSON(w, http.StatusOK, map[string]any{
			"totalRooms": len(rooms),
			"rooms":      rooms,
		})
	})

	s.mux.HandleFunc("GET /api/users", func(w http.ResponseWriter, r *http.Request) {
		users := s.router.UsersSnapshot()
		WriteJSON(w, http.StatusOK, map[string]any{
			"totalUsers": len(users),
			"users":      users,
		})
	})

	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		rooms, users := s.router.Counts()

		status := "healthy"
		if s.router.Degraded() {
			status = "degraded"
		}

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		WriteJSON(w, http.StatusOK, map[string]any{
			"status":        status,
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
			"uptimeSeconds": int64(time.Since(s.started).Seconds()),
			"activeRooms":   rooms,
			"activeUsers":   users,
			"version":       s.version,
			"memory": map[string]uint64{
				"heapAllocBytes": mem.HeapAlloc,
				"heapInuseBytes": mem.HeapInuse,
				"sysBytes":       mem.Sys,
				"numGC":          uint64(mem.NumGC),
			},
		})
	})

	s.mux.Handle("GET /metrics", metrics.PrometheusHandler(s.m))

	s.mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"version": s.version})
	})
}

type Middleware func(http.Handler) http.Handler

func chain(handler http.Handler, middlewares ...Middleware) http.Handler {
	h := handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

func recoverMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic in http handler", "recover", rec, "stack", string(debug.Stack()))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func requestIDMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				var buf [16]byte
				if _, err := rand.Read(buf[:]); err == nil {
					reqID = hex.EncodeToString(buf[:])
				}
			}
			if reqID != "" {
				r.Header.Set("X-Request-ID", reqID)
				w.Header().Set("X-Request-ID", reqID)
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrade work through the middleware chain.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func requestLoggerMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(sw, r)

			logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
				"request_id", r.Header.Get("X-Request-ID"),
			)
		})
	}
}

// WriteJSON writes a JSON response body and sets the Content-Type header.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}
