package metrics

import "sync"

// Counter names used by the relay core and transport.
const (
	Connects         = "connects"
	Disconnects      = "disconnects"
	RoomsJoined      = "rooms_joined"
	RoomsLeft        = "rooms_left"
	SignalsRelayed   = "signals_relayed"
	ValidationErrors = "validation_errors"
	InternalFaults   = "internal_faults"
	StaleEvicted     = "stale_evicted"
	Pings            = "pings"
	KeepalivePings   = "keepalive_pings"
	SendQueueDrops   = "send_queue_drops"
	RateLimited      = "rate_limited"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The relay keeps its counters in-process and exposes them via the
// Prometheus text handler; there is intentionally no external metrics
// dependency.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
