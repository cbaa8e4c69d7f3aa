package relay

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestReaperSweep(t *testing.T) {
	clk := newFakeClock()
	r := newTestRouter(clk)
	connect(t, r, "stale")
	connect(t, r, "active")

	clk.Advance(6 * time.Minute)
	r.Touch("active")

	p := NewReaper(r, time.Minute, 5*time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if n := p.Sweep(); n != 1 {
		t.Fatalf("sweep evicted %d, want 1", n)
	}
	if _, users := r.Counts(); users != 1 {
		t.Fatalf("users=%d after sweep, want 1", users)
	}

	// A second sweep finds nothing.
	if n := p.Sweep(); n != 0 {
		t.Fatalf("second sweep evicted %d, want 0", n)
	}
}

func TestReaperRunStopsOnCancel(t *testing.T) {
	r := newTestRouter(newFakeClock())
	p := NewReaper(r, time.Millisecond, 5*time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil on cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
