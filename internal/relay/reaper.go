package relay

import (
	"context"
	"log/slog"
	"time"
)

// Reaper periodically evicts connections whose last activity is older than
// the stale threshold, so rooms never accumulate ghost members from clients
// that vanished without a clean disconnect.
type Reaper struct {
	router    *Router
	interval  time.Duration
	threshold time.Duration
	log       *slog.Logger
}

func NewReaper(router *Router, interval, threshold time.Duration, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		router:    router,
		interval:  interval,
		threshold: threshold,
		log:       logger,
	}
}

// Run sweeps until ctx is canceled. The ticker is stopped on return so
// shutdown does not leak timers.
func (p *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := p.Sweep(); n > 0 {
				p.log.Info("reaped stale connections", "count", n)
			}
		}
	}
}

// Sweep runs a single eviction pass.
func (p *Reaper) Sweep() int {
	return p.router.EvictStale(p.threshold)
}
