package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/miniduonline/webrtc-video-call/internal/config"
	"github.com/miniduonline/webrtc-video-call/internal/httpserver"
	"github.com/miniduonline/webrtc-video-call/internal/metrics"
	"github.com/miniduonline/webrtc-video-call/internal/relay"
	"github.com/miniduonline/webrtc-video-call/internal/signaling"
	"github.com/miniduonline/webrtc-video-call/internal/version"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting webrtc-video-call",
		"version", version.String(),
		"listen_addr", cfg.ListenAddr(),
		"reap_interval", cfg.ReapInterval,
		"stale_threshold", cfg.StaleThreshold,
		"ws_ping_interval", cfg.WSPingInterval,
		"ws_idle_timeout", cfg.WSIdleTimeout,
		"max_message_bytes", cfg.MaxMessageBytes,
		"max_messages_per_second", cfg.MaxMessagesPerSecond,
	)

	m := metrics.New()
	router := relay.NewRouter(relay.RouterConfig{
		Logger:  logger,
		Metrics: m,
		Version: version.String(),
	})
	reaper := relay.NewReaper(router, cfg.ReapInterval, cfg.StaleThreshold, logger)

	ws := signaling.NewWebSocketServer(cfg, router, m, logger)
	srv := httpserver.New(cfg, router, ws, m, logger, version.String())

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return reaper.Run(gctx)
	})

	g.Go(func() error {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		// Notify clients, then drain within the grace period.
		router.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("exited with error", "err", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
