package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/overdive/call-relay/internal/auth"
	"github.com/overdive/call-relay/internal/config"
	"github.com/overdive/call-relay/internal/httpserver"
	"github.com/overdive/call-relay/internal/metrics"
	"github.com/overdive/call-relay/internal/room"
	"github.com/overdive/call-relay/internal/signaling"
	"github.com/overdive/call-relay/internal/turnrest"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("mode", string(cfg.Mode)).
		Dur("ws_idle_timeout", cfg.WS.IdleTimeout).
		Dur("ws_ping_interval", cfg.WS.PingInterval).
		Int64("ws_max_message_bytes", cfg.WS.MaxMessageBytes).
		Int("ws_max_messages_per_second", cfg.WS.MaxMessagesPerSecond).
		Int("ice_servers", len(cfg.ICEServers())).
		Bool("turn_rest_enabled", cfg.TURNREST.Enabled()).
		Msg("starting call-relay")

	var turn *turnrest.Generator
	if cfg.TURNREST.Enabled() {
		turn, err = turnrest.NewGenerator(turnrest.GeneratorConfig{
			SharedSecret:   cfg.TURNREST.SharedSecret,
			TTLSeconds:     cfg.TURNREST.TTLSeconds,
			UsernamePrefix: cfg.TURNREST.UsernamePrefix,
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to configure turn rest credentials")
			os.Exit(2)
		}
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error().Err(err).Msg("failed to listen")
		os.Exit(1)
	}

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built}, turn)

	mts := metrics.New()
	sig := signaling.NewServer(signaling.Config{
		Registry: room.NewRegistry(),
		Verifier: auth.NewJWTVerifier(cfg.JWTSecret),
		Metrics:  mts,
		Logger:   logger,

		IdleTimeout:          cfg.WS.IdleTimeout,
		PingInterval:         cfg.WS.PingInterval,
		MaxMessageBytes:      cfg.WS.MaxMessageBytes,
		MaxMessagesPerSecond: cfg.WS.MaxMessagesPerSecond,
	})
	sig.RegisterRoutes(srv.Mux())

	// Expose internal counters in Prometheus' text format.
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(mts))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		sig.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server exited")
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
	sig.Close()

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("http server exited after shutdown")
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, built string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the
	// Go build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if built == "" {
					built = s.Value
				}
			}
		}
	}
	return commit, built
}
