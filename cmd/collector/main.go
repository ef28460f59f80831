// collector connects to the ChainWatch realtime feed and persists every
// notification it receives to PostgreSQL.
// Usage: go run ./cmd/collector --config configs/collector.local.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/chainwatch/realtime/internal/config"
	"github.com/chainwatch/realtime/internal/database"
	"github.com/chainwatch/realtime/internal/realtime"
	"github.com/chainwatch/realtime/internal/version"
	"github.com/chainwatch/realtime/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/collector.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting collector",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"site_url", cfg.Realtime.SiteURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Start the notification writer
	w := writer.NewNotificationWriter(writer.Config{
		BatchSize:     cfg.Writer.BatchSize,
		FlushInterval: cfg.Writer.FlushInterval,
	}, pool, logger, cfg.Writer.BufferSize)

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start writer", "error", err)
		os.Exit(1)
	}

	// Create the realtime client
	client := realtime.New(realtime.Config{
		URL:                  cfg.Realtime.URL,
		SiteURL:              cfg.Realtime.SiteURL,
		Device:               cfg.Realtime.Device,
		HeartbeatInterval:    cfg.Realtime.HeartbeatInterval,
		ReconnectBaseDelay:   cfg.Realtime.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Realtime.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		HandshakeTimeout:     cfg.Realtime.HandshakeTimeout,
		WriteTimeout:         cfg.Realtime.WriteTimeout,
	}, logger)

	client.OnStateChange(func(s realtime.State) {
		logger.Info("connection state changed", "state", s)
	})

	client.On(realtime.EventNotification, func(ev realtime.Event) {
		if ev.Notification == nil {
			return
		}
		if !w.Enqueue(*ev.Notification) {
			logger.Warn("writer stopped, dropping notification", "notification_id", ev.Notification.ID)
		}
	})

	if err := client.Connect(ctx, cfg.Realtime.Token); err != nil {
		// The client keeps retrying in the background; only the initial
		// dial result is surfaced here.
		logger.Warn("initial connect failed, reconnecting", "error", err)
	}

	// Health server + periodic stats, supervised together
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: healthHandler(cfg.Health.Path, pool, client, w),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port, "path", cfg.Health.Path)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				cs := client.Stats()
				ws := w.Stats()
				logger.Info("stats",
					"state", client.State(),
					"frames_received", cs.FramesReceived,
					"dispatches", cs.Dispatches,
					"parse_errors", cs.ParseErrors,
					"reconnects", cs.Reconnects,
					"queued_messages", cs.QueuedMessages,
					"writer_buffered", w.Buffered(),
					"inserts", ws.Inserts,
					"conflicts", ws.Conflicts,
					"write_errors", ws.Errors,
				)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	logger.Info("collector running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d%s", cfg.Health.Port, cfg.Health.Path),
	)

	if err := g.Wait(); err != nil {
		logger.Error("collector error", "error", err)
		cancel()
	}

	logger.Info("shutting down...")

	client.Disconnect()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := w.Stop(stopCtx); err != nil {
		logger.Error("writer stop failed", "error", err)
	}

	logger.Info("collector stopped")
}

// healthHandler builds the HTTP handler for health checks.
func healthHandler(path string, pool *pgxpool.Pool, client *realtime.Client, w *writer.NotificationWriter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(path, func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		// Check realtime feed
		state := client.State()
		health.Components["realtime"] = map[string]any{
			"state":     state.String(),
			"connected": client.IsConnected(),
		}
		if state != realtime.StateConnected {
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		// Writer metrics
		ws := w.Stats()
		health.Components["writer"] = map[string]any{
			"buffered":  w.Buffered(),
			"inserts":   ws.Inserts,
			"conflicts": ws.Conflicts,
			"errors":    ws.Errors,
			"flushes":   ws.Flushes,
		}

		rw.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			rw.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(rw).Encode(health)
	})

	return mux
}
