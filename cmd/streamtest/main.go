// streamtest connects to the ChainWatch realtime feed and prints every
// notification and event to the console.
// Usage: go run ./cmd/streamtest --config configs/collector.local.yaml
//
// The feed token can come from the environment via config expansion:
//
//	CHAINWATCH_TOKEN - realtime feed token from the dashboard
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainwatch/realtime/internal/config"
	"github.com/chainwatch/realtime/internal/realtime"
)

func main() {
	configPath := flag.String("config", "configs/collector.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Realtime.Token == "" {
		logger.Error("realtime token required",
			"token_set", false,
		)
		logger.Info("Set environment variable CHAINWATCH_TOKEN or realtime.token in config")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

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
		fmt.Printf("[STATE] %s\n", s)
	})

	client.On(realtime.EventNotification, func(ev realtime.Event) {
		n := ev.Notification
		if n == nil {
			return
		}
		if *verbose {
			data, _ := json.MarshalIndent(n, "", "  ")
			fmt.Printf("[NOTIFICATION] %s\n", data)
		} else {
			fmt.Printf("[NOTIFICATION] id=%s alert=%s priority=%s message=%q\n",
				n.ID, n.AlertName, n.Priority, n.Message)
		}
	})

	client.On(realtime.EventGeneric, func(ev realtime.Event) {
		if *verbose {
			fmt.Printf("[EVENT] type=%s job=%s payload=%s\n", ev.Type, ev.JobID, ev.Payload)
		} else {
			fmt.Printf("[EVENT] type=%s job=%s\n", ev.Type, ev.JobID)
		}
	})

	logger.Info("connecting to realtime feed")
	if err := client.Connect(ctx, cfg.Realtime.Token); err != nil {
		logger.Warn("initial connect failed, reconnecting", "error", err)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := client.Stats()
				logger.Info("stats",
					"state", client.State(),
					"frames_received", stats.FramesReceived,
					"dispatches", stats.Dispatches,
					"parse_errors", stats.ParseErrors,
					"reconnects", stats.Reconnects,
					"queued_messages", stats.QueuedMessages,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	client.Disconnect()
	logger.Info("shutdown complete")
}
