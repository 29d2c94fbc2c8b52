package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/browserkit/api"
	"github.com/use-agent/browserkit/api/handler"
	"github.com/use-agent/browserkit/config"
	"github.com/use-agent/browserkit/driver"
	"github.com/use-agent/browserkit/helper"
	"github.com/use-agent/browserkit/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("browserkit starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"driver", cfg.Browser.Driver,
	)

	// ── 3. Start the driver (launches the browser) ──────────────────
	d, err := driver.New(cfg.Browser)
	if err != nil {
		slog.Error("failed to start driver", "driver", cfg.Browser.Driver, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := d.Close(); err != nil {
			slog.Warn("driver close failed", "error", err)
		}
	}()

	// ── 4. Wrap it in a helper session ──────────────────────────────
	var observer helper.Observer = helper.NewSlogObserver(slog.Default())
	var notifier *webhook.Notifier
	if cfg.Webhook.URL != "" {
		notifier = webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret)
		observer = helper.MultiObserver(observer, notifier)
		slog.Info("webhook delivery enabled", "url", cfg.Webhook.URL)
	}
	h := helper.New(d,
		helper.WithObserver(observer),
		helper.WithWaitTime(cfg.Wait.DefaultTimeout),
		helper.WithPollInterval(cfg.Wait.PollInterval),
	)
	slog.Info("helper ready", "helper", h.String())
	sess := handler.NewSession(h)

	// ── 5. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(sess, cfg, startTime)

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-serveErr:
		slog.Error("HTTP server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	if notifier != nil {
		if err := notifier.Close(ctx); err != nil {
			slog.Warn("pending webhook deliveries dropped", "error", err)
		}
	}

	slog.Info("browserkit stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(h))
}
