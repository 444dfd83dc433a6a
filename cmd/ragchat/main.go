// Package main implements the ragchat HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WessleyAI/ragchat/engine/app"
	"github.com/WessleyAI/ragchat/engine/ingest"
	"github.com/WessleyAI/ragchat/engine/server"
	"github.com/WessleyAI/ragchat/pkg/config"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults to $CONFIG_FILE)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to NATS (optional) ---
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		var err error
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("ragchat"), nats.MaxReconnects(-1))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	// --- Build service graph ---
	a, err := app.Build(ctx, cfg, logger, app.Options{Events: nc, Probe: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if nc != nil {
		sub, err := ingest.StartConsumer(nc, a.Collection, logger)
		if err != nil {
			return fmt.Errorf("start ingest consumer: %w", err)
		}
		defer sub.Unsubscribe()
	}

	// --- Build HTTP server ---
	api := server.New(a.RAG, a.Collection, server.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		CORSOrigin:     cfg.CORSOrigin,
		Metrics:        a.Metrics,
		Logger:         logger,
	})
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     api.Handler(),
		ReadTimeout: 60 * time.Second,
		// Generation on a CPU-only model can take minutes.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("ragchat server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
