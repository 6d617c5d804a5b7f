package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spendbook/internal/config"
	"spendbook/internal/events"
	"spendbook/internal/handlers"
	"spendbook/internal/service"
	"spendbook/internal/storage"
	"spendbook/web"

	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("Database ready", "path", cfg.DBPath)

	var publisher events.Publisher
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize AMQP publisher: %w", err)
		}
		defer p.Close()
		publisher = p
	} else {
		logger.Info("AMQP_URL not set, expense events are not published")
	}

	svc := service.New(db, publisher, logger)
	h := handlers.NewHandlers(svc, logger)
	mux := setupRouter(h, web.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handlers.RequestLogger(logger, handlers.WithCORS(cfg.CORSOrigin, mux)),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting expense tracker server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server", "timeout", cfg.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// setupRouter registers the API routes and the browser client.
func setupRouter(h *handlers.Handlers, ui http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /readyz", h.Ready)

	mux.HandleFunc("POST /expenses", h.CreateExpense)
	mux.HandleFunc("GET /expenses", h.ListExpenses)

	mux.Handle("GET /ui/", http.StripPrefix("/ui", ui))

	return mux
}
