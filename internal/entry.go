// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/lectorlips/internal/api"
	"github.com/starford/lectorlips/internal/compileservice"
	"github.com/starford/lectorlips/internal/inbox"
	"github.com/starford/lectorlips/internal/index"
	"github.com/starford/lectorlips/internal/sse"
	"github.com/starford/lectorlips/internal/storage"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg     *Config
	logger  *slog.Logger
	history index.History
	// db is set when the index was opened eagerly.
	db  *index.DB
	svc *compileservice.Service
}

type indexMode int

const (
	// indexEager opens the database up front and fails if it cannot.
	indexEager indexMode = iota
	// indexLazy opens the database on first history access; one-shot
	// commands only touch it once a compile is recorded.
	indexLazy
)

func newRuntime(opts []Option, mode indexMode) (*runtime, error) {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		level := cfg.App.LogLevel
		if app.debug {
			level = slog.LevelDebug
		}
		// stdout carries user messages and the MCP transport.
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
	}
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Output.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	out, err := storage.NewFS(cfg.Output.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger}
	switch mode {
	case indexLazy:
		rt.history = index.NewLazy(cfg.SQLite.Path)
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		db, err := index.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("init index: %w", err)
		}
		rt.db, rt.history = db, db
	}

	rt.svc = compileservice.NewService(out, rt.history, compileservice.Defaults{
		TextureBase:     cfg.Sequencer.TextureBase,
		EndTickDuration: cfg.Sequencer.EndTickDuration,
		MappingFile:     cfg.Sequencer.MappingFile,
	}, logger)

	return rt, nil
}

func (rt *runtime) Close() error {
	return rt.history.Close()
}

// Run starts the HTTP server and the inbox watcher with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := newRuntime(opts, indexEager)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, logger := rt.cfg, rt.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("output_path", cfg.Output.Path),
		slog.String("inbox_path", cfg.Inbox.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	publish := func(kind, source string, res *compileservice.Result, err error) {
		ev := sse.CompileEvent{Source: source}
		if res != nil {
			ev.Output = res.Output
			ev.Segments = len(res.Segments)
			ev.Skipped = len(res.Skips)
		}
		if err != nil {
			ev.Error = err.Error()
		}
		broker.PublishCompile(kind, ev)
	}

	apiRouter := api.NewRouter(rt.svc, api.RouterOptions{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Limiter:     api.NewLimiter(cfg.API.RateLimit, cfg.API.Burst),
		Events:      broker,
		OnCompile:   publish,
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := rt.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(runCtx)

	// Inbox compiles need a texture base, which only the config can supply.
	if cfg.Sequencer.TextureBase != "" {
		if err := os.MkdirAll(cfg.Inbox.Path, 0o755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
		inboxStore, err := storage.NewFS(cfg.Inbox.Path)
		if err != nil {
			return fmt.Errorf("init inbox: %w", err)
		}

		g.Go(func() error {
			if err := inbox.Sync(gCtx, rt.svc, inboxStore, compileservice.Request{}, logger, publish); err != nil {
				logger.Warn("initial inbox sync failed", slog.String("error", err.Error()))
			}
			if err := inbox.Watch(gCtx, rt.svc, inboxStore, compileservice.Request{}, logger, publish); err != nil {
				logger.Error("inbox watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	} else {
		logger.Info("Inbox disabled, sequencer.texture_base is not set")
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
