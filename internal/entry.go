// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/encyclopedia/internal/api"
	"github.com/starford/encyclopedia/internal/entryservice"
	"github.com/starford/encyclopedia/internal/index"
	"github.com/starford/encyclopedia/internal/markup"
	"github.com/starford/encyclopedia/internal/mcpserver"
	"github.com/starford/encyclopedia/internal/sse"
	"github.com/starford/encyclopedia/internal/storage"
	"github.com/starford/encyclopedia/internal/web"
)

const (
	indexEventThrottle = 2 * time.Second
	shutdownTimeout    = 10 * time.Second
)

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// openWiki prepares the entries directory and opens the index.
func openWiki(cfg *Config) (*storage.FS, *index.DB, error) {
	if err := os.MkdirAll(cfg.Wiki.Path, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create entries dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Wiki.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init index: %w", err)
	}
	return store, db, nil
}

// newRouter assembles the HTML site, the JSON API and the health checks.
func newRouter(cfg *Config, svc *entryservice.Service, db *index.DB, broker *sse.Broker) (http.Handler, error) {
	pages, err := web.NewHandler(svc, markup.New(cfg.Render.CacheSize), cfg.Wiki.Name)
	if err != nil {
		return nil, fmt.Errorf("init web handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			slog.Error("readiness check failed", slog.String("error", err.Error()))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	var events http.Handler
	if broker != nil {
		events = broker
	}
	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, events))
	r.Mount("/", web.NewRouter(pages))

	return r, nil
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// Run serves the wiki over HTTP until ctx is cancelled or a shutdown signal
// arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("wiki_path", cfg.Wiki.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, db, err := openWiki(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	broker := sse.NewBroker(indexEventThrottle)
	defer broker.Close()

	svc := entryservice.NewService(store, db, entryservice.WithChangeFunc(broker.PublishEntryEvent))

	handler, err := newRouter(cfg, svc, db, broker)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// External edits to entry files keep the index fresh and reach SSE clients.
	g.Go(func() error {
		if err := index.Watch(gCtx, db, store, cfg.Wiki.Path, logger, broker.PublishEntryEvent); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		// Event streams never finish on their own; end them before draining.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the watcher exits with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdin/stdout. Logs go to the configured
// log output, which must not be stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	store, db, err := openWiki(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	svc := entryservice.NewService(store, db)
	srv := mcpserver.New(svc, cfg.Wiki.Name, app.version)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := index.Watch(gCtx, db, store, cfg.Wiki.Path, logger, nil); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		defer cancel()
		logger.Info("Starting MCP server on stdio", slog.String("wiki_path", cfg.Wiki.Path))
		return srv.ServeStdio()
	})

	return g.Wait()
}

// Reindex reconciles the index with the entries directory once and exits.
func Reindex(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	store, db, err := openWiki(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	start := time.Now()
	if err := index.Sync(db, store, logger); err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	logger.Info("Reindex complete",
		slog.Int("entries", len(checksums)),
		slog.Duration("took", time.Since(start)))
	return nil
}
