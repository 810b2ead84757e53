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
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/cache"
	"github.com/starford/ansuz/internal/complete"
	"github.com/starford/ansuz/internal/extract"
	"github.com/starford/ansuz/internal/guard"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/jobs"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/runner"
	"github.com/starford/ansuz/internal/score"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/tuner"
	"github.com/starford/ansuz/internal/vault"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger. In MCP mode stdout carries the
	// protocol, so logs go to stderr.
	logOut := os.Stdout
	if app.mcp {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	// Initialize vault access.
	v, err := vault.NewFS(cfg.Vault.Path, vault.Options{
		Includes:    cfg.Vault.Includes,
		Excludes:    cfg.Vault.Excludes,
		MaxFileSize: cfg.Extract.MaxFileSize,
		MaxFiles:    cfg.Extract.MaxFiles,
		MaxDepth:    cfg.Ripgrep.MaxDepth,
	})
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}

	// Initialize SQLite index.
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	// Run initial sync.
	if err := index.Sync(ctx, db, v, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	// Core subsystems.
	store := cache.New(cache.Config{
		DefaultTTL:      cfg.Cache.DefaultTTL,
		CleanupInterval: cfg.Cache.CleanupInterval,
		MaxBytes:        cfg.Cache.MaxBytes,
		Strategy:        cfg.Cache.Strategy,
	}, logger)

	queue := jobs.NewQueue(jobs.Config{
		MaxConcurrent:  cfg.Jobs.MaxConcurrent,
		MaxQueued:      cfg.Jobs.MaxQueued,
		DefaultTimeout: cfg.Jobs.DefaultTimeout,
		RetryDelay:     cfg.Jobs.RetryDelay,
	}, logger)

	grd := guard.New(guard.BreakerConfig{}, 0)

	rnr := runner.New(runner.Config{
		Binary:          cfg.Ripgrep.Binary,
		Threads:         cfg.Ripgrep.Threads,
		MaxFilesize:     cfg.Ripgrep.MaxFilesize,
		MaxColumns:      cfg.Ripgrep.MaxColumns,
		MaxDepth:        cfg.Ripgrep.MaxDepth,
		Timeout:         cfg.Ripgrep.Timeout,
		FileTimeout:     cfg.Extract.FileTimeout,
		MaxLinesPerFile: cfg.Extract.MaxLinesPerFile,
	}, v, logger)

	ex := extract.New(rnr, store, grd, v, extract.Config{
		Timeout:     cfg.Extract.Timeout,
		BatchSize:   cfg.Extract.BatchSize,
		NestedTags:  cfg.Extract.NestedTags,
		MaxTagLen:   cfg.Extract.MaxTagLength,
		MaxTagDepth: cfg.Extract.MaxTagDepth,
		Includes:    suffixGlobs(cfg.Vault.Includes),
		Excludes:    cfg.Vault.Excludes,
	}, logger)
	ex.SetBacklinks(func(context.Context) map[string]int {
		counts, err := db.BacklinkCounts()
		if err != nil {
			logger.Warn("backlink counts failed", slog.String("error", err.Error()))
			return nil
		}
		return counts
	})

	engine := complete.NewEngine(ex, score.New(cfg.Completion.Fuzzy), v.Root(), cfg.Completion.MaxItems, logger)

	// SSE broker.
	broker := sse.NewBroker(200 * time.Millisecond)
	defer broker.Close()

	tun := tuner.New(tuner.Config{
		Interval:          cfg.Tuner.Interval,
		LearningRate:      cfg.Tuner.LearningRate,
		RollbackThreshold: cfg.Tuner.RollbackThreshold,
	}, tuner.Sources{
		Cache:         store,
		Queue:         queue,
		Extractor:     ex,
		Engine:        engine,
		ApplyDebounce: broker.SetThrottle,
		OnAdjust:      broker.PublishTunerAdjustment,
	}, logger)

	svc := api.NewService(engine, ex, db, store, queue, grd, tun, v.Root())

	g, gCtx := errgroup.WithContext(ctx)

	// Background loops.
	g.Go(func() error {
		store.Start(gCtx)
		return nil
	})
	g.Go(func() error {
		queue.Start(gCtx)
		return nil
	})
	if cfg.Tuner.Enabled {
		g.Go(func() error {
			tun.Start(gCtx)
			return nil
		})
	}

	// File watcher: keeps the index fresh, invalidates extraction caches
	// on change, and queues a re-warm so completion stays hot.
	g.Go(func() error {
		return index.Watch(gCtx, db, v, logger,
			vaultChangeHandler(ex, engine, queue, broker, logger, rewarmDebounce))
	})

	if app.mcp {
		g.Go(func() error {
			logger.Info("Starting MCP server on stdio")
			return mcpserver.New(svc, db).ServeStdio()
		})
	} else {
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
		r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})

		// Mount API routes under /api.
		r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

		httpServer := &http.Server{
			Addr:    cfg.App.HTTP.Address(),
			Handler: r,
		}

		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			return context.Canceled
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// Debounce window for the watcher-triggered re-warm; editor saves arrive
// in bursts.
const rewarmDebounce = 500 * time.Millisecond

// vaultChangeHandler builds the watcher callback: invalidate extraction
// caches, notify SSE clients, and enqueue a debounced cache re-warm on
// the job queue so the tuned concurrency limit governs it.
func vaultChangeHandler(ex *extract.Extractor, engine *complete.Engine, queue *jobs.Queue,
	broker *sse.Broker, logger *slog.Logger, debounce time.Duration) func(kind, path string) {
	rewarm := jobs.Debounce(func() {
		_, err := queue.Run(func(ctx context.Context) (any, error) {
			return nil, engine.Refresh(ctx)
		}, jobs.Options{Tags: []string{"refresh"}})
		if err != nil {
			logger.Warn("re-warm enqueue failed", slog.String("error", err.Error()))
		}
	}, debounce)

	return func(kind, path string) {
		n := ex.Invalidate()
		broker.PublishVaultEvent(kind, path)
		if n > 0 {
			broker.PublishCacheInvalidation("", n)
		}
		rewarm()
	}
}

// suffixGlobs converts file suffixes (".md") into search-tool include
// globs ("*.md").
func suffixGlobs(suffixes []string) []string {
	globs := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, "*") {
			s = "*" + s
		}
		globs = append(globs, s)
	}
	return globs
}
