package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/adaptlearn/engine/internal/catalog"
	"github.com/adaptlearn/engine/internal/diagnostic"
	"github.com/adaptlearn/engine/internal/engine"
	"github.com/adaptlearn/engine/internal/notify"
	"github.com/adaptlearn/engine/internal/platform/cache"
	"github.com/adaptlearn/engine/internal/platform/config"
	"github.com/adaptlearn/engine/internal/platform/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, cleanup, err := buildAPI(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newMux(a),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.Risk.SweepInterval > 0 {
		go a.engine.RunSweeper(ctx, cfg.Risk.SweepInterval)
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// buildAPI wires storage, catalog, question bank, engine and alert hub from
// configuration. Postgres and Redis are optional: without them the engine
// runs on its in-memory store with per-process cooldowns.
func buildAPI(ctx context.Context, cfg *config.Config) (*api, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	loader, err := catalog.NewLoader(cfg.Catalog.Path)
	if err != nil {
		return nil, cleanup, fmt.Errorf("loading catalog: %w", err)
	}

	bank, err := diagnostic.LoadBank(cfg.Diagnostic.BankPath)
	if err != nil {
		return nil, cleanup, fmt.Errorf("loading question bank: %w", err)
	}
	analyzer := diagnostic.NewAnalyzer(bank, diagnostic.Config{
		MinQuestions: cfg.Diagnostic.MinQuestions,
	})

	a := &api{catalog: loader, hub: notify.NewHub()}

	var store engine.Store = engine.NewMemoryStore()
	if cfg.Database.URL != "" {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connecting to database: %w", err)
		}
		cleanups = append(cleanups, db.Close)
		a.ready = append(a.ready, func(r *http.Request) error {
			return db.HealthCheck(r.Context())
		})

		pg, err := engine.NewPostgresStore(db.Pool)
		if err != nil {
			return nil, cleanup, err
		}
		if err := pg.Migrate(ctx); err != nil {
			return nil, cleanup, err
		}
		store = pg
		slog.Info("using postgres store")
	}

	var cooldown notify.Cooldown
	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connecting to cache: %w", err)
		}
		cleanups = append(cleanups, func() { _ = c.Close() })
		a.ready = append(a.ready, func(r *http.Request) error {
			return c.HealthCheck(r.Context())
		})

		store = engine.NewCachedStore(store, c.Client)
		cooldown = notify.NewRedisCooldown(c.Client, cfg.Risk.AlertCooldown)
		slog.Info("using redis cache and shared alert cooldown")
	}

	var scorer engine.Scorer
	if cfg.Risk.ScorerURL != "" {
		scorer = engine.NewHTTPScorer(cfg.Risk.ScorerURL)
		slog.Info("using external risk scorer", "url", cfg.Risk.ScorerURL)
	} else {
		slog.Info("no risk scorer configured, using heuristic")
	}

	eng, err := engine.New(engine.Options{
		Store:    store,
		Catalog:  loader,
		Analyzer: analyzer,
		Scorer:   scorer,
		Notifier: a.hub,
		Cooldown: cooldown,
		Config: engine.Config{
			MinDiagnosticQuestions: cfg.Diagnostic.MinQuestions,
			WindowSize:             cfg.Engine.WindowSize,
			EWMAWeight:             cfg.Engine.EWMAWeight,
			RemediateThreshold:     cfg.Engine.RemediateThreshold,
			AccelerateThreshold:    cfg.Engine.AccelerateThreshold,
			SkipMastery:            cfg.Engine.SkipMastery,
			RegenMasteryDelta:      cfg.Engine.RegenMasteryDelta,
			ScoringTimeout:         cfg.Risk.ScoringTimeout,
			MinModelConfidence:     cfg.Risk.MinModelConfidence,
			RiskIntervention:       cfg.Risk.InterventionScore,
			AlertCooldown:          cfg.Risk.AlertCooldown,
		},
	})
	if err != nil {
		return nil, cleanup, fmt.Errorf("building engine: %w", err)
	}
	a.engine = eng
	return a, cleanup, nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
