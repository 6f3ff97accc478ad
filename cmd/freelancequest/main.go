package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/freelancequest/internal/badge"
	"github.com/dukerupert/freelancequest/internal/catalog"
	"github.com/dukerupert/freelancequest/internal/config"
	"github.com/dukerupert/freelancequest/internal/database"
	"github.com/dukerupert/freelancequest/internal/gamification"
	"github.com/dukerupert/freelancequest/internal/jobs"
	"github.com/dukerupert/freelancequest/internal/logging"
	"github.com/dukerupert/freelancequest/internal/notify"
	"github.com/dukerupert/freelancequest/internal/server"
	"github.com/dukerupert/freelancequest/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	rules, err := syncCatalog(db, cfg.CatalogPath, logger)
	if err != nil {
		return err
	}

	bus, err := newBus(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	engine := gamification.New(db, rules, cfg.LevelCurve(), cfg.Location(), logger.With("component", "engine"))
	srv := server.New(db, engine, bus, server.Options{
		JWTSecret:      cfg.JWTSecret,
		InternalAPIKey: cfg.InternalAPIKey,
		AllowedOrigins: cfg.AllowedOrigins,
		Location:       cfg.Location(),
		WSRateLimit:    cfg.WSRateLimit,
		TrustedProxies: cfg.TrustedProxyPrefixes(),
	}, logger)

	if err := notify.Forward(ctx, bus, srv.Hub(), logger.With("component", "forwarder")); err != nil {
		return fmt.Errorf("start notification forwarder: %w", err)
	}

	sched, err := jobs.New(jobs.Config{
		Curve:               cfg.LevelCurve(),
		LevelRepairInterval: cfg.LevelRepairInterval,
	}, store.NewProfileStore(db), srv.RateLimiter(), logger.With("component", "jobs"))
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Shutdown()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No read or write timeout: WebSocket connections are long lived.
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("FreelanceQuest gamification running", "addr", httpServer.Addr, "timezone", cfg.Location().String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// syncCatalog upserts the mission, badge and benefit catalogs and compiles
// the badge rules from the stored rows.
func syncCatalog(db *sql.DB, path string, logger *slog.Logger) (*badge.Set, error) {
	c, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	if err := store.NewMissionStore(db).Sync(c.Missions); err != nil {
		return nil, fmt.Errorf("sync missions: %w", err)
	}
	badgeStore := store.NewBadgeStore(db)
	if err := badgeStore.Sync(c.Badges); err != nil {
		return nil, fmt.Errorf("sync badges: %w", err)
	}
	if err := store.NewBenefitStore(db).Sync(c.Benefits); err != nil {
		return nil, fmt.Errorf("sync benefits: %w", err)
	}

	badges, err := badgeStore.List()
	if err != nil {
		return nil, err
	}
	rules, err := badge.NewSet(badges)
	if err != nil {
		return nil, fmt.Errorf("compile badge rules: %w", err)
	}

	logger.Info("catalog synced", "missions", len(c.Missions), "badges", rules.Len(), "benefits", len(c.Benefits))
	return rules, nil
}

func newBus(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notify.Bus, error) {
	if cfg.RedisAddr == "" {
		logger.Info("notification bus: local")
		return notify.NewLocalBus(), nil
	}
	bus, err := notify.NewRedisBus(ctx, cfg.RedisAddr, cfg.RedisChannel, logger)
	if err != nil {
		return nil, fmt.Errorf("connect notification bus: %w", err)
	}
	logger.Info("notification bus: redis", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	return bus, nil
}
