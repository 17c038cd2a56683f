// Package main is the entry point for the arena betting API server. It wires
// together all services and starts the HTTP server alongside the WebSocket
// hub, the redis event relay and the background scheduler.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tayaan/arena/internal/api"
	"github.com/tayaan/arena/internal/cache"
	"github.com/tayaan/arena/internal/config"
	"github.com/tayaan/arena/internal/events"
	"github.com/tayaan/arena/internal/logger"
	"github.com/tayaan/arena/internal/metrics"
	"github.com/tayaan/arena/internal/repository"
	"github.com/tayaan/arena/internal/scheduler"
	"github.com/tayaan/arena/internal/service"
	"github.com/tayaan/arena/internal/ws"
)

func main() {
	// ── 1. Config + logger ────────────────────────────────────────────────────
	cfg := config.MustLoad()

	log, err := logger.New("arena-api", cfg.Server.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting arena api server", zap.String("port", cfg.Server.Port))

	// ── 2. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 3. Database ───────────────────────────────────────────────────────────
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err = db.PingContext(ctx); err != nil {
		log.Fatal("database ping failed", zap.Error(err))
	}
	log.Info("database connected")

	// ── 4. Migrations ─────────────────────────────────────────────────────────
	if err = runMigrations(db, "migrations", log); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	// ── 5. Redis, kafka, metrics ──────────────────────────────────────────────
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		if rdb, err = cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		log.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	} else {
		log.Warn("REDIS_ADDR not set: caches disabled, websocket relay is process-local")
	}

	collectors := metrics.New(prometheus.DefaultRegisterer)

	// ── 6. WebSocket Hub ──────────────────────────────────────────────────────
	hub := ws.NewHub([]byte(cfg.JWT.AccessSecret), cfg.Server.AllowedOrigins, log.Named("ws"), collectors)
	go hub.Run(ctx.Done())

	sinks := events.Fanout{}
	if cfg.Kafka.Enabled() {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = kp.Close() }()
		sinks = append(sinks, kp)
	}
	if rdb != nil {
		sinks = append(sinks, events.NewRedisPublisher(rdb, cfg.Redis.Channel))
		// Every API replica relays the channel, including events published
		// by the backoffice process.
		events.Subscribe(ctx, rdb, cfg.Redis.Channel, log.Named("relay"), hub.ForwardEvent)
	} else {
		sinks = append(sinks, hubSink{hub})
	}

	deps := service.Deps{Log: log, Metrics: collectors, Publisher: sinks}

	// ── 7. Repositories ───────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	matchRepo := repository.NewMatchRepository(db)
	betRepo := repository.NewBetRepository(db)
	poolRepo := repository.NewPoolRepository(db)
	kareraRepo := repository.NewKareraRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	// ── 8. Services (order matters for injection) ─────────────────────────────
	settingsSvc := service.NewSettingsService(settingsRepo, cache.NewSettingsCache(rdb, cfg.Redis.SettingsTTL), cfg, deps)
	poolSvc := service.NewPoolService(poolRepo, matchRepo, kareraRepo, settingsSvc, cache.NewPoolCache(rdb, cfg.Redis.SnapshotTTL), deps)
	matchSvc := service.NewMatchService(db, matchRepo, poolRepo, poolSvc, cfg, deps)
	betSvc := service.NewBetService(db, betRepo, matchRepo, poolRepo, walletRepo, userRepo, poolSvc, cfg, deps)
	kareraSvc := service.NewKareraService(db, kareraRepo, poolRepo, walletRepo, userRepo, poolSvc, cfg, deps)
	walletSvc := service.NewWalletService(db, walletRepo, userRepo, deps)
	userAdminSvc := service.NewUserAdminService(userRepo, deps)
	authSvc := service.NewAuthService(userRepo, cfg)

	// ── 9. Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(poolSvc, hub, cfg, log.Named("scheduler"), matchSvc, kareraSvc)
	sched.Start(ctx)

	// ── 10. Metrics listener ──────────────────────────────────────────────────
	var metricsSrv *http.Server
	if cfg.Metrics.Port != "" {
		metricsSrv = metrics.StartServer(cfg.Metrics.Port, healthCheck(db, rdb), log.Named("metrics"))
	}

	// ── 11. HTTP Router ───────────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		AuthSvc:      authSvc,
		MatchSvc:     matchSvc,
		PoolSvc:      poolSvc,
		BetSvc:       betSvc,
		KareraSvc:    kareraSvc,
		WalletSvc:    walletSvc,
		UserAdminSvc: userAdminSvc,
		Hub:          hub,
		Cfg:          cfg,
		Logger:       log.Named("http"),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", zap.Error(err))
			stop() // trigger graceful shutdown
		}
	}()

	// ── 12. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown error", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	_ = db.Close()
	log.Info("server stopped cleanly")
}

// hubSink delivers events straight to the local hub when there is no redis
// channel to relay through.
type hubSink struct{ hub *ws.Hub }

func (s hubSink) Publish(_ context.Context, e events.Event) error {
	s.hub.ForwardEvent(e)
	return nil
}

// healthCheck pings postgres and, when configured, redis.
func healthCheck(db *sqlx.DB, rdb *redis.Client) metrics.HealthFunc {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}

// runMigrations reads all *.sql files from dir, sorted by name, and executes
// them sequentially. Idempotent: SQL files use IF NOT EXISTS / ON CONFLICT.
func runMigrations(db *sqlx.DB, dir string, log *zap.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("runMigrations: read dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("runMigrations: read %q: %w", f, err)
		}
		if _, err = db.Exec(string(data)); err != nil {
			return fmt.Errorf("runMigrations: exec %q: %w", f, err)
		}
		log.Info("migration applied", zap.String("file", filepath.Base(f)))
	}
	return nil
}
