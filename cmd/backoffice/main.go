// Package main is the entry point for the arena backoffice server: match and
// race control, settlement, house liquidity, settings and account admin.
// Events it emits reach websocket clients through the redis channel the API
// servers relay.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tayaan/arena/internal/backoffice"
	"github.com/tayaan/arena/internal/cache"
	"github.com/tayaan/arena/internal/config"
	"github.com/tayaan/arena/internal/events"
	"github.com/tayaan/arena/internal/logger"
	"github.com/tayaan/arena/internal/metrics"
	"github.com/tayaan/arena/internal/repository"
	"github.com/tayaan/arena/internal/service"
)

func main() {
	// ── Config + logger ───────────────────────────────────────────────────────
	cfg := config.MustLoad()

	log, err := logger.New("arena-backoffice", cfg.Server.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting arena backoffice server", zap.String("port", cfg.Server.BackofficePort))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Database ──────────────────────────────────────────────────────────────
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

	// ── Redis, kafka, metrics ─────────────────────────────────────────────────
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		if rdb, err = cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
	} else {
		log.Warn("REDIS_ADDR not set: settlement and odds events will not reach websocket clients")
	}

	sinks := events.Fanout{}
	if cfg.Kafka.Enabled() {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = kp.Close() }()
		sinks = append(sinks, kp)
	}
	if rdb != nil {
		sinks = append(sinks, events.NewRedisPublisher(rdb, cfg.Redis.Channel))
	}

	collectors := metrics.New(prometheus.DefaultRegisterer)
	deps := service.Deps{Log: log, Metrics: collectors, Publisher: sinks}

	// ── Repositories ──────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	matchRepo := repository.NewMatchRepository(db)
	betRepo := repository.NewBetRepository(db)
	poolRepo := repository.NewPoolRepository(db)
	kareraRepo := repository.NewKareraRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	// ── Services ──────────────────────────────────────────────────────────────
	settingsSvc := service.NewSettingsService(settingsRepo, cache.NewSettingsCache(rdb, cfg.Redis.SettingsTTL), cfg, deps)
	poolSvc := service.NewPoolService(poolRepo, matchRepo, kareraRepo, settingsSvc, cache.NewPoolCache(rdb, cfg.Redis.SnapshotTTL), deps)
	matchSvc := service.NewMatchService(db, matchRepo, poolRepo, poolSvc, cfg, deps)
	betSvc := service.NewBetService(db, betRepo, matchRepo, poolRepo, walletRepo, userRepo, poolSvc, cfg, deps)
	settleSvc := service.NewSettlementService(db, matchRepo, betRepo, poolRepo, walletRepo, poolSvc, cfg, deps)
	injectSvc := service.NewInjectionService(betSvc, poolRepo, walletRepo, cfg, deps)
	kareraSvc := service.NewKareraService(db, kareraRepo, poolRepo, walletRepo, userRepo, poolSvc, cfg, deps)
	walletSvc := service.NewWalletService(db, walletRepo, userRepo, deps)
	userAdminSvc := service.NewUserAdminService(userRepo, deps)
	authSvc := service.NewAuthService(userRepo, cfg)

	var metricsSrv *http.Server
	if cfg.Metrics.BackofficePort != "" {
		metricsSrv = metrics.StartServer(cfg.Metrics.BackofficePort, func(ctx context.Context) error {
			return db.PingContext(ctx)
		}, log.Named("metrics"))
	}

	// ── Router ────────────────────────────────────────────────────────────────
	router := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
		AuthSvc:      authSvc,
		MatchSvc:     matchSvc,
		SettleSvc:    settleSvc,
		InjectSvc:    injectSvc,
		BetSvc:       betSvc,
		KareraSvc:    kareraSvc,
		WalletSvc:    walletSvc,
		UserAdminSvc: userAdminSvc,
		SettingsSvc:  settingsSvc,
		Hub:          nil, // backoffice does not directly serve WS
		Cfg:          cfg,
		Logger:       log.Named("http"),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.BackofficePort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── Start ─────────────────────────────────────────────────────────────────
	go func() {
		log.Info("backoffice http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("backoffice server error", zap.Error(err))
			stop()
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		log.Error("backoffice shutdown error", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	_ = db.Close()
	log.Info("backoffice server stopped cleanly")
}
