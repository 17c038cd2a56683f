// Package config reads arena settings from the environment, with an optional
// .env file underneath. Get returns the process-wide instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sections
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig covers both HTTP listeners.
type ServerConfig struct {
	Port                 string
	BackofficePort       string
	Env                  string // development or production
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	BackofficeAllowedIPs string   // empty admits every address
	AllowedOrigins       []string // CORS and websocket origins in production
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// JWTConfig signs access and refresh tokens with separate keys.
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// RedisConfig holds the cache / pub-sub connection.
type RedisConfig struct {
	Addr        string // "" disables redis
	Password    string
	DB          int
	SnapshotTTL time.Duration // live pool snapshot cache
	SettingsTTL time.Duration // app_settings cache
	Channel     string        // pub/sub channel for odds and settlement fan-out
}

// Enabled reports whether a redis address is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// KafkaConfig holds the domain event producer settings.
type KafkaConfig struct {
	Brokers []string // empty disables kafka
	Topic   string
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// MetricsConfig holds the prometheus listener of each binary. An empty port
// disables it.
type MetricsConfig struct {
	Port           string
	BackofficePort string
}

// BettingConfig holds pool, payout and wallet rules. PlasadaRate and
// DrawMultiplier only apply until app_settings holds a value.
type BettingConfig struct {
	MinStake          float64
	PlasadaRate       float64
	DrawMultiplier    float64
	PayoutBasis       string        // all_sources or user_only
	LastCallWindow    time.Duration // last call auto-closes after this
	OddsBroadcastTick time.Duration
	HouseUserID       uuid.UUID // funds injections, receives commission
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is everything both binaries read at boot.
type Config struct {
	Server  ServerConfig
	DB      DBConfig
	JWT     JWTConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	Metrics MetricsConfig
	Betting BettingConfig
}

// IsProd reports ENVIRONMENT=production.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate reports every invalid or missing value at once.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be set"))
	}
	if c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET must be set"))
	}

	if c.IsProd() && c.DB.DSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
	}

	if c.Betting.PlasadaRate < 0 || c.Betting.PlasadaRate >= 1 {
		errs = append(errs, fmt.Errorf(
			"PLASADA_RATE must be in [0,1), got %.4f", c.Betting.PlasadaRate,
		))
	}
	if c.Betting.DrawMultiplier <= 1 {
		errs = append(errs, fmt.Errorf(
			"DRAW_MULTIPLIER must be above 1, got %.2f", c.Betting.DrawMultiplier,
		))
	}
	if c.Betting.MinStake <= 0 {
		errs = append(errs, fmt.Errorf("MIN_STAKE must be positive, got %.2f", c.Betting.MinStake))
	}
	switch c.Betting.PayoutBasis {
	case "all_sources", "user_only":
	default:
		errs = append(errs, fmt.Errorf(
			"POOL_PAYOUT_BASIS must be all_sources or user_only, got %q", c.Betting.PayoutBasis,
		))
	}
	if c.Betting.HouseUserID == uuid.Nil {
		errs = append(errs, errors.New("HOUSE_USER_ID must be set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get loads the environment on first use and panics on malformed values.
func Get() *Config {
	once.Do(func() { instance, loadErr = load() })
	if loadErr != nil {
		panic("config: load: " + loadErr.Error())
	}
	return instance
}

// MustLoad is Get followed by Validate, for main.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic("config: " + err.Error())
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Loading
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf(".env: %w", err)
	}

	// Parse failures are collected so one boot reports all of them.
	var p parser
	cfg := &Config{
		Server: ServerConfig{
			Port:                 getEnv("SERVER_PORT", "8080"),
			BackofficePort:       getEnv("BACKOFFICE_PORT", "8081"),
			Env:                  getEnv("ENVIRONMENT", "development"),
			ReadTimeout:          envAs(&p, "SERVER_READ_TIMEOUT", 10*time.Second, time.ParseDuration),
			WriteTimeout:         envAs(&p, "SERVER_WRITE_TIMEOUT", 10*time.Second, time.ParseDuration),
			BackofficeAllowedIPs: getEnv("BACKOFFICE_ALLOWED_IPS", ""),
			AllowedOrigins:       splitList(getEnv("ALLOWED_ORIGINS", "")),
		},
		DB: DBConfig{
			DSN:             databaseDSN(),
			MaxOpenConns:    envAs(&p, "DB_MAX_OPEN_CONNS", 25, strconv.Atoi),
			MaxIdleConns:    envAs(&p, "DB_MAX_IDLE_CONNS", 10, strconv.Atoi),
			ConnMaxLifetime: envAs(&p, "DB_CONN_MAX_LIFETIME", 5*time.Minute, time.ParseDuration),
		},
		JWT: JWTConfig{
			AccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
			AccessTTL:     envAs(&p, "JWT_ACCESS_TTL", 15*time.Minute, time.ParseDuration),
			RefreshTTL:    envAs(&p, "JWT_REFRESH_TTL", 30*24*time.Hour, time.ParseDuration),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", ""),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          envAs(&p, "REDIS_DB", 0, strconv.Atoi),
			SnapshotTTL: envAs(&p, "REDIS_SNAPSHOT_TTL", 2*time.Second, time.ParseDuration),
			SettingsTTL: envAs(&p, "REDIS_SETTINGS_TTL", 30*time.Second, time.ParseDuration),
			Channel:     getEnv("REDIS_CHANNEL", "arena:events"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "arena.events"),
		},
		Metrics: MetricsConfig{
			Port:           getEnv("METRICS_PORT", "9090"),
			BackofficePort: getEnv("BACKOFFICE_METRICS_PORT", "9091"),
		},
		Betting: BettingConfig{
			MinStake:          envAs(&p, "MIN_STAKE", 10, parseFloat),
			PlasadaRate:       envAs(&p, "PLASADA_RATE", 0.04, parseFloat),
			DrawMultiplier:    envAs(&p, "DRAW_MULTIPLIER", 8, parseFloat),
			PayoutBasis:       getEnv("POOL_PAYOUT_BASIS", "all_sources"),
			LastCallWindow:    envAs(&p, "LAST_CALL_WINDOW", 30*time.Second, time.ParseDuration),
			OddsBroadcastTick: envAs(&p, "ODDS_BROADCAST_TICK", time.Second, time.ParseDuration),
			HouseUserID:       envAs(&p, "HOUSE_USER_ID", uuid.Nil, uuid.Parse),
		},
	}
	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	return cfg, nil
}

// databaseDSN prefers DATABASE_DSN and otherwise assembles one from the
// discrete DB_* variables.
func databaseDSN() string {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", ""),
		getEnv("DB_NAME", "tayaan_arena"),
		getEnv("DB_SSLMODE", "disable"),
	)
}

// ──────────────────────────────────────────────────────────────────────────────
// Env helpers
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

type parser struct{ errs []error }

// envAs parses key with parse, returning def when the variable is unset.
func envAs[T any](p *parser, key string, def T, parse func(string) (T, error)) T {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid value %q", key, v))
		return def
	}
	return out
}

func parseFloat(v string) (float64, error) { return strconv.ParseFloat(v, 64) }

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
