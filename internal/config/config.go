// Package config holds the server settings. Every setting is a flag whose
// default comes from an ACCOUNTDESK_* environment variable.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"AccountDesk/internal/editor"
	"AccountDesk/internal/logger"
	"AccountDesk/internal/store/postgres"

	"github.com/cockroachdb/errors"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Addr          string
	Driver        string
	DSN           string
	Table         string
	MaxIdleConns  int
	LockTimeout   time.Duration
	IdleTimeout   time.Duration
	ReapInterval  time.Duration
	LogDir        string
	LogLevel      string
	Seed          bool
	ShutdownGrace time.Duration
}

func Default() Config {
	return Config{
		Addr:          ":8080",
		Driver:        DriverPostgres,
		DSN:           "host=localhost port=5432 user=postgres dbname=accounts sslmode=disable",
		Table:         postgres.DefaultTable,
		LockTimeout:   editor.DefaultLockTimeout,
		IdleTimeout:   editor.DefaultIdleTimeout,
		ReapInterval:  time.Minute,
		LogDir:        "logs",
		LogLevel:      "info",
		Seed:          true,
		ShutdownGrace: 5 * time.Second,
	}
}

// Register binds the config fields to fs. Environment variables override the
// compiled defaults; explicit flags override both.
func (c *Config) Register(fs *flag.FlagSet, env func(string) string) {
	if env == nil {
		env = os.Getenv
	}

	fs.StringVar(&c.Addr, "addr", envString(env, "ACCOUNTDESK_ADDR", c.Addr), "listen address")
	fs.StringVar(&c.Driver, "driver", envString(env, "ACCOUNTDESK_DRIVER", c.Driver), "store driver: postgres or memory")
	fs.StringVar(&c.DSN, "dsn", envString(env, "ACCOUNTDESK_DSN", c.DSN), "postgres connection string")
	fs.StringVar(&c.Table, "table", envString(env, "ACCOUNTDESK_TABLE", c.Table), "accounts table name")
	fs.IntVar(&c.MaxIdleConns, "max-idle-conns", envInt(env, "ACCOUNTDESK_MAX_IDLE_CONNS", c.MaxIdleConns), "idle connections kept by the pool")
	fs.DurationVar(&c.LockTimeout, "lock-timeout", envDuration(env, "ACCOUNTDESK_LOCK_TIMEOUT", c.LockTimeout), "row lock wait bound for updates")
	fs.DurationVar(&c.IdleTimeout, "session-idle-timeout", envDuration(env, "ACCOUNTDESK_SESSION_IDLE_TIMEOUT", c.IdleTimeout), "idle time after which a session is closed")
	fs.DurationVar(&c.ReapInterval, "reap-interval", envDuration(env, "ACCOUNTDESK_REAP_INTERVAL", c.ReapInterval), "how often idle sessions are checked")
	fs.StringVar(&c.LogDir, "log-dir", envString(env, "ACCOUNTDESK_LOG_DIR", c.LogDir), "log directory")
	fs.StringVar(&c.LogLevel, "log-level", envString(env, "ACCOUNTDESK_LOG_LEVEL", c.LogLevel), "debug, info or error")
	fs.BoolVar(&c.Seed, "seed", envBool(env, "ACCOUNTDESK_SEED", c.Seed), "load demo rows into the memory store")
	fs.DurationVar(&c.ShutdownGrace, "shutdown-grace", envDuration(env, "ACCOUNTDESK_SHUTDOWN_GRACE", c.ShutdownGrace), "graceful shutdown timeout")
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres:
		if c.DSN == "" {
			return errors.New("dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return errors.Newf("unknown driver %q", c.Driver)
	}
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.LockTimeout <= 0 {
		return errors.Newf("lock timeout must be positive, got %s", c.LockTimeout)
	}
	if c.IdleTimeout <= 0 {
		return errors.Newf("session idle timeout must be positive, got %s", c.IdleTimeout)
	}
	if c.ReapInterval <= 0 {
		return errors.Newf("reap interval must be positive, got %s", c.ReapInterval)
	}
	if c.MaxIdleConns < 0 {
		return errors.Newf("max idle conns cannot be negative, got %d", c.MaxIdleConns)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func envString(env func(string) string, key, def string) string {
	if v := env(key); v != "" {
		return v
	}
	return def
}

func envInt(env func(string) string, key string, def int) int {
	if v, err := strconv.Atoi(env(key)); err == nil {
		return v
	}
	return def
}

func envBool(env func(string) string, key string, def bool) bool {
	if v, err := strconv.ParseBool(env(key)); err == nil {
		return v
	}
	return def
}

func envDuration(env func(string) string, key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(env(key)); err == nil {
		return v
	}
	return def
}
