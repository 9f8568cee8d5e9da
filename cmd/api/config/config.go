package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port           int
	DBDriver       string
	DBDSN          string
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int

	NotificationsEnabled bool
	NotificationsURL     string
	NotificationsTimeout time.Duration

	LogLevel slog.Level
}

/*
Reads the configuration from command line args. Every flag falls back to
an environment variable, read through getenv, and then to its default.
*/
func Load(args []string, getenv func(string) string) (Config, error) {
	var cfg Config
	var logLevel string

	fs := flag.NewFlagSet("library-service", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", envInt(getenv, "PORT", 8000), "HTTP port")
	fs.StringVar(&cfg.DBDriver, "db-driver", envString(getenv, "DATABASE_DRIVER", DriverSQLite), "store driver (sqlite|postgres|memory)")
	fs.StringVar(&cfg.DBDSN, "db-dsn", envString(getenv, "DATABASE_URL", "biblioteca.db"), "sqlite file or postgres connection string")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", envDuration(getenv, "HTTP_REQUEST_TIMEOUT", 5*time.Second), "per request deadline")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", envFloat(getenv, "RATE_LIMIT_RPS", 0), "requests per second per client IP (0 disables it)")
	fs.IntVar(&cfg.RateBurst, "rate-burst", envInt(getenv, "RATE_LIMIT_BURST", 20), "rate limiter burst")
	fs.BoolVar(&cfg.NotificationsEnabled, "notifications", envBool(getenv, "NOTIFICATIONS_ENABLED", false), "publish catalog events to ntfy")
	fs.StringVar(&cfg.NotificationsURL, "notifications-url", envString(getenv, "NOTIFICATIONS_URL", "https://ntfy.sh"), "ntfy base URL")
	fs.DurationVar(&cfg.NotificationsTimeout, "notifications-timeout", envDuration(getenv, "NOTIFICATIONS_TIMEOUT", 2*time.Second), "ntfy request deadline")
	fs.StringVar(&logLevel, "log-level", envString(getenv, "LOG_LEVEL", "info"), "debug, info, warn or error")

	err := fs.Parse(args)
	if err != nil {
		return Config{}, err
	}

	err = cfg.LogLevel.UnmarshalText([]byte(logLevel))
	if err != nil {
		return Config{}, fmt.Errorf("parsing log level: %w", err)
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown db driver %q", c.DBDriver))
	}
	if c.DBDriver != DriverMemory && strings.TrimSpace(c.DBDSN) == "" {
		errs = append(errs, errors.New("db dsn must be set"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request timeout must not be negative"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	if c.NotificationsEnabled && c.NotificationsURL == "" {
		errs = append(errs, errors.New("notifications url must be set when notifications are enabled"))
	}

	return errors.Join(errs...)
}

func envString(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// Malformed env values fall back to the default; flags are still validated by the flag set.
func envInt(getenv func(string) string, key string, def int) int {
	v, err := strconv.Atoi(getenv(key))
	if err != nil {
		return def
	}
	return v
}

func envFloat(getenv func(string) string, key string, def float64) float64 {
	v, err := strconv.ParseFloat(getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}

func envBool(getenv func(string) string, key string, def bool) bool {
	v, err := strconv.ParseBool(getenv(key))
	if err != nil {
		return def
	}
	return v
}

func envDuration(getenv func(string) string, key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(getenv(key))
	if err != nil {
		return def
	}
	return v
}
