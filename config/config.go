// Package config loads server settings from the environment, an optional
// .env file and an optional taskboard.yaml.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

const fileName = "taskboard"

// Config holds every setting the server reads at startup.
type Config struct {
	DBDriver    string
	DatabaseURL string
	RedisURL    string

	SessionSecret string
	JWTSecret     string
	TokenTTL      time.Duration
	SecureCookies bool

	ListenAddr     string
	CORSOrigins    []string
	CacheTTL       time.Duration
	IdempotencyTTL time.Duration

	PublishWorkers        int
	PublishBuffer         int
	PublishHandoffTimeout time.Duration

	DeadlineSweepInterval time.Duration
	AlertQueueConnString  string
	AlertQueue            string
	Locale                string

	LogFormat string
	Debug     bool
}

var defaults = map[string]any{
	"db_driver":               "sqlite",
	"database_url":            "file:taskboard.db",
	"token_ttl":               "24h",
	"secure_cookies":          false,
	"listen_addr":             ":8080",
	"cors_origins":            "*",
	"cache_ttl":               "1m",
	"idempotency_ttl":         "24h",
	"publish_workers":         4,
	"publish_buffer":          256,
	"publish_handoff_timeout": "15ms",
	"deadline_sweep_interval": "15s",
	"locale":                  "en",
	"log_format":              "text",
	"debug":                   false,
}

// Load reads dir/.env (if present) into the process environment, then
// dir/taskboard.yaml (if present), then the environment, which wins.
func Load(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read %s.yaml: %w", fileName, err)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		DBDriver:              v.GetString("db_driver"),
		DatabaseURL:           v.GetString("database_url"),
		RedisURL:              v.GetString("redis_connection_string"),
		SessionSecret:         v.GetString("session_secret"),
		JWTSecret:             v.GetString("jwt_secret"),
		TokenTTL:              v.GetDuration("token_ttl"),
		SecureCookies:         v.GetBool("secure_cookies"),
		ListenAddr:            v.GetString("listen_addr"),
		CORSOrigins:           splitList(v.GetString("cors_origins")),
		CacheTTL:              v.GetDuration("cache_ttl"),
		IdempotencyTTL:        v.GetDuration("idempotency_ttl"),
		PublishWorkers:        v.GetInt("publish_workers"),
		PublishBuffer:         v.GetInt("publish_buffer"),
		PublishHandoffTimeout: v.GetDuration("publish_handoff_timeout"),
		DeadlineSweepInterval: v.GetDuration("deadline_sweep_interval"),
		AlertQueueConnString:  v.GetString("alert_queue_connection_string"),
		AlertQueue:            v.GetString("alert_queue"),
		Locale:                v.GetString("locale"),
		LogFormat:             v.GetString("log_format"),
		Debug:                 v.GetBool("debug"),
	}
	return cfg, nil
}

// Validate reports the first setting the server cannot start without.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("invalid DB_DRIVER %q", c.DBDriver)
	}
	if c.DatabaseURL == "" {
		return errors.New("missing DATABASE_URL")
	}
	if c.JWTSecret == "" {
		return errors.New("missing JWT_SECRET")
	}
	if c.SessionSecret == "" {
		return errors.New("missing SESSION_SECRET")
	}
	if c.TokenTTL <= 0 {
		return errors.New("invalid TOKEN_TTL: must be greater than zero")
	}
	if c.IdempotencyTTL <= 0 {
		return errors.New("invalid IDEMPOTENCY_TTL: must be greater than zero")
	}
	if c.PublishWorkers <= 0 {
		return errors.New("invalid PUBLISH_WORKERS: must be greater than zero")
	}
	if (c.AlertQueueConnString == "") != (c.AlertQueue == "") {
		return errors.New("ALERT_QUEUE_CONNECTION_STRING and ALERT_QUEUE must be set together")
	}
	return nil
}

// RedisOptions parses RedisURL. It returns nil when Redis is not configured.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if c.RedisURL == "" {
		return nil, nil
	}
	return ParseRedis(c.RedisURL)
}

// ParseRedis accepts either a redis:// URL or the Azure style
// "host:port,password=...,ssl=true" string.
func ParseRedis(conn string) (*redis.Options, error) {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	if strings.TrimSpace(parts[0]) == "" || strings.Contains(parts[0], "://") {
		return nil, fmt.Errorf("invalid redis connection string %q", conn)
	}
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
