package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// DSN builds the lib/pq connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// SMTPConfig outbound mail settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Addr returns host:port for net/smtp
func (c *SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Config coldwatch-data service configuration
type Config struct {
	HTTP struct {
		Addr string
	}
	Database DatabaseConfig
	Redis    struct {
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}
	SMTP SMTPConfig

	// Ops recipients for critical-device offline alerts (comma separated env).
	OpsRecipients []string

	// Scheduler intervals and monitor thresholds.
	TokenRefreshInterval time.Duration
	DeviceSyncInterval   time.Duration
	MonitorInterval      time.Duration
	ConfigPollInterval   time.Duration
	OfflineThreshold     time.Duration
	BackfillLimit        int

	// Shared token expected on webhook deliveries.
	WebhookToken string
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "coldwatch")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.SMTP.Host = getEnv("SMTP_HOST", "localhost")
	cfg.SMTP.Port = parseInt(getEnv("SMTP_PORT", "587"), 587)
	cfg.SMTP.Username = getEnv("SMTP_USERNAME", "")
	cfg.SMTP.Password = getEnv("SMTP_PASSWORD", "")
	cfg.SMTP.From = getEnv("SMTP_FROM", "coldwatch@localhost")

	cfg.OpsRecipients = splitList(getEnv("OPS_RECIPIENTS", ""))

	cfg.TokenRefreshInterval = parseDuration(getEnv("TOKEN_REFRESH_INTERVAL", "1m"), time.Minute)
	cfg.DeviceSyncInterval = parseDuration(getEnv("DEVICE_SYNC_INTERVAL", "15m"), 15*time.Minute)
	cfg.MonitorInterval = parseDuration(getEnv("MONITOR_INTERVAL", "15m"), 15*time.Minute)
	cfg.ConfigPollInterval = parseDuration(getEnv("CONFIG_POLL_INTERVAL", "30m"), 30*time.Minute)
	cfg.OfflineThreshold = parseDuration(getEnv("OFFLINE_THRESHOLD", "10m"), 10*time.Minute)
	cfg.BackfillLimit = parseInt(getEnv("BACKFILL_LIMIT", "20"), 20)

	cfg.WebhookToken = getEnv("WEBHOOK_TOKEN", "")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
