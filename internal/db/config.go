package db

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds relational store connection parameters.
type Config struct {
	// Driver selects the backend: "postgres" (default) or "sqlite".
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // disable, require, verify-ca, verify-full
	// If provided, DSN takes precedence over other fields.
	DSN string
	// SQLitePath is the database file used when Driver is "sqlite".
	SQLitePath string
	// MaxConns caps the pgx pool size.
	MaxConns int32
}

// FromEnv loads configuration from environment variables.
// DB_DSN overrides individual fields if set.
func FromEnv() Config {
	return Config{
		Driver:     strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
		Host:       getEnv("DB_HOST", "localhost"),
		Port:       getEnvInt("DB_PORT", 5432),
		User:       getEnv("DB_USER", "postgres"),
		Password:   getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "lifedb"),
		SSLMode:    getEnv("DB_SSLMODE", "disable"),
		DSN:        os.Getenv("DB_DSN"),
		SQLitePath: getEnv("SQLITE_PATH", "lifedb.sqlite"),
		MaxConns:   int32(getEnvInt("DB_MAX_CONNS", 8)),
	}
}

func (c Config) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// sqliteDSN serializes writers with BEGIN IMMEDIATE and waits on the lock
// instead of failing fast with SQLITE_BUSY.
func (c Config) sqliteDSN() string {
	path := c.SQLitePath
	if path == "" {
		path = "lifedb.sqlite"
	}
	return "file:" + path + "?_busy_timeout=10000&_txlock=immediate&_journal_mode=WAL&_foreign_keys=on"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		if n != 0 {
			return n
		}
	}
	return def
}
