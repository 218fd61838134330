/*
config.go - Server configuration

PURPOSE:
  Collects the server's settings from the environment. A .env file in the
  working directory is loaded first when present; real environment
  variables win over it.

ENVIRONMENT:
  PORT                 HTTP port (default: 8080)
  DB_PATH              SQLite database path, ":memory:" allowed
                       (default: ./data/ledger.db)
  REDIS_URL            Redis address for the change feed; empty means the
                       in-process broker (default: empty)
  LOG_LEVEL            debug, info, warn, error (default: info)
  POLL_CHECK_INTERVAL  how often expired polls are closed (default: 1m)
  CORS_ORIGINS         comma-separated allowed origins (default: *)

Command-line flags in cmd/server override PORT and DB_PATH.

SEE ALSO:
  - cmd/server/main.go: flag overrides
  - pkg/logging: LOG_LEVEL parsing
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              int
	DBPath            string
	RedisURL          string
	LogLevel          string
	PollCheckInterval time.Duration
	CORSOrigins       []string
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	godotenv.Load() // Load .env file if present

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil || port <= 0 {
		return nil, fmt.Errorf("invalid PORT %q", os.Getenv("PORT"))
	}
	interval, err := time.ParseDuration(getEnv("POLL_CHECK_INTERVAL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_CHECK_INTERVAL: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("invalid POLL_CHECK_INTERVAL: must be positive, got %s", interval)
	}

	return &Config{
		Port:              port,
		DBPath:            getEnv("DB_PATH", "./data/ledger.db"),
		RedisURL:          getEnv("REDIS_URL", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		PollCheckInterval: interval,
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "*")),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
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
