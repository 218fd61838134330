/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the house ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Configure logging
  3. Initialize SQLite store
  4. Connect the change feed (Redis, or in-process fallback)
  5. Create API handler, router and poll closer
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the poll closer
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close change feed and database
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run with in-memory database on another port
  ./server -db=":memory:" -port=3000

  # Share change events between instances
  REDIS_URL=localhost:6379 ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/warp/house-ledger/api"
	"github.com/warp/house-ledger/changefeed"
	"github.com/warp/house-ledger/config"
	"github.com/warp/house-ledger/pkg/logging"
	"github.com/warp/house-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup()
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.SetupWithLevel(logging.ParseLevel(cfg.LogLevel))

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	if *dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
			slog.Error("Failed to create database directory", "path", *dbPath, "error", err)
			os.Exit(1)
		}
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	feed := connectFeed(cfg.RedisURL)
	defer feed.Close()

	metrics := api.NewMetrics()
	handler := api.NewHandler(store, feed, metrics)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	closer := api.NewPollCloser(store, feed, metrics)
	closer.CheckInterval = cfg.PollCheckInterval
	closer.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Server starting", "addr", fmt.Sprintf("http://localhost:%d", *port), "db", *dbPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")
	closer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped")
}

// connectFeed uses Redis when configured and reachable, and the in-process
// broker otherwise.
func connectFeed(redisURL string) changefeed.Broker {
	if redisURL == "" {
		return changefeed.NewMemory()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	feed, err := changefeed.NewRedis(ctx, redisURL)
	if err != nil {
		slog.Warn("Redis unavailable, using in-process change feed", "addr", redisURL, "error", err)
		return changefeed.NewMemory()
	}
	slog.Info("Change feed connected to Redis", "addr", redisURL)
	return feed
}
