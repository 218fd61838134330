/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface of the module using SQLite. In
  production the same patterns apply to PostgreSQL with minor SQL dialect
  differences.

INTERFACES IMPLEMENTED:
  ledger.TxStore:   houses, members, expenses, contributions (Store)
  household.Store:  house creation and membership moves (Store)
  polls.TxStore:    polls, options, votes (PollStore, via Store.Polls())

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on expenses or contributions
  - No DELETE statements on expenses or contributions (except Reset)
  - Votes and memberships are the only rows ever deleted

KEY TABLES:
  houses:         Tenant boundary, unique invite code
  house_members:  One row per user (PRIMARY KEY user_id: one house at a time)
  expenses:       Immutable shared costs, amount as decimal TEXT
  contributions:  Immutable payments toward one expense
  polls, poll_options, poll_votes: Poll sub-ledger
  poll_closures:  Record of polls the scheduler has closed

DECIMALS:
  Amounts are stored as TEXT in decimal.Decimal's canonical form so they
  round-trip exactly. Never REAL.

TIMESTAMPS:
  UTC, fixed-width nanosecond layout, so lexical order is time order.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.
  Inside WithTx every read goes through the sql.Tx, never through the
  locking methods (the mutex is not reentrant).

IN-MEMORY DATABASES:
  ":memory:" gives each pooled connection its own database, so the pool is
  pinned to a single connection.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  writer := ledger.NewWriter(store)
  voter := polls.NewVoter(store.Polls())

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Store / TxStore
  - household/household.go: household.Store
  - polls/poll.go: polls.Store / TxStore
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Houses
	CREATE TABLE IF NOT EXISTS houses (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL UNIQUE,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Memberships: user_id is the key, a user lives in one house at a time
	CREATE TABLE IF NOT EXISTS house_members (
		user_id TEXT PRIMARY KEY,
		house_id TEXT NOT NULL REFERENCES houses(id),
		role TEXT NOT NULL CHECK (role IN ('admin', 'member')),
		name TEXT NOT NULL,
		joined_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_house_members_house
		ON house_members(house_id, joined_at);

	-- Expenses (append-only)
	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		house_id TEXT NOT NULL REFERENCES houses(id),
		title TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_by TEXT NOT NULL,
		split_between TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Hot path: all expenses of a house in creation order
	CREATE INDEX IF NOT EXISTS idx_expenses_house_created
		ON expenses(house_id, created_at);

	-- Contributions (append-only)
	CREATE TABLE IF NOT EXISTS contributions (
		id TEXT PRIMARY KEY,
		expense_id TEXT NOT NULL REFERENCES expenses(id),
		house_id TEXT NOT NULL REFERENCES houses(id),
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		date TEXT NOT NULL,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_contributions_expense
		ON contributions(expense_id);
	CREATE INDEX IF NOT EXISTS idx_contributions_house
		ON contributions(house_id);
	CREATE INDEX IF NOT EXISTS idx_contributions_user
		ON contributions(user_id);

	-- Polls
	CREATE TABLE IF NOT EXISTS polls (
		id TEXT PRIMARY KEY,
		house_id TEXT NOT NULL REFERENCES houses(id),
		created_by TEXT NOT NULL,
		question TEXT NOT NULL,
		multiple_choice BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_polls_house
		ON polls(house_id);
	CREATE INDEX IF NOT EXISTS idx_polls_expires
		ON polls(expires_at);

	CREATE TABLE IF NOT EXISTS poll_options (
		id TEXT PRIMARY KEY,
		poll_id TEXT NOT NULL REFERENCES polls(id),
		option_text TEXT NOT NULL,
		position INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_poll_options_poll
		ON poll_options(poll_id, position);

	-- CRITICAL: one vote per user per option
	CREATE TABLE IF NOT EXISTS poll_votes (
		id TEXT PRIMARY KEY,
		poll_id TEXT NOT NULL REFERENCES polls(id),
		user_id TEXT NOT NULL,
		option_id TEXT NOT NULL REFERENCES poll_options(id),
		created_at TEXT NOT NULL,
		UNIQUE(user_id, option_id)
	);

	CREATE INDEX IF NOT EXISTS idx_poll_votes_poll
		ON poll_votes(poll_id);

	-- Poll closures (written once by the scheduler)
	CREATE TABLE IF NOT EXISTS poll_closures (
		poll_id TEXT PRIMARY KEY REFERENCES polls(id),
		winners_json TEXT NOT NULL,
		closed_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Children first so foreign keys hold.
	tables := []string{
		"poll_closures", "poll_votes", "poll_options", "polls",
		"contributions", "expenses", "house_members", "houses",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// inTx runs fn in a database transaction. Callers hold s.mu.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Helper functions

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored amount %q: %w", s, err)
	}
	return d, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
