package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/loreledger/internal/ids"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added idx_import_log_manifest for finalization lookups
const currentSchemaVersion = 1

// Recorder receives append outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordAppend(result string)
}

// Append outcomes reported to the Recorder.
const (
	AppendResultCreated  = "created"
	AppendResultReused   = "reused"
	AppendResultConflict = "conflict"
	AppendResultError    = "error"
)

type noopRecorder struct{}

func (noopRecorder) RecordAppend(string) {}

// Store provides durable storage for campaign ledgers and ImportLogs.
// Uses SQLite with WAL mode for concurrent read access: writes go through a
// single-connection pool, Store-level reads through a separate query-only
// pool that never waits on an open write transaction.
type Store struct {
	db       *sql.DB // writer, one connection
	reader   *sql.DB // query-only; same as db for in-memory databases
	now      func() time.Time
	ids      ids.Generator
	recorder Recorder
	logger   *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*campaignLock
}

// campaignLock is a one-slot semaphore. refs counts holders and waiters so
// idle campaigns drop out of the map.
type campaignLock struct {
	sem  chan struct{}
	refs int
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the wall clock used for wall_time_utc and ImportLog
// timestamps. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator sets the event id generator. Defaults to UUIDv7.
func WithIDGenerator(gen ids.Generator) Option {
	return func(s *Store) { s.ids = gen }
}

// WithRecorder sets the metrics recorder for append outcomes.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	reader := db
	if !isMemoryPath(path) {
		reader, err = openReader(path)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	s := &Store{
		db:       db,
		reader:   reader,
		now:      time.Now,
		ids:      ids.UUIDv7Generator{},
		recorder: noopRecorder{},
		logger:   slog.Default(),
		locks:    make(map[string]*campaignLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// openReader opens the query-only pool. It must be opened after the writer
// has switched the file to WAL so readers see a consistent snapshot while a
// write transaction is open.
func openReader(path string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	reader, err := sql.Open("sqlite3", path+sep+"_query_only=true&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}
	if err := reader.Ping(); err != nil {
		reader.Close()
		return nil, fmt.Errorf("failed to connect read pool: %w", err)
	}
	return reader, nil
}

// isMemoryPath reports whether path names an in-memory database. Each
// connection to one would be a separate database, so reads share the writer.
func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory") || strings.HasPrefix(path, "file::memory:")
}

// Close closes both connection pools.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	var readErr error
	if s.reader != nil && s.reader != s.db {
		readErr = s.reader.Close()
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	return readErr
}

// DB returns the writer sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// wallTime returns the current wall time in UTC at millisecond precision.
func (s *Store) wallTime() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// lockCampaign acquires the writer lock for a campaign and returns its
// release function. Waiting honors ctx cancellation. The entry is removed
// once nobody holds or waits for it.
func (s *Store) lockCampaign(ctx context.Context, campaignID string) (func(), error) {
	s.locksMu.Lock()
	l, ok := s.locks[campaignID]
	if !ok {
		l = &campaignLock{sem: make(chan struct{}, 1)}
		s.locks[campaignID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			s.unrefCampaign(campaignID, l)
		}, nil
	case <-ctx.Done():
		s.unrefCampaign(campaignID, l)
		return nil, fmt.Errorf("lock campaign %s: %w", campaignID, ctx.Err())
	}
}

func (s *Store) unrefCampaign(campaignID string, l *campaignLock) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, campaignID)
	}
}

// lockedCampaigns returns the number of campaigns with a live lock entry.
// Used for testing.
func (s *Store) lockedCampaigns() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the manifest_hash index for databases created before it
// was part of schema.sql.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_import_log_manifest
		ON import_log (campaign_id, manifest_hash)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(ctx context.Context, name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRowContext(ctx, query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
