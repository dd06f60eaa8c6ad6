package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const defaultListLimit = 100

// SQLiteStore keeps director attributes and the CPI call journal.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Path == ":memory:" {
		// every connection to :memory: opens a separate database
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate applies the embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Open creates, initializes and migrates a store in one step.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	store, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// GetAttribute returns a director attribute, or ErrNotFound.
func (s *SQLiteStore) GetAttribute(ctx context.Context, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM director_attributes WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("director attribute %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get director attribute: %w", err)
	}
	return value, nil
}

// SetAttribute inserts or replaces a director attribute.
func (s *SQLiteStore) SetAttribute(ctx context.Context, name, value string) error {
	query := `
		INSERT INTO director_attributes (name, value, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`

	if _, err := s.db.ExecContext(ctx, query, name, value, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to set director attribute: %w", err)
	}
	return nil
}

// DirectorUUID returns the stored director UUID, generating and storing a
// new one on first use. Concurrent first calls agree on a single value.
func (s *SQLiteStore) DirectorUUID(ctx context.Context) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO director_attributes (name, value, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, AttributeDirectorUUID, uuid.New().String(), time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to create director uuid: %w", err)
	}

	var id string
	err = tx.QueryRowContext(ctx, `SELECT value FROM director_attributes WHERE name = ?`, AttributeDirectorUUID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to read director uuid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit director uuid: %w", err)
	}
	return id, nil
}

// RecordCall appends a call to the journal and sets entry.ID.
func (s *SQLiteStore) RecordCall(ctx context.Context, entry *CallEntry) error {
	query := `
		INSERT INTO cpi_calls (
			request_id, cpi, method, arguments, started_at, duration_ns,
			exit_status, stderr_bytes, outcome, error_kind, error_type,
			error_message, ok_to_retry
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	args := entry.Arguments
	if args == "" {
		args = "[]"
	}

	result, err := s.db.ExecContext(ctx, query,
		entry.RequestID,
		entry.CPI,
		entry.Method,
		args,
		entry.StartedAt.UnixNano(),
		int64(entry.Duration),
		entry.ExitStatus,
		entry.StderrBytes,
		entry.Outcome,
		entry.ErrorKind,
		entry.ErrorType,
		entry.ErrorMessage,
		entry.OkToRetry,
	)
	if err != nil {
		return fmt.Errorf("failed to record cpi call: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get cpi call ID: %w", err)
	}

	entry.ID = id
	return nil
}

// ListCalls returns journal entries matching filter, newest first.
func (s *SQLiteStore) ListCalls(ctx context.Context, filter CallFilter) ([]*CallEntry, error) {
	query := `
		SELECT id, request_id, cpi, method, arguments, started_at, duration_ns,
		       exit_status, stderr_bytes, outcome, error_kind, error_type,
		       error_message, ok_to_retry
		FROM cpi_calls
		WHERE (? = '' OR cpi = ?)
		  AND (? = '' OR method = ?)
		  AND (? = '' OR request_id = ?)
		  AND (? = '' OR outcome = ?)
		  AND started_at >= ?
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	var since int64
	if !filter.Since.IsZero() {
		since = filter.Since.UnixNano()
	}

	rows, err := s.db.QueryContext(ctx, query,
		filter.CPI, filter.CPI,
		filter.Method, filter.Method,
		filter.RequestID, filter.RequestID,
		filter.Outcome, filter.Outcome,
		since,
		limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cpi calls: %w", err)
	}
	defer rows.Close()

	entries := []*CallEntry{}
	for rows.Next() {
		var (
			entry      CallEntry
			startedAt  int64
			durationNs int64
		)
		err := rows.Scan(
			&entry.ID,
			&entry.RequestID,
			&entry.CPI,
			&entry.Method,
			&entry.Arguments,
			&startedAt,
			&durationNs,
			&entry.ExitStatus,
			&entry.StderrBytes,
			&entry.Outcome,
			&entry.ErrorKind,
			&entry.ErrorType,
			&entry.ErrorMessage,
			&entry.OkToRetry,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cpi call: %w", err)
		}
		entry.StartedAt = time.Unix(0, startedAt)
		entry.Duration = time.Duration(durationNs)
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cpi calls: %w", err)
	}

	return entries, nil
}

// PruneCalls deletes journal entries started before cutoff.
func (s *SQLiteStore) PruneCalls(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM cpi_calls WHERE started_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune cpi calls: %w", err)
	}
	return result.RowsAffected()
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
