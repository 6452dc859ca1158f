package world

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
)

// SQLStore keeps blobs in a SQL table:
//
//	CREATE TABLE chunks (
//	    key        TEXT PRIMARY KEY,
//	    data       BLOB NOT NULL,
//	    updated_at TIMESTAMP NOT NULL
//	);
//
// It works with any database/sql driver; OpenSQLite wires the sqlite3
// driver and creates the table.
type SQLStore struct {
	db        *sql.DB
	ownsDB    bool
	tableName string
	dialect   SQLDialect
	closed    atomic.Bool
}

// SQLDialect selects placeholder and upsert syntax.
type SQLDialect int

const (
	// DialectSQLite uses ? placeholders and INSERT OR REPLACE.
	DialectSQLite SQLDialect = iota
	// DialectPostgreSQL uses $n placeholders and ON CONFLICT.
	DialectPostgreSQL
)

// SQLStoreOption configures a SQLStore.
type SQLStoreOption func(*SQLStore)

// WithTableName sets the table name. Default: "chunks".
func WithTableName(name string) SQLStoreOption {
	return func(s *SQLStore) {
		s.tableName = name
	}
}

// WithDialect sets the SQL dialect. Default: DialectSQLite.
func WithDialect(d SQLDialect) SQLStoreOption {
	return func(s *SQLStore) {
		s.dialect = d
	}
}

// NewSQLStore wraps an open database. The table must exist; see Migrate.
func NewSQLStore(db *sql.DB, opts ...SQLStoreOption) *SQLStore {
	s := &SQLStore{db: db, tableName: "chunks", dialect: DialectSQLite}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenSQLite opens (or creates) a sqlite database at path and migrates it.
func OpenSQLite(path string, opts ...SQLStoreOption) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	s := NewSQLStore(db, opts...)
	s.ownsDB = true
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the chunk table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, s.tableName))
	return err
}

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) Load(ctx context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	query := fmt.Sprintf(`SELECT data FROM %s WHERE key = %s`, s.tableName, s.placeholder(1))
	var data []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("world: load %s: %w", key, err)
	}
	return data, nil
}

func (s *SQLStore) Save(ctx context.Context, key string, data []byte) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (key, data, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`, s.tableName)
	default:
		query = fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (key, data, updated_at)
			VALUES (?, ?, datetime('now'))`, s.tableName)
	}
	if _, err := s.db.ExecContext(ctx, query, key, data); err != nil {
		return fmt.Errorf("world: save %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = %s`, s.tableName, s.placeholder(1))
	_, err := s.db.ExecContext(ctx, query, key)
	return err
}

// Close closes the database if the store opened it.
func (s *SQLStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
