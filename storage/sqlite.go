package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ruteri/equipment-registry/interfaces"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS registry_state (
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	PRIMARY KEY (collection, key)
)`

// SQLiteStore persists registry state in a single SQLite table. Batches are
// applied inside one SQL transaction.
type SQLiteStore struct {
	sqlDB       *sql.DB
	path        string
	log         *slog.Logger
	locationURI string
}

// NewSQLiteStore opens the database at path and creates the state table.
func NewSQLiteStore(path string, log *slog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}

	return &SQLiteStore{
		sqlDB:       sqlDB,
		path:        cleanPath,
		log:         log,
		locationURI: fmt.Sprintf("sqlite://%s", cleanPath),
	}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	var value []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT value FROM registry_state WHERE collection = ? AND key = ?`,
		collection, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query state %s/%s: %w", collection, key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, collection, key string, value []byte) error {
	return s.WriteBatch(ctx, []interfaces.Mutation{{Collection: collection, Key: key, Value: value}})
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, key string) error {
	return s.WriteBatch(ctx, []interfaces.Mutation{{Collection: collection, Key: key}})
}

// WriteBatch applies all mutations in one SQL transaction.
func (s *SQLiteStore) WriteBatch(ctx context.Context, mutations []interfaces.Mutation) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin state tx: %w", err)
	}
	defer tx.Rollback()

	for _, mut := range mutations {
		if mut.Value == nil {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM registry_state WHERE collection = ? AND key = ?`,
				mut.Collection, mut.Key,
			); err != nil {
				return fmt.Errorf("delete state %s/%s: %w", mut.Collection, mut.Key, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO registry_state (collection, key, value) VALUES (?, ?, ?)
			 ON CONFLICT (collection, key) DO UPDATE SET value = excluded.value`,
			mut.Collection, mut.Key, mut.Value,
		); err != nil {
			return fmt.Errorf("upsert state %s/%s: %w", mut.Collection, mut.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Available(ctx context.Context) bool {
	if err := s.sqlDB.PingContext(ctx); err != nil {
		s.log.Debug("SQLite store unavailable", "err", err)
		return false
	}
	return true
}

func (s *SQLiteStore) Name() string {
	return fmt.Sprintf("sqlite-%s", filepath.Base(s.path))
}

func (s *SQLiteStore) LocationURI() string {
	return s.locationURI
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
