package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS style_entries (
	profile TEXT NOT NULL,
	station_key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (profile, station_key)
);
`

// SQLiteDB stores styles in a local SQLite file
type SQLiteDB struct {
	conn    *sql.DB
	writeMu sync.Mutex
}

// NewSQLiteDB opens path with WAL enabled, creating parent directories
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("[Database] Connected to SQLite database: %s", path)
	return &SQLiteDB{conn: conn}, nil
}

func (db *SQLiteDB) Close() error {
	return db.conn.Close()
}

// InitSchema creates the style_entries table if it doesn't exist
func (db *SQLiteDB) InitSchema() error {
	if _, err := db.conn.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (db *SQLiteDB) Get(ctx context.Context, profile, key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM style_entries WHERE profile = ? AND station_key = ?`,
		profile, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (db *SQLiteDB) Set(ctx context.Context, profile, key, value string) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO style_entries (profile, station_key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (profile, station_key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		profile, key, value, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (db *SQLiteDB) Delete(ctx context.Context, profile, key string) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM style_entries WHERE profile = ? AND station_key = ?`, profile, key)
	return err
}

func (db *SQLiteDB) Keys(ctx context.Context, profile string) ([]string, error) {
	return queryStrings(ctx, db.conn,
		`SELECT station_key FROM style_entries WHERE profile = ? ORDER BY station_key`, profile)
}

func (db *SQLiteDB) Items(ctx context.Context, profile string) (map[string]string, error) {
	return queryPairs(ctx, db.conn,
		`SELECT station_key, value FROM style_entries WHERE profile = ?`, profile)
}

// Profiles lists every profile that has at least one entry
func (db *SQLiteDB) Profiles(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, db.conn, `SELECT DISTINCT profile FROM style_entries ORDER BY profile`)
}

func queryStrings(ctx context.Context, conn *sql.DB, query string, args ...interface{}) ([]string, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func queryPairs(ctx context.Context, conn *sql.DB, query string, args ...interface{}) (map[string]string, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}
