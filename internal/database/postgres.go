package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB stores styles in PostgreSQL
type DB struct {
	conn *sql.DB
}

func NewDB(host, port, user, password, dbname, sslmode string) (*DB, error) {
	if sslmode == "" {
		sslmode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	return &DB{conn: conn}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// InitSchema creates the style_entries table if it doesn't exist
func (db *DB) InitSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS style_entries (
		profile VARCHAR(64) NOT NULL,
		station_key VARCHAR(32) NOT NULL,
		value VARCHAR(8) NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
		PRIMARY KEY (profile, station_key)
	);

	CREATE INDEX IF NOT EXISTS idx_style_entries_updated_at ON style_entries(updated_at DESC);
	`
	_, err := db.conn.Exec(query)
	return err
}

func (db *DB) Get(ctx context.Context, profile, key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM style_entries WHERE profile = $1 AND station_key = $2`,
		profile, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (db *DB) Set(ctx context.Context, profile, key, value string) error {
	query := `
	INSERT INTO style_entries (profile, station_key, value, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (profile, station_key) DO UPDATE SET
		value = EXCLUDED.value,
		updated_at = EXCLUDED.updated_at
	`
	_, err := db.conn.ExecContext(ctx, query, profile, key, value, time.Now())
	return err
}

func (db *DB) Delete(ctx context.Context, profile, key string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM style_entries WHERE profile = $1 AND station_key = $2`, profile, key)
	return err
}

func (db *DB) Keys(ctx context.Context, profile string) ([]string, error) {
	return queryStrings(ctx, db.conn,
		`SELECT station_key FROM style_entries WHERE profile = $1 ORDER BY station_key`, profile)
}

func (db *DB) Items(ctx context.Context, profile string) (map[string]string, error) {
	return queryPairs(ctx, db.conn,
		`SELECT station_key, value FROM style_entries WHERE profile = $1`, profile)
}

// Profiles lists every profile that has at least one entry
func (db *DB) Profiles(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, db.conn, `SELECT DISTINCT profile FROM style_entries`)
}
