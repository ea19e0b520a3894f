package database

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/tk0miya/roadside-station-maps/internal/config"
	"github.com/tk0miya/roadside-station-maps/internal/storage"
)

// Handle is an opened durable backend
type Handle struct {
	Backend storage.Backend
	// Gorm is set only for the mysql type
	Gorm  *GormDB
	Type  string
	close func() error
}

// Close releases the connection
func (h *Handle) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

// Open connects the backend selected by cfg.Type and prepares its schema
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Handle, error) {
	switch cfg.Type {
	case "", "memory":
		log.Println("[Database] Using in-memory style storage")
		return &Handle{Backend: storage.NewMemoryBackend(), Type: "memory"}, nil

	case "sqlite":
		db, err := NewSQLiteDB(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		if err := db.InitSchema(); err != nil {
			db.Close()
			return nil, err
		}
		return &Handle{Backend: db, Type: cfg.Type, close: db.Close}, nil

	case "mysql":
		m := cfg.MySQL
		db, err := NewGormDB(m.Host, strconv.Itoa(m.Port), m.User, m.Password, m.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
		}
		if err := db.InitSchema(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		return &Handle{Backend: db, Gorm: db, Type: cfg.Type, close: db.Close}, nil

	case "postgres":
		p := cfg.Postgres
		db, err := NewDB(p.Host, strconv.Itoa(p.Port), p.User, p.Password, p.Database, p.SSLMode)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if err := db.InitSchema(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		return &Handle{Backend: db, Type: cfg.Type, close: db.Close}, nil

	case "redis":
		r := cfg.Redis
		rb, err := NewRedisBackend(ctx, r.Addr, r.Password, r.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return &Handle{Backend: rb, Type: cfg.Type, close: rb.Close}, nil
	}

	return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
}

var (
	_ storage.Backend       = (*SQLiteDB)(nil)
	_ storage.Backend       = (*GormDB)(nil)
	_ storage.Backend       = (*DB)(nil)
	_ storage.Backend       = (*RedisBackend)(nil)
	_ storage.ProfileLister = (*SQLiteDB)(nil)
	_ storage.ProfileLister = (*GormDB)(nil)
	_ storage.ProfileLister = (*DB)(nil)
	_ storage.ProfileLister = (*RedisBackend)(nil)
	_ storage.ItemReader    = (*SQLiteDB)(nil)
	_ storage.ItemReader    = (*GormDB)(nil)
	_ storage.ItemReader    = (*DB)(nil)
	_ storage.ItemReader    = (*RedisBackend)(nil)
)
