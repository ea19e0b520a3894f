package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/tk0miya/roadside-station-maps/internal/models"
)

// GormDB stores styles in MySQL through gorm. It also owns the dataset
// history and delete log tables.
type GormDB struct {
	db *gorm.DB
}

func NewGormDB(host, port, user, password, dbname string) (*GormDB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbname)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	return &GormDB{db: db}, nil
}

// NewGormDBFromDB wraps an open connection
func NewGormDBFromDB(db *gorm.DB) *GormDB {
	return &GormDB{db: db}
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	return gdb.db.AutoMigrate(
		&models.StyleEntry{},
		&models.DatasetSnapshot{},
		&models.StationChange{},
		&models.DeleteLog{},
	)
}

// entries scopes a query to one profile
func (gdb *GormDB) entries(ctx context.Context, profile string) *gorm.DB {
	return gdb.db.WithContext(ctx).
		Model(&models.StyleEntry{}).
		Where("profile = ?", profile)
}

func (gdb *GormDB) Get(ctx context.Context, profile, key string) (string, bool, error) {
	var entry models.StyleEntry
	err := gdb.entries(ctx, profile).Where("station_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// Set upserts on the (profile, station_key) unique index
func (gdb *GormDB) Set(ctx context.Context, profile, key, value string) error {
	entry := models.StyleEntry{Profile: profile, StationKey: key, Value: value}
	return gdb.db.WithContext(ctx).Clauses(clause.OnConflict{
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (gdb *GormDB) Delete(ctx context.Context, profile, key string) error {
	return gdb.db.WithContext(ctx).
		Where("profile = ? AND station_key = ?", profile, key).
		Delete(&models.StyleEntry{}).Error
}

func (gdb *GormDB) Keys(ctx context.Context, profile string) ([]string, error) {
	var keys []string
	err := gdb.entries(ctx, profile).Order("station_key").Pluck("station_key", &keys).Error
	return keys, err
}

func (gdb *GormDB) Items(ctx context.Context, profile string) (map[string]string, error) {
	var entries []models.StyleEntry
	if err := gdb.entries(ctx, profile).Select("station_key", "value").Find(&entries).Error; err != nil {
		return nil, err
	}
	items := make(map[string]string, len(entries))
	for _, e := range entries {
		items[e.StationKey] = e.Value
	}
	return items, nil
}

// Profiles lists every profile that has at least one entry
func (gdb *GormDB) Profiles(ctx context.Context) ([]string, error) {
	var profiles []string
	err := gdb.db.WithContext(ctx).
		Model(&models.StyleEntry{}).
		Distinct("profile").
		Order("profile").
		Pluck("profile", &profiles).Error
	return profiles, err
}

// RecordDeletions writes pruned entries to delete_logs
func (gdb *GormDB) RecordDeletions(ctx context.Context, logs []models.DeleteLog) error {
	if len(logs) == 0 {
		return nil
	}
	if err := gdb.db.WithContext(ctx).CreateInBatches(&logs, 200).Error; err != nil {
		return fmt.Errorf("failed to save delete logs: %w", err)
	}
	return nil
}

// RecentDeletions returns the newest delete log entries
func (gdb *GormDB) RecentDeletions(ctx context.Context, limit int) ([]models.DeleteLog, error) {
	var logs []models.DeleteLog
	err := gdb.db.WithContext(ctx).Order("deleted_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
