package models

import "time"

// DatasetSnapshot records one generated station dataset
type DatasetSnapshot struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Checksum     string    `gorm:"type:char(64);not null;index" json:"checksum"`
	StationCount int       `gorm:"type:int;not null" json:"station_count"`
	ChangeCount  int       `gorm:"type:int;not null;default:0" json:"change_count"`
	GeneratedAt  time.Time `gorm:"type:datetime;not null;index" json:"generated_at"`
	CreatedAt    time.Time `gorm:"type:datetime;not null;autoCreateTime" json:"created_at"`
}

// TableName specifies the table name
func (DatasetSnapshot) TableName() string {
	return "dataset_snapshots"
}

// StationChange is a difference between two consecutive datasets
type StationChange struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SnapshotID uint      `gorm:"type:bigint;not null;index" json:"snapshot_id"`
	StationID  string    `gorm:"type:varchar(32);not null;index" json:"station_id"`
	ChangeType string    `gorm:"type:varchar(50);not null" json:"change_type"`
	OldValue   string    `gorm:"type:text" json:"old_value,omitempty"`
	NewValue   string    `gorm:"type:text" json:"new_value,omitempty"`
	DetectedAt time.Time `gorm:"type:datetime;not null;autoCreateTime;index" json:"detected_at"`
}

// TableName specifies the table name
func (StationChange) TableName() string {
	return "station_changes"
}

// ChangeType constants
const (
	ChangeTypeNew      = "new_station"
	ChangeTypeRemoved  = "station_removed"
	ChangeTypeName     = "name_changed"
	ChangeTypeAddress  = "address_changed"
	ChangeTypeLocation = "location_changed"
	// An ordinal shift breaks links shared against the previous dataset.
	ChangeTypeOrdinal = "ordinal_changed"
)
