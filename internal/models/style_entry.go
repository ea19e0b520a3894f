package models

import "time"

// StyleEntry is one persisted station style within a profile
type StyleEntry struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Profile    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_profile_station" json:"profile"`
	StationKey string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_profile_station,priority:2" json:"station_key"`
	Value      string    `gorm:"type:varchar(8);not null" json:"value"`
	UpdatedAt  time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (StyleEntry) TableName() string {
	return "style_entries"
}
