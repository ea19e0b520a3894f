package models

import "time"

// DeleteLog records a style entry pruned from a profile
type DeleteLog struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Profile    string    `gorm:"type:varchar(64);not null;index" json:"profile"`
	StationKey string    `gorm:"type:varchar(32);not null" json:"station_key"`
	Value      string    `gorm:"type:varchar(8)" json:"value"`
	DeletedAt  time.Time `gorm:"type:datetime;not null;autoCreateTime;index" json:"deleted_at"`
	Reason     string    `gorm:"type:varchar(50);not null" json:"reason"`
}

// TableName specifies the table name
func (DeleteLog) TableName() string {
	return "delete_logs"
}

// DeleteReason constants
const (
	DeleteReasonStaleStation = "station_not_in_dataset"
	DeleteReasonInvalidValue = "invalid_value"
)
