// Package snapshot compares consecutive station datasets and keeps a
// history of them.
package snapshot

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/tk0miya/roadside-station-maps/internal/models"
)

// Diff lists the differences between two datasets. A nil old dataset
// reports every station as new.
func Diff(old, current *models.StationsGeoJSON) []models.StationChange {
	before := byStationID(old)
	after := byStationID(current)
	now := time.Now()

	var changes []models.StationChange
	add := func(id, changeType, oldValue, newValue string) {
		changes = append(changes, models.StationChange{
			StationID:  id,
			ChangeType: changeType,
			OldValue:   oldValue,
			NewValue:   newValue,
			DetectedAt: now,
		})
	}

	for _, id := range sortedIDs(after) {
		cur := after[id]
		prev, ok := before[id]
		if !ok {
			add(id, models.ChangeTypeNew, "", cur.Properties.Name)
			continue
		}

		p, c := prev.Properties, cur.Properties
		if p.Name != c.Name {
			add(id, models.ChangeTypeName, p.Name, c.Name)
		}
		if p.Address != c.Address {
			add(id, models.ChangeTypeAddress, p.Address, c.Address)
		}
		if prev.Geometry.Coordinates != cur.Geometry.Coordinates {
			add(id, models.ChangeTypeLocation, formatCoordinates(prev), formatCoordinates(cur))
		}
		if p.InternalID != c.InternalID {
			add(id, models.ChangeTypeOrdinal, p.InternalID, c.InternalID)
		}
	}

	for _, id := range sortedIDs(before) {
		if _, ok := after[id]; !ok {
			add(id, models.ChangeTypeRemoved, before[id].Properties.Name, "")
		}
	}
	return changes
}

// BreaksSharedLinks reports whether links created against the old
// dataset decode differently against the new one
func BreaksSharedLinks(changes []models.StationChange) bool {
	for _, c := range changes {
		if c.ChangeType == models.ChangeTypeOrdinal || c.ChangeType == models.ChangeTypeRemoved {
			return true
		}
	}
	return false
}

func byStationID(fc *models.StationsGeoJSON) map[string]models.StationFeature {
	m := make(map[string]models.StationFeature)
	if fc == nil {
		return m
	}
	for _, f := range fc.Features {
		m[f.Properties.StationID] = f
	}
	return m
}

func sortedIDs(m map[string]models.StationFeature) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids
}

func formatCoordinates(f models.StationFeature) string {
	c := f.Geometry.Coordinates
	return fmt.Sprintf("%g,%g", c[1], c[0])
}

// Service stores dataset history
type Service struct {
	db *gorm.DB
}

// NewService creates a new snapshot service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Record saves a dataset snapshot and its changes in one transaction
func (s *Service) Record(checksum string, fc *models.StationsGeoJSON, changes []models.StationChange) (*models.DatasetSnapshot, error) {
	snap := &models.DatasetSnapshot{
		Checksum:     checksum,
		StationCount: len(fc.Features),
		ChangeCount:  len(changes),
		GeneratedAt:  time.Now(),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(snap).Error; err != nil {
			return fmt.Errorf("failed to create snapshot: %w", err)
		}
		if len(changes) == 0 {
			return nil
		}
		for i := range changes {
			changes[i].SnapshotID = snap.ID
		}
		if err := tx.CreateInBatches(&changes, 200).Error; err != nil {
			return fmt.Errorf("failed to save changes: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Snapshot] Recorded dataset %s: %d stations, %d changes", checksum[:min(12, len(checksum))], snap.StationCount, snap.ChangeCount)
	return snap, nil
}

// LatestChecksum returns the checksum of the most recent snapshot, or ""
func (s *Service) LatestChecksum() (string, error) {
	var snap models.DatasetSnapshot
	err := s.db.Order("generated_at DESC").First(&snap).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return snap.Checksum, nil
}

// GetRecentSnapshots returns the latest snapshots, newest first
func (s *Service) GetRecentSnapshots(limit int) ([]models.DatasetSnapshot, error) {
	var snaps []models.DatasetSnapshot
	err := s.db.Order("generated_at DESC").Limit(limit).Find(&snaps).Error
	return snaps, err
}

// GetChanges returns the changes recorded with a snapshot
func (s *Service) GetChanges(snapshotID uint) ([]models.StationChange, error) {
	var changes []models.StationChange
	err := s.db.Where("snapshot_id = ?", snapshotID).Order("id").Find(&changes).Error
	return changes, err
}

// GetStationHistory returns the recorded changes of one station
func (s *Service) GetStationHistory(stationID string, limit int) ([]models.StationChange, error) {
	var changes []models.StationChange
	err := s.db.Where("station_id = ?", stationID).
		Order("detected_at DESC").
		Limit(limit).
		Find(&changes).Error
	return changes, err
}
