// Package cleanup prunes style entries that no longer match the station
// dataset.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/tk0miya/roadside-station-maps/internal/models"
	"github.com/tk0miya/roadside-station-maps/internal/station"
	"github.com/tk0miya/roadside-station-maps/internal/storage"
)

// ErrNoStations is returned when pruning against an empty dataset
var ErrNoStations = errors.New("station index is empty")

// DeletionRecorder persists an audit trail of pruned entries
type DeletionRecorder interface {
	RecordDeletions(ctx context.Context, logs []models.DeleteLog) error
}

// Service removes stale entries from durable profiles
type Service struct {
	backend  storage.Backend
	recorder DeletionRecorder
}

// NewService creates a new cleanup service. recorder may be nil.
func NewService(backend storage.Backend, recorder DeletionRecorder) *Service {
	return &Service{backend: backend, recorder: recorder}
}

// CleanupConfig holds configuration for cleanup operations
type CleanupConfig struct {
	MaxDeletionCount int  // Abort when more entries than this would go
	DryRun           bool // Only report what would be deleted
}

// DefaultCleanupConfig returns default configuration
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{MaxDeletionCount: 500}
}

// CleanupResult holds the result of a cleanup operation
type CleanupResult struct {
	Profiles     int       `json:"profiles"`
	TargetCount  int       `json:"target_count"`
	DeletedCount int       `json:"deleted_count"`
	ErrorCount   int       `json:"error_count"`
	DryRun       bool      `json:"dry_run"`
	ExecutedAt   time.Time `json:"executed_at"`
	Deleted      []string  `json:"deleted"`
	Errors       []string  `json:"errors,omitempty"`
}

type target struct {
	profile, key, value, reason string
}

// findStale lists entries whose station is gone or whose value is not a
// style. Keys that are not station ids are left alone.
func (s *Service) findStale(ctx context.Context, profile string, idx *station.Index) ([]target, error) {
	entries, err := s.entries(ctx, profile)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var targets []target
	for _, key := range keys {
		if !storage.IsStationKey(key) {
			continue
		}
		value := entries[key]
		switch {
		case !storage.IsStoredValue(value):
			targets = append(targets, target{profile, key, value, models.DeleteReasonInvalidValue})
		case !idx.Contains(key):
			targets = append(targets, target{profile, key, value, models.DeleteReasonStaleStation})
		}
	}
	return targets, nil
}

// entries loads every raw entry of profile, in one call when the backend
// supports it
func (s *Service) entries(ctx context.Context, profile string) (map[string]string, error) {
	if reader, ok := s.backend.(storage.ItemReader); ok {
		items, err := reader.Items(ctx, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to read entries for %s: %w", profile, err)
		}
		return items, nil
	}

	keys, err := s.backend.Keys(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys for %s: %w", profile, err)
	}
	items := make(map[string]string, len(keys))
	for _, key := range keys {
		value, ok, err := s.backend.Get(ctx, profile, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s/%s: %w", profile, key, err)
		}
		if ok {
			items[key] = value
		}
	}
	return items, nil
}

// PruneProfile cleans one profile
func (s *Service) PruneProfile(ctx context.Context, profile string, idx *station.Index, config CleanupConfig) (*CleanupResult, error) {
	return s.prune(ctx, []string{profile}, idx, config)
}

// PruneAll cleans every profile the backend can enumerate
func (s *Service) PruneAll(ctx context.Context, idx *station.Index, config CleanupConfig) (*CleanupResult, error) {
	lister, ok := s.backend.(storage.ProfileLister)
	if !ok {
		return nil, fmt.Errorf("backend %T cannot list profiles", s.backend)
	}
	profiles, err := lister.Profiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return s.prune(ctx, profiles, idx, config)
}

func (s *Service) prune(ctx context.Context, profiles []string, idx *station.Index, config CleanupConfig) (*CleanupResult, error) {
	if idx == nil || idx.Len() == 0 {
		return nil, ErrNoStations
	}

	result := &CleanupResult{
		Profiles:   len(profiles),
		DryRun:     config.DryRun,
		ExecutedAt: time.Now(),
	}

	var targets []target
	for _, profile := range profiles {
		found, err := s.findStale(ctx, profile, idx)
		if err != nil {
			return nil, err
		}
		targets = append(targets, found...)
	}
	result.TargetCount = len(targets)

	if result.TargetCount == 0 {
		log.Println("[Cleanup] No stale entries found")
		return result, nil
	}

	if config.MaxDeletionCount > 0 && result.TargetCount > config.MaxDeletionCount {
		return nil, fmt.Errorf("safety check failed: %d entries exceed max deletion limit of %d",
			result.TargetCount, config.MaxDeletionCount)
	}

	log.Printf("[Cleanup] Starting cleanup: %d entries in %d profiles (dry-run: %v)",
		result.TargetCount, len(profiles), config.DryRun)

	var logs []models.DeleteLog
	for _, t := range targets {
		name := t.profile + "/" + t.key
		if config.DryRun {
			log.Printf("[DRY-RUN] Would delete %s=%q (%s)", name, t.value, t.reason)
			result.Deleted = append(result.Deleted, name)
			result.DeletedCount++
			continue
		}

		if err := s.backend.Delete(ctx, t.profile, t.key); err != nil {
			msg := fmt.Sprintf("failed to delete %s: %v", name, err)
			log.Printf("[Cleanup] ERROR: %s", msg)
			result.Errors = append(result.Errors, msg)
			result.ErrorCount++
			continue
		}
		result.Deleted = append(result.Deleted, name)
		result.DeletedCount++
		logs = append(logs, models.DeleteLog{
			Profile:    t.profile,
			StationKey: t.key,
			Value:      t.value,
			Reason:     t.reason,
		})
	}

	if s.recorder != nil && len(logs) > 0 {
		if err := s.recorder.RecordDeletions(ctx, logs); err != nil {
			log.Printf("[Cleanup] Warning: failed to record delete logs: %v", err)
		}
	}

	log.Printf("[Cleanup] Completed: %d/%d deleted, %d errors (dry-run: %v)",
		result.DeletedCount, result.TargetCount, result.ErrorCount, config.DryRun)
	return result, nil
}
