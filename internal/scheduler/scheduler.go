package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tk0miya/roadside-station-maps/internal/config"
	"github.com/tk0miya/roadside-station-maps/internal/metrics"
	"github.com/tk0miya/roadside-station-maps/internal/models"
	"github.com/tk0miya/roadside-station-maps/internal/scraper"
	"github.com/tk0miya/roadside-station-maps/internal/snapshot"
	"github.com/tk0miya/roadside-station-maps/internal/station"
)

// blockedCooldown is how long refreshes pause after the site starts refusing us
const blockedCooldown = 4 * time.Hour

var (
	ErrAlreadyRunning = errors.New("refresh already running")
	ErrCoolingDown    = errors.New("scraping is blocked, cooling down")
	ErrEmptyDataset   = errors.New("scrape returned no stations")
	// ErrSwapRefused means the new dataset looks partial and was not installed
	ErrSwapRefused = errors.New("dataset swap refused")
)

// RunOptions tunes one refresh
type RunOptions struct {
	// Force installs the dataset even when the scrape was incomplete or
	// the station count dropped.
	Force bool
}

// ScrapeFunc harvests every station, handing each to emit
type ScrapeFunc func(ctx context.Context, emit func(models.Station) error) error

// SnapshotRecorder keeps dataset history
type SnapshotRecorder interface {
	Record(checksum string, fc *models.StationsGeoJSON, changes []models.StationChange) (*models.DatasetSnapshot, error)
}

// Indexer receives every new dataset
type Indexer interface {
	IndexStations(fc *models.StationsGeoJSON) error
}

// Result summarizes one refresh
type Result struct {
	Checksum     string `json:"checksum"`
	StationCount int    `json:"station_count"`
	Scraped      int    `json:"scraped"`
	Skipped      int    `json:"skipped"`
	Changes      int    `json:"changes"`
	Unchanged    bool   `json:"unchanged"`
	LinksBroken  bool   `json:"links_broken"`
}

// Scheduler refreshes the station dataset on a daily schedule
type Scheduler struct {
	cron      *cron.Cron
	config    *config.Config
	catalog   *station.Catalog
	scrape    ScrapeFunc
	snapshots SnapshotRecorder
	indexer   Indexer
	isRunning bool

	mu    sync.Mutex
	state models.ScrapingState
	now   func() time.Time
}

// NewScheduler creates a new scheduler. snapshots and indexer may be nil.
func NewScheduler(cfg *config.Config, catalog *station.Catalog, scrape ScrapeFunc, snapshots SnapshotRecorder, indexer Indexer) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		config:    cfg,
		catalog:   catalog,
		scrape:    scrape,
		snapshots: snapshots,
		indexer:   indexer,
		now:       time.Now,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	if !s.config.Scraper.DailyRunEnabled {
		log.Println("[Scheduler] Daily run is disabled in configuration")
		return nil
	}

	cronSpec := parseDailyRunTime(s.config.Scraper.DailyRunTime)

	_, err := s.cron.AddFunc(cronSpec, func() {
		log.Println("[Scheduler] Starting daily refresh...")
		if _, err := s.RunNow(context.Background(), RunOptions{}); err != nil {
			log.Printf("[Scheduler] Daily refresh failed: %v", err)
		} else {
			log.Println("[Scheduler] Daily refresh completed successfully")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.isRunning = true
	log.Printf("[Scheduler] Started with daily run at %s (cron: %s)", s.config.Scraper.DailyRunTime, cronSpec)

	return nil
}

// Stop stops the scheduler and waits for a running job
func (s *Scheduler) Stop() {
	if s.isRunning {
		<-s.cron.Stop().Done()
		s.isRunning = false
		log.Println("[Scheduler] Stopped")
	}
}

// Status returns a copy of the refresh state
func (s *Scheduler) Status() models.ScrapingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RunNow immediately executes the refresh pipeline
func (s *Scheduler) RunNow(ctx context.Context, opts RunOptions) (*Result, error) {
	s.mu.Lock()
	if s.state.Running {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	if !s.state.CanScrape(s.now()) {
		until := s.state.BlockedUntil
		s.mu.Unlock()
		return nil, fmt.Errorf("%w until %s", ErrCoolingDown, until.Format(time.RFC3339))
	}
	s.state.Running = true
	s.mu.Unlock()

	start := s.now()
	result, err := s.refresh(ctx, opts)
	metrics.ScrapeDurationSeconds.Observe(s.now().Sub(start).Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Running = false
	switch {
	case errors.Is(err, scraper.ErrBlocked):
		s.state.RecordFailure(err, s.now())
		s.state.SetBlocked(err.Error(), blockedCooldown, s.now())
		log.Printf("[Scheduler] Site is blocking requests, pausing for %v", blockedCooldown)
	case err != nil:
		s.state.RecordFailure(err, s.now())
	default:
		s.state.RecordSuccess(result.Checksum, result.StationCount, s.now())
	}
	return result, err
}

// refresh runs scrape, CSV, GeoJSON, diff, history, catalog swap and
// reindex. A partial scrape or a shrinking dataset stops before any file
// is written unless opts.Force is set.
func (s *Scheduler) refresh(ctx context.Context, opts RunOptions) (*Result, error) {
	var stations []models.Station
	err := s.scrape(ctx, func(st models.Station) error {
		stations = append(stations, st)
		return nil
	})

	skipped := 0
	var incomplete *scraper.IncompleteError
	switch {
	case errors.As(err, &incomplete):
		skipped = incomplete.Prefectures + incomplete.Stations
		if !opts.Force {
			return &Result{Scraped: len(stations), Skipped: skipped},
				fmt.Errorf("%w: %v", ErrSwapRefused, err)
		}
		log.Printf("[Scheduler] Warning: forcing refresh despite %v", err)
	case err != nil:
		return nil, fmt.Errorf("scrape failed: %w", err)
	}
	if len(stations) == 0 {
		return nil, ErrEmptyDataset
	}
	log.Printf("[Scheduler] Scraped %d stations", len(stations))

	current := s.catalog.Snapshot()
	fc := station.BuildGeoJSON(stations)
	if !opts.Force && len(fc.Features) < len(current.Stations.Features) {
		return &Result{StationCount: len(fc.Features), Scraped: len(stations)},
			fmt.Errorf("%w: station count dropped from %d to %d",
				ErrSwapRefused, len(current.Stations.Features), len(fc.Features))
	}

	ds := s.config.Dataset
	if err := ensureDir(ds.CSVPath); err != nil {
		return nil, err
	}
	if err := station.WriteCSV(ds.CSVPath, stations); err != nil {
		return nil, err
	}

	if err := ensureDir(ds.GeoJSONPath); err != nil {
		return nil, err
	}
	checksum, err := station.WriteGeoJSON(ds.GeoJSONPath, fc)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Checksum:     checksum,
		StationCount: len(fc.Features),
		Scraped:      len(stations),
		Skipped:      skipped,
	}
	if checksum == current.Checksum {
		result.Unchanged = true
		log.Printf("[Scheduler] Dataset unchanged (%d stations)", result.StationCount)
		return result, nil
	}

	old := current.Stations
	changes := snapshot.Diff(old, fc)
	result.Changes = len(changes)
	result.LinksBroken = len(old.Features) > 0 && snapshot.BreaksSharedLinks(changes)
	if result.LinksBroken {
		log.Printf("[Scheduler] Warning: ordinals shifted, shared links created before now will decode differently")
	}

	if s.snapshots != nil {
		if _, err := s.snapshots.Record(checksum, fc, changes); err != nil {
			log.Printf("[Scheduler] Warning: failed to record snapshot: %v", err)
		}
	}

	s.catalog.Replace(fc, checksum)
	log.Printf("[Scheduler] Dataset replaced: %d stations, %d changes", result.StationCount, result.Changes)

	if s.indexer != nil {
		if err := s.indexer.IndexStations(fc); err != nil {
			log.Printf("[Scheduler] Warning: failed to reindex search: %v", err)
		}
	}
	return result, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// parseDailyRunTime converts HH:MM format to cron specification
// Example: "02:00" -> "0 2 * * *" (run at 2:00 AM every day)
func parseDailyRunTime(timeStr string) string {
	var hour, minute int
	n, _ := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute)
	if n == 2 && hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}

	// Default to 3:00 AM if parsing fails
	log.Printf("[Scheduler] Failed to parse time '%s', using default 03:00", timeStr)
	return "0 3 * * *"
}
