package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tk0miya/roadside-station-maps/internal/config"
	"github.com/tk0miya/roadside-station-maps/internal/models"
	"github.com/tk0miya/roadside-station-maps/internal/scraper"
	"github.com/tk0miya/roadside-station-maps/internal/station"
)

func TestParseDailyRunTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"02:00", "0 2 * * *"},
		{"03:30", "30 3 * * *"},
		{"23:59", "59 23 * * *"},
		{"25:00", "0 3 * * *"},
		{"noon", "0 3 * * *"},
		{"", "0 3 * * *"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseDailyRunTime(tt.in); got != tt.want {
				t.Errorf("parseDailyRunTime(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

type fakeRecorder struct {
	calls   int
	changes int
}

func (f *fakeRecorder) Record(checksum string, fc *models.StationsGeoJSON, changes []models.StationChange) (*models.DatasetSnapshot, error) {
	f.calls++
	f.changes = len(changes)
	return &models.DatasetSnapshot{Checksum: checksum}, nil
}

type fakeIndexer struct {
	indexed int
}

func (f *fakeIndexer) IndexStations(fc *models.StationsGeoJSON) error {
	f.indexed = len(fc.Features)
	return nil
}

func scrapeOf(stations ...models.Station) ScrapeFunc {
	return func(ctx context.Context, emit func(models.Station) error) error {
		for _, s := range stations {
			if err := emit(s); err != nil {
				return err
			}
		}
		return nil
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Dataset.CSVPath = filepath.Join(dir, "out", "stations.csv")
	cfg.Dataset.GeoJSONPath = filepath.Join(dir, "out", "stations.geojson")
	return cfg
}

func stationAt(id, name string) models.Station {
	return models.Station{PrefID: "01", StationID: id, Name: name, Lat: "43.0", Lng: "141.0"}
}

func TestRunNowPipeline(t *testing.T) {
	cfg := testConfig(t)
	catalog := station.NewCatalog()
	rec := &fakeRecorder{}
	idx := &fakeIndexer{}

	noCoords := models.Station{StationID: "5", Lat: models.NoCoordinate, Lng: models.NoCoordinate}
	s := NewScheduler(cfg, catalog, scrapeOf(stationAt("20", "B"), stationAt("10", "A"), noCoords), rec, idx)

	res, err := s.RunNow(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if res.Scraped != 3 || res.StationCount != 2 {
		t.Errorf("result = %+v", res)
	}
	if res.Changes != 2 || res.LinksBroken {
		t.Errorf("first run changes = %d, broken = %v", res.Changes, res.LinksBroken)
	}
	if rec.calls != 1 || idx.indexed != 2 {
		t.Errorf("recorder calls = %d, indexed = %d", rec.calls, idx.indexed)
	}
	if sum := catalog.Snapshot().Checksum; sum != res.Checksum {
		t.Errorf("catalog checksum = %q, want %q", sum, res.Checksum)
	}
	_, index := catalog.Current()
	if ord, ok := index.StationToInternal("10"); !ok || ord != 0 {
		t.Errorf("ordinal of 10 = %d, %v", ord, ok)
	}

	for _, p := range []string{cfg.Dataset.CSVPath, cfg.Dataset.GeoJSONPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing output %s: %v", p, err)
		}
	}
	if _, sum, err := station.LoadGeoJSON(cfg.Dataset.GeoJSONPath); err != nil || sum != res.Checksum {
		t.Errorf("LoadGeoJSON checksum = %q, err = %v", sum, err)
	}

	state := s.Status()
	if state.Running || state.SuccessCount != 1 || state.StationCount != 2 {
		t.Errorf("state = %+v", state)
	}
}

func TestRunNowUnchanged(t *testing.T) {
	cfg := testConfig(t)
	catalog := station.NewCatalog()
	rec := &fakeRecorder{}
	s := NewScheduler(cfg, catalog, scrapeOf(stationAt("10", "A")), rec, nil)

	if _, err := s.RunNow(context.Background(), RunOptions{}); err != nil {
		t.Fatal(err)
	}
	res, err := s.RunNow(context.Background(), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Unchanged || rec.calls != 1 {
		t.Errorf("unchanged = %v, recorder calls = %d", res.Unchanged, rec.calls)
	}
}

func TestRunNowDetectsShiftedOrdinals(t *testing.T) {
	cfg := testConfig(t)
	catalog := station.NewCatalog()

	first := NewScheduler(cfg, catalog, scrapeOf(stationAt("10", "A"), stationAt("20", "B")), nil, nil)
	if _, err := first.RunNow(context.Background(), RunOptions{}); err != nil {
		t.Fatal(err)
	}

	second := NewScheduler(cfg, catalog, scrapeOf(stationAt("5", "Z"), stationAt("10", "A"), stationAt("20", "B")), nil, nil)
	res, err := second.RunNow(context.Background(), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.LinksBroken {
		t.Errorf("expected shifted ordinals to break links, result = %+v", res)
	}
}

func incompleteScrape(skipped int, stations ...models.Station) ScrapeFunc {
	return func(ctx context.Context, emit func(models.Station) error) error {
		if err := scrapeOf(stations...)(ctx, emit); err != nil {
			return err
		}
		return &scraper.IncompleteError{Stations: skipped}
	}
}

func TestRunNowRefusesPartialScrape(t *testing.T) {
	cfg := testConfig(t)
	catalog := station.NewCatalog()
	full := []models.Station{stationAt("10", "A"), stationAt("20", "B"), stationAt("30", "C")}

	if _, err := NewScheduler(cfg, catalog, scrapeOf(full...), nil, nil).RunNow(context.Background(), RunOptions{}); err != nil {
		t.Fatal(err)
	}
	before := catalog.Snapshot()

	// 20 failed to fetch; 30 would move from ordinal 2 to 1
	idx := &fakeIndexer{}
	s := NewScheduler(cfg, catalog, incompleteScrape(1, full[0], full[2]), nil, idx)
	res, err := s.RunNow(context.Background(), RunOptions{})
	if !errors.Is(err, ErrSwapRefused) {
		t.Fatalf("err = %v, want ErrSwapRefused", err)
	}
	if res == nil || res.Skipped != 1 {
		t.Errorf("result = %+v, want 1 skipped", res)
	}
	after := catalog.Snapshot()
	if after.Checksum != before.Checksum || after.Index.Len() != 3 {
		t.Errorf("catalog swapped after partial scrape: %d stations", after.Index.Len())
	}
	if ord, ok := after.Index.StationToInternal("30"); !ok || ord != 2 {
		t.Errorf("ordinal of 30 = %d, %v; want 2", ord, ok)
	}
	if idx.indexed != 0 {
		t.Error("search reindexed after refused swap")
	}
	if _, sum, err := station.LoadGeoJSON(cfg.Dataset.GeoJSONPath); err != nil || sum != before.Checksum {
		t.Errorf("GeoJSON on disk rewritten: checksum %q, err %v", sum, err)
	}
	if st := s.Status(); st.FailureCount != 1 {
		t.Errorf("state = %+v", st)
	}

	res, err = s.RunNow(context.Background(), RunOptions{Force: true})
	if err != nil {
		t.Fatalf("forced RunNow: %v", err)
	}
	if res.Skipped != 1 || !res.LinksBroken || catalog.Snapshot().Index.Len() != 2 {
		t.Errorf("forced result = %+v", res)
	}
}

func TestRunNowRefusesShrinkingDataset(t *testing.T) {
	cfg := testConfig(t)
	catalog := station.NewCatalog()

	first := NewScheduler(cfg, catalog, scrapeOf(stationAt("10", "A"), stationAt("20", "B")), nil, nil)
	if _, err := first.RunNow(context.Background(), RunOptions{}); err != nil {
		t.Fatal(err)
	}

	second := NewScheduler(cfg, catalog, scrapeOf(stationAt("10", "A")), nil, nil)
	if _, err := second.RunNow(context.Background(), RunOptions{}); !errors.Is(err, ErrSwapRefused) {
		t.Fatalf("err = %v, want ErrSwapRefused", err)
	}
	if n := catalog.Snapshot().Index.Len(); n != 2 {
		t.Errorf("catalog has %d stations, want 2", n)
	}

	if _, err := second.RunNow(context.Background(), RunOptions{Force: true}); err != nil {
		t.Fatalf("forced RunNow: %v", err)
	}
	if n := catalog.Snapshot().Index.Len(); n != 1 {
		t.Errorf("catalog has %d stations after force, want 1", n)
	}
}

func TestRunNowEmptyScrape(t *testing.T) {
	cfg := testConfig(t)
	catalog := station.NewCatalog()
	s := NewScheduler(cfg, catalog, scrapeOf(), nil, nil)

	if _, err := s.RunNow(context.Background(), RunOptions{}); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("err = %v, want ErrEmptyDataset", err)
	}
	if catalog.Snapshot().Checksum != "" {
		t.Errorf("catalog replaced after failed refresh")
	}
	if st := s.Status(); st.FailureCount != 1 || st.LastError == "" {
		t.Errorf("state = %+v", st)
	}
}

func TestRunNowBlocked(t *testing.T) {
	cfg := testConfig(t)
	calls := 0
	scrape := func(ctx context.Context, emit func(models.Station) error) error {
		calls++
		return scraper.ErrBlocked
	}
	s := NewScheduler(cfg, station.NewCatalog(), scrape, nil, nil)
	now := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if _, err := s.RunNow(context.Background(), RunOptions{}); !errors.Is(err, scraper.ErrBlocked) {
		t.Fatalf("err = %v, want ErrBlocked", err)
	}
	if _, err := s.RunNow(context.Background(), RunOptions{}); !errors.Is(err, ErrCoolingDown) {
		t.Fatalf("err = %v, want ErrCoolingDown", err)
	}
	if calls != 1 {
		t.Errorf("scrape called %d times during cooldown", calls)
	}

	now = now.Add(blockedCooldown + time.Minute)
	if _, err := s.RunNow(context.Background(), RunOptions{}); !errors.Is(err, scraper.ErrBlocked) {
		t.Fatalf("err after cooldown = %v", err)
	}
	if calls != 2 {
		t.Errorf("scrape calls = %d, want 2", calls)
	}
}

func TestStartDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scraper.DailyRunEnabled = false
	s := NewScheduler(cfg, station.NewCatalog(), scrapeOf(), nil, nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if s.isRunning {
		t.Error("scheduler started while disabled")
	}
	s.Stop()
}
