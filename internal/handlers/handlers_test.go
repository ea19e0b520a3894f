package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tk0miya/roadside-station-maps/internal/cleanup"
	"github.com/tk0miya/roadside-station-maps/internal/config"
	"github.com/tk0miya/roadside-station-maps/internal/models"
	"github.com/tk0miya/roadside-station-maps/internal/ratelimit"
	"github.com/tk0miya/roadside-station-maps/internal/scheduler"
	"github.com/tk0miya/roadside-station-maps/internal/station"
	"github.com/tk0miya/roadside-station-maps/internal/storage"
)

const testProfile = "6f1c1f5e-8a5e-4b7a-9d2a-3c1e2b4f5a60"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router  *gin.Engine
	backend *storage.MemoryBackend
	catalog *station.Catalog
}

func newTestServer(t *testing.T, fc *models.StationsGeoJSON) *testServer {
	t.Helper()
	cfg := config.DefaultConfig()
	backend := storage.NewMemoryBackend()
	catalog := station.NewCatalog()
	catalog.Replace(fc, "checksum-1")

	styles := NewStyleHandler(backend, catalog, cfg)
	stations := NewStationHandler(catalog, nil)
	rl := ratelimit.NewRateLimiter(0, 0, 0, false)
	admin := NewAdminHandler(catalog, nil, nil, cleanup.NewService(backend, nil), nil, rl, 0)

	r := gin.New()
	r.GET("/api/stations", stations.GetStations)
	r.GET("/api/stations/search", stations.SearchStations)
	r.POST("/api/profiles", styles.CreateProfile)
	r.GET("/api/styles", styles.GetStyles)
	r.GET("/api/styles/:stationId", styles.GetStyle)
	r.POST("/api/styles/:stationId/change", styles.ChangeStyle)
	r.DELETE("/api/styles/:stationId", styles.ResetStyle)
	r.GET("/api/counts", styles.GetCounts)
	r.GET("/api/share", styles.GetShareLink)
	r.GET("/api/admin/snapshots", admin.GetSnapshots)
	r.POST("/api/admin/cleanup", admin.RunCleanup)

	return &testServer{router: r, backend: backend, catalog: catalog}
}

func (s *testServer) do(t *testing.T, method, target string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: bad JSON %q: %v", method, target, w.Body.String(), err)
		}
	}
	return w.Code
}

type styleResponse struct {
	StationID string `json:"stationId"`
	Style     int    `json:"style"`
	Icon      struct {
		URL string `json:"url"`
	} `json:"icon"`
}

type stylesResponse struct {
	Styles map[string]int `json:"styles"`
	Counts map[string]int `json:"counts"`
	Shared bool           `json:"shared"`
	Total  int            `json:"total"`
}

func TestCreateProfile(t *testing.T) {
	s := newTestServer(t, station.SnapshotOf("18786"))
	var body struct {
		Profile string `json:"profile"`
	}
	if code := s.do(t, http.MethodPost, "/api/profiles", &body); code != http.StatusCreated {
		t.Fatalf("status = %d", code)
	}
	if _, err := uuid.Parse(body.Profile); err != nil {
		t.Errorf("profile %q is not a UUID: %v", body.Profile, err)
	}
}

func TestProfileValidation(t *testing.T) {
	s := newTestServer(t, station.SnapshotOf("18786"))
	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"missing", "/api/styles", http.StatusBadRequest},
		{"not a uuid", "/api/styles?profile=alice", http.StatusBadRequest},
		{"valid", "/api/styles?profile=" + testProfile, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := s.do(t, http.MethodGet, tt.target, nil); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestChangeStyleCycles(t *testing.T) {
	s := newTestServer(t, station.SnapshotOf("18786", "18787", "18788"))
	target := "/api/styles/18787/change?profile=" + testProfile

	for _, want := range []int{1, 2, 3, 4, 0} {
		var res styleResponse
		if code := s.do(t, http.MethodPost, target, &res); code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		if res.Style != want {
			t.Errorf("style = %d, want %d", res.Style, want)
		}
		if res.Icon.URL == "" {
			t.Error("missing icon")
		}
	}

	keys, _ := s.backend.Keys(context.Background(), testProfile)
	if len(keys) != 0 {
		t.Errorf("entry left after wrapping to unvisited: %v", keys)
	}
}

func TestStylesAndCounts(t *testing.T) {
	s := newTestServer(t, station.SnapshotOf("18786", "18787", "18788"))
	s.do(t, http.MethodPost, "/api/styles/18786/change?profile="+testProfile, nil)
	s.do(t, http.MethodPost, "/api/styles/18788/change?profile="+testProfile, nil)
	s.do(t, http.MethodPost, "/api/styles/18788/change?profile="+testProfile, nil)

	var res stylesResponse
	if code := s.do(t, http.MethodGet, "/api/styles?profile="+testProfile, &res); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if res.Shared || res.Total != 3 {
		t.Errorf("shared = %v, total = %d", res.Shared, res.Total)
	}
	if len(res.Styles) != 2 || res.Styles["18786"] != 1 || res.Styles["18788"] != 2 {
		t.Errorf("styles = %v", res.Styles)
	}
	want := map[string]int{"0": 1, "1": 1, "2": 1, "3": 0, "4": 0}
	for k, v := range want {
		if res.Counts[k] != v {
			t.Errorf("counts[%s] = %d, want %d", k, res.Counts[k], v)
		}
	}

	var one styleResponse
	s.do(t, http.MethodGet, "/api/styles/18788?profile="+testProfile, &one)
	if one.Style != 2 {
		t.Errorf("GET style = %d, want 2", one.Style)
	}

	var reset styleResponse
	if code := s.do(t, http.MethodDelete, "/api/styles/18788?profile="+testProfile, &reset); code != http.StatusOK || reset.Style != 0 {
		t.Errorf("reset status = %d, style = %d", code, reset.Style)
	}
}

func TestUnknownStation(t *testing.T) {
	s := newTestServer(t, station.SnapshotOf("18786"))
	if code := s.do(t, http.MethodPost, "/api/styles/99999/change?profile="+testProfile, nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestShareLinkRoundTrip(t *testing.T) {
	s := newTestServer(t, station.SnapshotOf("18786", "18787", "18788"))
	s.do(t, http.MethodPost, "/api/styles/18786/change?profile="+testProfile, nil)

	var share struct {
		Queries storage.Queries `json:"queries"`
		URL     string          `json:"url"`
	}
	if code := s.do(t, http.MethodGet, "/api/share?profile="+testProfile, &share); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if share.Queries.C1 != "AQ" || share.Queries.C2 != "" {
		t.Errorf("queries = %+v", share.Queries)
	}
	if want := "http://localhost:3000/?c1=AQ&c2=&c3=&c4=&mode=shared"; share.URL != want {
		t.Errorf("url = %q, want %q", share.URL, want)
	}

	shared := "/api/styles?mode=shared&c1=AQ&c2=&c3=&c4="
	for i := 0; i < 2; i++ {
		var res stylesResponse
		if code := s.do(t, http.MethodGet, shared, &res); code != http.StatusOK {
			t.Fatalf("shared status = %d", code)
		}
		if !res.Shared || len(res.Styles) != 1 || res.Styles["18786"] != 1 {
			t.Errorf("request %d: shared styles = %+v", i, res)
		}
	}
}

func TestSharedLinkFollowsDatasetSwap(t *testing.T) {
	s := newTestServer(t, station.SnapshotOf("18786", "18787"))
	shared := "/api/styles?mode=shared&c1=AQ"

	var before stylesResponse
	s.do(t, http.MethodGet, shared, &before)
	if len(before.Styles) != 1 || before.Styles["18786"] != 1 {
		t.Fatalf("before swap = %+v", before.Styles)
	}

	s.catalog.Replace(station.SnapshotOf("18700", "18786"), "checksum-2")

	var after stylesResponse
	s.do(t, http.MethodGet, shared, &after)
	if len(after.Styles) != 1 || after.Styles["18700"] != 1 {
		t.Errorf("after swap = %+v, want ordinal 0 decoded against the new dataset", after.Styles)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stations", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var body models.StationsGeoJSON
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if w.Header().Get("ETag") != `"checksum-2"` || body.Features[0].Properties.StationID != "18700" {
		t.Errorf("etag %q served with first station %s", w.Header().Get("ETag"), body.Features[0].Properties.StationID)
	}
}

func TestShareLinkKeepsSharedBase(t *testing.T) {
	s := newTestServer(t, station.SnapshotOf("18786"))
	base := "http://example.com/?mode=shared&c1=AQ"
	var share struct {
		URL string `json:"url"`
	}
	s.do(t, http.MethodGet, "/api/share?profile="+testProfile+"&base="+url.QueryEscape(base), &share)
	if share.URL != base {
		t.Errorf("url = %q, want %q", share.URL, base)
	}
}

func TestSharedViewIsReadOnly(t *testing.T) {
	s := newTestServer(t, station.SnapshotOf("18786"))
	for _, method := range []string{http.MethodPost, http.MethodDelete} {
		target := "/api/styles/18786?mode=shared&c1=AQ"
		if method == http.MethodPost {
			target = "/api/styles/18786/change?mode=shared&c1=AQ"
		}
		if code := s.do(t, method, target, nil); code != http.StatusForbidden {
			t.Errorf("%s status = %d, want 403", method, code)
		}
	}
}

func TestSharedMalformedPayload(t *testing.T) {
	s := newTestServer(t, station.SnapshotOf("18786"))
	var res stylesResponse
	if code := s.do(t, http.MethodGet, "/api/styles?mode=shared&c1=%21%21", &res); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(res.Styles) != 0 || res.Counts["0"] != 1 {
		t.Errorf("malformed payload decoded to %+v", res)
	}
}

func TestSearchScansDataset(t *testing.T) {
	fc := station.BuildGeoJSON([]models.Station{
		{PrefID: "01", StationID: "10", Name: "しかべ間歇泉公園", Address: "北海道茅部郡鹿部町", Lat: "42.0", Lng: "140.8"},
		{PrefID: "02", StationID: "20", Name: "なみおか", Address: "青森県青森市", Lat: "40.7", Lng: "140.5"},
	})
	s := newTestServer(t, fc)

	tests := []struct {
		target string
		want   []string
	}{
		{"/api/stations/search?q=" + url.QueryEscape("青森"), []string{"20"}},
		{"/api/stations/search?q=" + url.QueryEscape("公園"), []string{"10"}},
		{"/api/stations/search?pref=01,02", []string{"10", "20"}},
		{"/api/stations/search?pref=02&q=" + url.QueryEscape("公園"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			var res struct {
				Hits []struct {
					StationID string `json:"stationId"`
				} `json:"hits"`
			}
			if code := s.do(t, http.MethodGet, tt.target, &res); code != http.StatusOK {
				t.Fatalf("status = %d", code)
			}
			if len(res.Hits) != len(tt.want) {
				t.Fatalf("hits = %+v, want %v", res.Hits, tt.want)
			}
			for i, id := range tt.want {
				if res.Hits[i].StationID != id {
					t.Errorf("hit %d = %s, want %s", i, res.Hits[i].StationID, id)
				}
			}
		})
	}
}

func TestGetStationsETag(t *testing.T) {
	s := newTestServer(t, station.SnapshotOf("18786"))

	req := httptest.NewRequest(http.MethodGet, "/api/stations", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("ETag") != `"checksum-1"` {
		t.Fatalf("status = %d, etag = %q", w.Code, w.Header().Get("ETag"))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/stations", nil)
	req.Header.Set("If-None-Match", `"checksum-1"`)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("status = %d, want 304", w.Code)
	}
}

func TestAdminCleanup(t *testing.T) {
	s := newTestServer(t, station.SnapshotOf("18786"))
	ctx := context.Background()
	s.backend.Set(ctx, testProfile, "18786", "1")
	s.backend.Set(ctx, testProfile, "55555", "2")

	var dry cleanup.CleanupResult
	if code := s.do(t, http.MethodPost, "/api/admin/cleanup", &dry); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !dry.DryRun || dry.TargetCount != 1 {
		t.Errorf("dry run result = %+v", dry)
	}
	if _, ok, _ := s.backend.Get(ctx, testProfile, "55555"); !ok {
		t.Error("dry run deleted an entry")
	}

	var res cleanup.CleanupResult
	if code := s.do(t, http.MethodPost, "/api/admin/cleanup?dry_run=false&profile="+testProfile, &res); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if res.DeletedCount != 1 {
		t.Errorf("result = %+v", res)
	}
	if _, ok, _ := s.backend.Get(ctx, testProfile, "55555"); ok {
		t.Error("stale entry survived cleanup")
	}
	if _, ok, _ := s.backend.Get(ctx, testProfile, "18786"); !ok {
		t.Error("live entry removed")
	}
}

func TestAdminSnapshotsUnavailable(t *testing.T) {
	s := newTestServer(t, station.SnapshotOf("18786"))
	if code := s.do(t, http.MethodGet, "/api/admin/snapshots", nil); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := ratelimit.NewRateLimiter(2, 0, 0, true)
	r := gin.New()
	r.POST("/x", RateLimit(rl), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
		codes[i] = w.Code
	}
	want := []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d status = %d, want %d", i, codes[i], want[i])
		}
	}
}

func TestTriggerRefreshForce(t *testing.T) {
	catalog := station.NewCatalog()
	scraped := make(chan struct{}, 1)
	sched := scheduler.NewScheduler(config.DefaultConfig(), catalog,
		func(ctx context.Context, emit func(models.Station) error) error {
			scraped <- struct{}{}
			return errors.New("offline")
		}, nil, nil)
	admin := NewAdminHandler(catalog, sched, nil, nil, nil, ratelimit.NewRateLimiter(0, 0, 0, false), 0)

	r := gin.New()
	r.POST("/api/admin/refresh", admin.TriggerRefresh)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/refresh?force=true", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Force bool `json:"force"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || !body.Force {
		t.Errorf("body = %s, err = %v", w.Body.String(), err)
	}
	<-scraped
}
