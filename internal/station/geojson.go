package station

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/tk0miya/roadside-station-maps/internal/models"
)

// BuildGeoJSON converts scraped stations into the published dataset.
// Stations without coordinates are dropped, the rest are ordered by
// stationId and numbered 0..n-1.
func BuildGeoJSON(stations []models.Station) *models.StationsGeoJSON {
	type located struct {
		station  models.Station
		lat, lng float64
	}

	var rows []located
	for _, s := range stations {
		lat, okLat := parseCoordinate(s.Lat)
		lng, okLng := parseCoordinate(s.Lng)
		if !okLat || !okLng {
			continue
		}
		rows = append(rows, located{station: s, lat: lat, lng: lng})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return lessStationID(rows[i].station.StationID, rows[j].station.StationID)
	})

	fc := &models.StationsGeoJSON{
		Type:     "FeatureCollection",
		Features: make([]models.StationFeature, 0, len(rows)),
	}
	for i, r := range rows {
		s := r.station
		fc.Features = append(fc.Features, models.StationFeature{
			Type: "Feature",
			Geometry: models.PointGeometry{
				Type:        "Point",
				Coordinates: [2]float64{r.lng, r.lat},
			},
			Properties: models.StationProperties{
				PrefID:     s.PrefID,
				StationID:  s.StationID,
				InternalID: strconv.Itoa(i),
				Name:       s.Name,
				Address:    s.Address,
				Tel:        s.Tel,
				Hours:      s.Hours,
				URI:        s.URI,
				Mapcode:    s.Mapcode,
			},
		})
	}
	return fc
}

func parseCoordinate(v string) (float64, bool) {
	if v == "" || v == models.NoCoordinate {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func lessStationID(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

// EncodeGeoJSON marshals the dataset without HTML escaping
func EncodeGeoJSON(fc *models.StationsGeoJSON) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fc); err != nil {
		return nil, fmt.Errorf("failed to encode geojson: %w", err)
	}
	return buf.Bytes(), nil
}

// Checksum returns the hex sha256 of data
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// WriteGeoJSON writes the dataset to path and returns its checksum
func WriteGeoJSON(path string, fc *models.StationsGeoJSON) (string, error) {
	data, err := EncodeGeoJSON(fc)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write geojson: %w", err)
	}
	return Checksum(data), nil
}

// LoadGeoJSON reads a dataset and returns it with its checksum
func LoadGeoJSON(path string) (*models.StationsGeoJSON, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read geojson: %w", err)
	}
	var fc models.StationsGeoJSON
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, "", fmt.Errorf("failed to parse geojson: %w", err)
	}
	return &fc, Checksum(data), nil
}

// SnapshotOf builds a coordinate-less dataset whose ordinals follow the
// order of ids.
func SnapshotOf(ids ...string) *models.StationsGeoJSON {
	fc := &models.StationsGeoJSON{Type: "FeatureCollection"}
	for i, id := range ids {
		fc.Features = append(fc.Features, models.StationFeature{
			Type:     "Feature",
			Geometry: models.PointGeometry{Type: "Point"},
			Properties: models.StationProperties{
				StationID:  id,
				InternalID: strconv.Itoa(i),
			},
		})
	}
	return fc
}
