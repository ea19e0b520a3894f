package station

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tk0miya/roadside-station-maps/internal/models"
)

func sampleStations() []models.Station {
	return []models.Station{
		{PrefID: "2", StationID: "120", Name: "B", Lat: "40.1", Lng: "140.2", Mapcode: "1 2*3"},
		{PrefID: "1", StationID: "9", Name: "A", Lat: "43.0", Lng: "141.3"},
		{PrefID: "1", StationID: "15", Name: "NoGeo", Lat: "None", Lng: "None"},
		{PrefID: "3", StationID: "33", Name: "Broken", Lat: "abc", Lng: "141.0"},
		{PrefID: "3", StationID: "100", Name: "C", Lat: "39.5", Lng: "141.1"},
	}
}

func TestBuildGeoJSON(t *testing.T) {
	fc := BuildGeoJSON(sampleStations())

	if fc.Type != "FeatureCollection" {
		t.Errorf("Type = %q", fc.Type)
	}
	if len(fc.Features) != 3 {
		t.Fatalf("got %d features, want 3", len(fc.Features))
	}

	wantOrder := []string{"9", "100", "120"}
	for i, want := range wantOrder {
		p := fc.Features[i].Properties
		if p.StationID != want {
			t.Errorf("feature %d stationId = %q, want %q", i, p.StationID, want)
		}
		if p.InternalID != []string{"0", "1", "2"}[i] {
			t.Errorf("feature %d internalId = %q", i, p.InternalID)
		}
	}

	g := fc.Features[0].Geometry
	if g.Type != "Point" || g.Coordinates != [2]float64{141.3, 43.0} {
		t.Errorf("geometry = %+v, want [lng, lat]", g)
	}
	if fc.Features[2].Properties.Mapcode != "1 2*3" {
		t.Errorf("mapcode not carried: %q", fc.Features[2].Properties.Mapcode)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.csv")
	in := sampleStations()

	if err := WriteCSV(path, in); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	out, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d rows, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("row %d = %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestLoadCSVToleratesShortRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.csv")
	content := "1\t9\tA\taddr\ttel\thours\turi\t43.0\t141.3\n" +
		"too\tshort\n" +
		"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d rows, want 1", len(out))
	}
	if out[0].Mapcode != "" {
		t.Errorf("missing mapcode column should be empty, got %q", out[0].Mapcode)
	}
}

func TestGeoJSONFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.geojson")
	fc := BuildGeoJSON(sampleStations())

	sum, err := WriteGeoJSON(path, fc)
	if err != nil {
		t.Fatalf("WriteGeoJSON: %v", err)
	}
	if len(sum) != 64 {
		t.Errorf("checksum length = %d", len(sum))
	}

	loaded, loadedSum, err := LoadGeoJSON(path)
	if err != nil {
		t.Fatalf("LoadGeoJSON: %v", err)
	}
	if loadedSum != sum {
		t.Errorf("checksum mismatch: %s vs %s", loadedSum, sum)
	}
	if len(loaded.Features) != len(fc.Features) {
		t.Fatalf("got %d features", len(loaded.Features))
	}
	if loaded.Features[1].Properties != fc.Features[1].Properties {
		t.Errorf("properties differ after reload")
	}
}

func TestLoadGeoJSONMissingFile(t *testing.T) {
	if _, _, err := LoadGeoJSON(filepath.Join(t.TempDir(), "nope.geojson")); err == nil {
		t.Error("expected error for missing file")
	}
}
