package models

// NoCoordinate marks a station whose map link could not be parsed
const NoCoordinate = "None"

// Station is one row of the scraped station list
type Station struct {
	PrefID    string `json:"prefId"`
	StationID string `json:"stationId"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Tel       string `json:"tel"`
	Hours     string `json:"hours"`
	URI       string `json:"uri"`
	Lat       string `json:"lat"`
	Lng       string `json:"lng"`
	Mapcode   string `json:"mapcode"`
}

// StationKey returns the public station identifier
func (s Station) StationKey() string {
	return s.StationID
}

// StationsGeoJSON is the published station dataset
type StationsGeoJSON struct {
	Type     string           `json:"type"`
	Features []StationFeature `json:"features"`
}

// StationFeature is a single station in the dataset
type StationFeature struct {
	Type       string            `json:"type"`
	Geometry   PointGeometry     `json:"geometry"`
	Properties StationProperties `json:"properties"`
}

// StationKey returns the public station identifier
func (f StationFeature) StationKey() string {
	return f.Properties.StationID
}

// PointGeometry holds [lng, lat]
type PointGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// StationProperties carries the per-station metadata
type StationProperties struct {
	PrefID     string `json:"prefId"`
	StationID  string `json:"stationId"`
	InternalID string `json:"internalId"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	Tel        string `json:"tel"`
	Hours      string `json:"hours"`
	URI        string `json:"uri"`
	Mapcode    string `json:"mapcode,omitempty"`
}
