package station

import (
	"sync"
	"time"

	"github.com/tk0miya/roadside-station-maps/internal/models"
)

// Catalog holds the dataset currently served, swapped atomically on refresh
type Catalog struct {
	mu        sync.RWMutex
	stations  *models.StationsGeoJSON
	index     *Index
	checksum  string
	updatedAt time.Time
}

// NewCatalog returns an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		stations: &models.StationsGeoJSON{Type: "FeatureCollection"},
		index:    NewIndex(nil),
	}
}

// Replace installs a new dataset
func (c *Catalog) Replace(fc *models.StationsGeoJSON, checksum string) {
	idx := NewIndex(fc)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stations = fc
	c.index = idx
	c.checksum = checksum
	c.updatedAt = time.Now()
}

// Dataset is one consistent view of the catalog
type Dataset struct {
	Stations  *models.StationsGeoJSON
	Index     *Index
	Checksum  string
	UpdatedAt time.Time
}

// Current returns the dataset and its index
func (c *Catalog) Current() (*models.StationsGeoJSON, *Index) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stations, c.index
}

// Snapshot returns the dataset, its index and checksum read together.
// Callers that key anything by checksum must use this.
func (c *Catalog) Snapshot() Dataset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Dataset{
		Stations:  c.stations,
		Index:     c.index,
		Checksum:  c.checksum,
		UpdatedAt: c.updatedAt,
	}
}
