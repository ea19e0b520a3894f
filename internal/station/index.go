// Package station maps public station identifiers to dense ordinals and
// reads and writes the station dataset files.
package station

import (
	"log"
	"strconv"

	"github.com/tk0miya/roadside-station-maps/internal/models"
)

// Index is a bidirectional stationId <-> internalId lookup built from one
// dataset snapshot. It is immutable once built.
type Index struct {
	toInternal map[string]int
	toStation  map[int]string
}

// NewIndex builds an Index from a snapshot. Features with an unusable
// internalId are skipped.
func NewIndex(fc *models.StationsGeoJSON) *Index {
	idx := &Index{
		toInternal: make(map[string]int),
		toStation:  make(map[int]string),
	}
	if fc == nil {
		return idx
	}

	for _, f := range fc.Features {
		p := f.Properties
		n, err := strconv.Atoi(p.InternalID)
		if err != nil || n < 0 {
			log.Printf("[Station] Warning: skipping station %q with invalid internalId %q", p.StationID, p.InternalID)
			continue
		}
		idx.toInternal[p.StationID] = n
		idx.toStation[n] = p.StationID
	}
	return idx
}

// StationToInternal returns the ordinal for a public station id
func (idx *Index) StationToInternal(stationID string) (int, bool) {
	n, ok := idx.toInternal[stationID]
	return n, ok
}

// InternalToStation returns the public station id for an ordinal
func (idx *Index) InternalToStation(ordinal int) (string, bool) {
	id, ok := idx.toStation[ordinal]
	return id, ok
}

// Len returns the number of indexed stations
func (idx *Index) Len() int {
	return len(idx.toInternal)
}

// Contains reports whether stationID is part of the snapshot
func (idx *Index) Contains(stationID string) bool {
	_, ok := idx.toInternal[stationID]
	return ok
}
