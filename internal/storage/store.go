// Package storage keeps per-station style values either durably, per
// profile, or in memory as four ordinal sets that travel in a URL.
package storage

import (
	"regexp"

	"github.com/tk0miya/roadside-station-maps/internal/station"
)

// Store is the key/value contract shared by both store variants.
// Keys are station ids and values are the style digits "1".."4".
// Nothing here reports errors: failures degrade to absent or no-op.
type Store interface {
	GetItem(key string) (string, bool)
	SetItem(key, value string)
	RemoveItem(key string)
	ListItems() []string
}

// ItemSource is implemented by stores that can return every entry with
// its value in one pass
type ItemSource interface {
	Items() map[string]string
}

// Items returns the station entries of store keyed by station id
func Items(store Store) map[string]string {
	if src, ok := store.(ItemSource); ok {
		return src.Items()
	}
	out := make(map[string]string)
	for _, key := range store.ListItems() {
		if value, ok := store.GetItem(key); ok {
			out[key] = value
		}
	}
	return out
}

// SnapshotAware is implemented by stores that need the station snapshot
// before they can answer lookups.
type SnapshotAware interface {
	SetStations(idx *station.Index)
}

var stationKeyPattern = regexp.MustCompile(`^\d+$`)

// IsStationKey reports whether key looks like a station id
func IsStationKey(key string) bool {
	return stationKeyPattern.MatchString(key)
}

// groupOf maps a stored value to its set index 0..3
func groupOf(value string) (int, bool) {
	if len(value) != 1 || value[0] < '1' || value[0] > '4' {
		return 0, false
	}
	return int(value[0] - '1'), true
}

// IsStoredValue reports whether value is one of "1".."4"
func IsStoredValue(value string) bool {
	_, ok := groupOf(value)
	return ok
}
