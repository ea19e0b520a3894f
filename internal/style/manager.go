package style

import (
	"errors"
	"log"
	"net/url"

	"github.com/tk0miya/roadside-station-maps/internal/models"
	"github.com/tk0miya/roadside-station-maps/internal/storage"
	"github.com/tk0miya/roadside-station-maps/internal/station"
)

// ErrStationsNotSet is returned by ToQuery before a snapshot is installed
var ErrStationsNotSet = errors.New("stations not set")

// Manager owns one Store and applies the style cycle to it
type Manager struct {
	store storage.Store
	index *station.Index
}

// NewManager returns a Manager over store
func NewManager(store storage.Store) *Manager {
	return &Manager{store: store}
}

// FromQuery picks the store for a request: a fresh QueryStore carrying the
// c1..c4 payload when mode=shared, otherwise private.
func FromQuery(params url.Values, private storage.Store) *Manager {
	if storage.IsShared(params) {
		q := storage.QueriesFromValues(params)
		return NewManager(storage.NewQueryStore(&q))
	}
	return NewManager(private)
}

// Store returns the underlying store
func (m *Manager) Store() storage.Store {
	return m.store
}

// Shared reports whether this manager works on a shared link
func (m *Manager) Shared() bool {
	_, ok := m.store.(*storage.QueryStore)
	return ok
}

// SetStations installs the station snapshot
func (m *Manager) SetStations(fc *models.StationsGeoJSON) {
	m.SetIndex(station.NewIndex(fc))
}

// SetIndex installs a prebuilt snapshot index
func (m *Manager) SetIndex(idx *station.Index) {
	m.index = idx
	if aware, ok := m.store.(storage.SnapshotAware); ok {
		aware.SetStations(idx)
	}
}

// GetStyle returns the current style of ref
func (m *Manager) GetStyle(ref StationRef) Style {
	value, ok := m.store.GetItem(resolve(ref))
	if !ok {
		return Unvisited
	}
	return Parse(value)
}

// ChangeStyle advances ref to the next style and returns it
func (m *Manager) ChangeStyle(ref StationRef) Style {
	key := resolve(ref)
	next := m.GetStyle(ref).Next()
	if next == Unvisited {
		m.store.RemoveItem(key)
	} else {
		m.store.SetItem(key, next.String())
	}
	return next
}

// ResetStyle clears ref back to Unvisited
func (m *Manager) ResetStyle(ref StationRef) Style {
	m.store.RemoveItem(resolve(ref))
	return Unvisited
}

// Styles returns every stored station with its style
func (m *Manager) Styles() map[string]Style {
	out := make(map[string]Style)
	for key, value := range storage.Items(m.store) {
		if s := Parse(value); s != Unvisited {
			out[key] = s
		}
	}
	return out
}

// CountByStyle tallies styles across total stations. Stations without an
// entry count as Unvisited.
func (m *Manager) CountByStyle(total int) map[Style]int {
	counts := make(map[Style]int, NumStyles)
	for _, s := range Styles {
		counts[s] = 0
	}

	visited := 0
	for _, value := range storage.Items(m.store) {
		s := Parse(value)
		if s == Unvisited {
			continue
		}
		counts[s]++
		visited++
	}

	unvisited := total - visited
	if unvisited < 0 {
		log.Printf("[Style] Warning: %d styled stations exceed total %d", visited, total)
		unvisited = 0
	}
	counts[Unvisited] = unvisited
	return counts
}

// ToQuery serializes the current state for a shared link
func (m *Manager) ToQuery() (storage.Queries, error) {
	if m.index == nil {
		return storage.Queries{}, ErrStationsNotSet
	}
	return storage.Serialize(m.store, m.index), nil
}
