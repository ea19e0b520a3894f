package storage

import (
	"sort"
	"strconv"
	"sync"

	"github.com/tk0miya/roadside-station-maps/internal/station"
)

// State is the lifecycle of a QueryStore
type State int

const (
	// Uninitialized has no payload and no snapshot
	Uninitialized State = iota
	// Pending holds a raw payload waiting for the snapshot
	Pending
	// Ready answers lookups
	Ready
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// QueryStore keeps styles as four in-memory sets of station ids, one per
// style 1..4. A station belongs to at most one set.
type QueryStore struct {
	mu      sync.RWMutex
	sets    [4]map[string]struct{}
	pending *Queries
	state   State
}

// NewQueryStore returns a store holding pending until SetStations is
// called. A nil pending gives an empty store.
func NewQueryStore(pending *Queries) *QueryStore {
	qs := &QueryStore{}
	qs.reset()
	if pending != nil {
		p := *pending
		qs.pending = &p
		qs.state = Pending
	}
	return qs
}

func (qs *QueryStore) reset() {
	for i := range qs.sets {
		qs.sets[i] = make(map[string]struct{})
	}
}

// State returns the current lifecycle state
func (qs *QueryStore) State() State {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	return qs.state
}

// SetStations makes the store Ready. A buffered payload is decoded
// against idx exactly once, replacing whatever the sets held.
func (qs *QueryStore) SetStations(idx *station.Index) {
	qs.mu.Lock()
	pending := qs.pending
	qs.pending = nil
	if pending == nil {
		qs.state = Ready
		qs.mu.Unlock()
		return
	}
	qs.mu.Unlock()

	groups := decodeGroups(idx, *pending)

	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.load(groups)
	qs.state = Ready
}

func (qs *QueryStore) load(groups [4][]string) {
	qs.reset()
	for i, ids := range groups {
		for _, id := range ids {
			qs.removeLocked(id)
			qs.sets[i][id] = struct{}{}
		}
	}
}

func (qs *QueryStore) GetItem(key string) (string, bool) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	if qs.state != Ready {
		return "", false
	}
	for i, set := range qs.sets {
		if _, ok := set[key]; ok {
			return strconv.Itoa(i + 1), true
		}
	}
	return "", false
}

func (qs *QueryStore) SetItem(key, value string) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.removeLocked(key)
	if g, ok := groupOf(value); ok {
		qs.sets[g][key] = struct{}{}
	}
}

func (qs *QueryStore) RemoveItem(key string) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.removeLocked(key)
}

func (qs *QueryStore) removeLocked(key string) {
	for _, set := range qs.sets {
		delete(set, key)
	}
}

// ListItems returns the members of sets 1..4 in that order
func (qs *QueryStore) ListItems() []string {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	if qs.state != Ready {
		return nil
	}
	var items []string
	for _, set := range qs.sets {
		keys := make([]string, 0, len(set))
		for k := range set {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })
		items = append(items, keys...)
	}
	return items
}

// Clone returns an independent copy in the same state
func (qs *QueryStore) Clone() *QueryStore {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	c := &QueryStore{state: qs.state}
	c.reset()
	for i, set := range qs.sets {
		for k := range set {
			c.sets[i][k] = struct{}{}
		}
	}
	if qs.pending != nil {
		p := *qs.pending
		c.pending = &p
	}
	return c
}

func lessKey(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

var (
	_ Store         = (*QueryStore)(nil)
	_ SnapshotAware = (*QueryStore)(nil)
)
