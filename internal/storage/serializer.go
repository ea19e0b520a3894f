package storage

import (
	"log"
	"net/url"

	"github.com/RoaringBitmap/roaring"

	"github.com/tk0miya/roadside-station-maps/internal/bitmap"
	"github.com/tk0miya/roadside-station-maps/internal/metrics"
	"github.com/tk0miya/roadside-station-maps/internal/station"
)

const (
	// ModeParam is the query parameter selecting the store variant
	ModeParam = "mode"
	// ModeShared selects the QueryStore
	ModeShared = "shared"
)

// Queries is the shareable form of a store: one encoded ordinal set per
// style 1..4.
type Queries struct {
	C1 string `json:"c1"`
	C2 string `json:"c2"`
	C3 string `json:"c3"`
	C4 string `json:"c4"`
}

func (q Queries) groups() [4]string {
	return [4]string{q.C1, q.C2, q.C3, q.C4}
}

// IsShared reports whether params ask for the shared view
func IsShared(params url.Values) bool {
	return params.Get(ModeParam) == ModeShared
}

// QueriesFromValues reads c1..c4 from query parameters
func QueriesFromValues(params url.Values) Queries {
	return Queries{
		C1: params.Get("c1"),
		C2: params.Get("c2"),
		C3: params.Get("c3"),
		C4: params.Get("c4"),
	}
}

// Values renders the payload as query parameters with mode=shared
func (q Queries) Values() url.Values {
	v := url.Values{}
	v.Set("c1", q.C1)
	v.Set("c2", q.C2)
	v.Set("c3", q.C3)
	v.Set("c4", q.C4)
	v.Set(ModeParam, ModeShared)
	return v
}

// Serialize groups the store's stations by style and encodes each group.
// Stations missing from idx are skipped.
func Serialize(store Store, idx *station.Index) Queries {
	var sets [4]*roaring.Bitmap
	for i := range sets {
		sets[i] = roaring.New()
	}

	for key, value := range Items(store) {
		g, ok := groupOf(value)
		if !ok {
			continue
		}
		ordinal, ok := idx.StationToInternal(key)
		if !ok {
			continue
		}
		sets[g].Add(uint32(ordinal))
	}

	return Queries{
		C1: bitmap.EncodeOrdinals(sets[0]),
		C2: bitmap.EncodeOrdinals(sets[1]),
		C3: bitmap.EncodeOrdinals(sets[2]),
		C4: bitmap.EncodeOrdinals(sets[3]),
	}
}

// Deserialize replaces the contents of store with the decoded payload and
// leaves it Ready. Any buffered payload is discarded.
func Deserialize(store *QueryStore, idx *station.Index, q Queries) {
	groups := decodeGroups(idx, q)

	store.mu.Lock()
	defer store.mu.Unlock()
	store.load(groups)
	store.pending = nil
	store.state = Ready
}

// decodeGroups turns each encoded group into station ids. Malformed
// groups decode as empty. Ordinals outside idx are dropped.
func decodeGroups(idx *station.Index, q Queries) [4][]string {
	var out [4][]string
	for i, text := range q.groups() {
		set, err := bitmap.Decode(text)
		if err != nil {
			metrics.DecodeFailuresTotal.Inc()
			log.Printf("[Storage] Warning: ignoring malformed c%d: %v", i+1, err)
			continue
		}
		it := set.Iterator()
		for it.HasNext() {
			id, ok := idx.InternalToStation(int(it.Next()))
			if !ok {
				continue
			}
			out[i] = append(out[i], id)
		}
	}
	return out
}
