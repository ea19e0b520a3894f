package station

import "testing"

func TestIndexLookup(t *testing.T) {
	idx := NewIndex(SnapshotOf("18786", "18787", "18788"))

	if idx.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", idx.Len())
	}

	tests := []struct {
		stationID string
		ordinal   int
	}{
		{"18786", 0},
		{"18787", 1},
		{"18788", 2},
	}
	for _, tt := range tests {
		t.Run(tt.stationID, func(t *testing.T) {
			n, ok := idx.StationToInternal(tt.stationID)
			if !ok || n != tt.ordinal {
				t.Errorf("StationToInternal(%q) = %d, %v; want %d, true", tt.stationID, n, ok, tt.ordinal)
			}
			id, ok := idx.InternalToStation(tt.ordinal)
			if !ok || id != tt.stationID {
				t.Errorf("InternalToStation(%d) = %q, %v; want %q, true", tt.ordinal, id, ok, tt.stationID)
			}
		})
	}
}

func TestIndexAbsent(t *testing.T) {
	idx := NewIndex(SnapshotOf("18786"))

	if _, ok := idx.StationToInternal("99999"); ok {
		t.Error("unknown station should be absent")
	}
	if _, ok := idx.InternalToStation(5); ok {
		t.Error("unknown ordinal should be absent")
	}
	if idx.Contains("99999") {
		t.Error("Contains should be false for unknown station")
	}
}

func TestIndexSkipsInvalidInternalID(t *testing.T) {
	fc := SnapshotOf("1", "2")
	fc.Features[1].Properties.InternalID = "x"

	idx := NewIndex(fc)
	if idx.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", idx.Len())
	}
	if _, ok := idx.StationToInternal("2"); ok {
		t.Error("station with invalid internalId should be skipped")
	}
}

func TestIndexNilSnapshot(t *testing.T) {
	idx := NewIndex(nil)
	if idx.Len() != 0 {
		t.Errorf("Len() = %d, want 0", idx.Len())
	}
}

func TestCatalogReplace(t *testing.T) {
	c := NewCatalog()
	fc, idx := c.Current()
	if len(fc.Features) != 0 || idx.Len() != 0 {
		t.Fatal("new catalog should be empty")
	}

	c.Replace(SnapshotOf("100", "200"), "abc")
	fc, idx = c.Current()
	if len(fc.Features) != 2 || idx.Len() != 2 {
		t.Errorf("after Replace got %d features, %d indexed", len(fc.Features), idx.Len())
	}
	ds := c.Snapshot()
	if ds.Checksum != "abc" {
		t.Errorf("Checksum = %q", ds.Checksum)
	}
	if ds.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}
	if ds.Index != idx || ds.Stations != fc {
		t.Error("Snapshot should return the installed dataset")
	}
}

func TestCatalogSnapshotConsistentDuringReplace(t *testing.T) {
	c := NewCatalog()
	c.Replace(SnapshotOf("100"), "v1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				c.Replace(SnapshotOf("100", "200"), "v2")
			} else {
				c.Replace(SnapshotOf("100"), "v1")
			}
		}
	}()

	for i := 0; i < 200; i++ {
		ds := c.Snapshot()
		want := map[string]int{"v1": 1, "v2": 2}[ds.Checksum]
		if ds.Index.Len() != want || len(ds.Stations.Features) != want {
			t.Fatalf("checksum %s paired with %d stations", ds.Checksum, ds.Index.Len())
		}
	}
	<-done
}
