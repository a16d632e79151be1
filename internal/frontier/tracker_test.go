package frontier

import (
	"testing"

	"github.com/coordinatordb/coord/internal/types"
)

func w(ms uint64) *uint64 { return &ms }

func TestDeriveCompactionFrontier(t *testing.T) {
	cases := []struct {
		name    string
		upper   types.Antichain
		window  uint64
		want    types.Antichain
	}{
		{"empty upper never compacts", types.EmptyAntichain(), 100, types.EmptyAntichain()},
		{"rounds down to window multiple", types.AntichainFromElem(120), 100, types.AntichainFromElem(0)},
		{"exact multiple stays put minus window", types.AntichainFromElem(300), 100, types.AntichainFromElem(200)},
		{"saturating subtract below zero", types.AntichainFromElem(50), 100, types.AntichainFromElem(0)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := DeriveCompactionFrontier(c.upper, c.window)
			if got.String() != c.want.String() {
				t.Errorf("DeriveCompactionFrontier(%v, %d) = %v, want %v", c.upper, c.window, got, c.want)
			}
		})
	}
}

func TestDeriveCompactionFrontierIdempotent(t *testing.T) {
	upper := types.AntichainFromElem(357)
	first := DeriveCompactionFrontier(upper, 100)
	second := DeriveCompactionFrontier(upper, 100)
	if first.String() != second.String() {
		t.Errorf("compaction derivation is not idempotent: %v != %v", first, second)
	}
}

func TestUpdateUpperDerivesSince(t *testing.T) {
	tr := NewTracker()
	id := types.UserID(1)
	tr.Insert(id, types.Frontiers{
		Upper:              types.AntichainFromElem(10),
		Since:              types.EmptyAntichain(),
		CompactionWindowMs: w(100),
	})

	changed := tr.UpdateUpper(id, types.NewChangeBatch(types.ChangeDelta{Time: 120, Count: 1}))
	if len(changed) != 1 || changed[0] != 120 {
		t.Fatalf("expected upper to advance to 120, got %v", changed)
	}

	since, ok := tr.SinceOf(id)
	if !ok {
		t.Fatal("expected since to be tracked")
	}
	if elem, has := since.Element(); !has || elem != 0 {
		t.Errorf("expected since {0}, got %v", since)
	}

	changed = tr.UpdateUpper(id, types.NewChangeBatch(types.ChangeDelta{Time: 250, Count: 1}))
	if len(changed) != 1 || changed[0] != 250 {
		t.Fatalf("expected upper to advance to 250, got %v", changed)
	}
	since, _ = tr.SinceOf(id)
	if elem, has := since.Element(); !has || elem != 100 {
		t.Errorf("expected since {100} after advancing to 250 with window 100, got %v", since)
	}
}

func TestUpdateUpperEmptyNeverCompacts(t *testing.T) {
	tr := NewTracker()
	id := types.UserID(1)
	tr.Insert(id, types.Frontiers{
		Upper:              types.AntichainFromElem(1000),
		Since:              types.AntichainFromElem(900),
		CompactionWindowMs: w(100),
	})

	// ApplyToFrontier only moves an upper forward and never empties it, so
	// the emptied upper is written into the tracker's record directly and
	// DeriveCompactionFrontier is checked against an empty upper.
	tr.indexes[id] = types.Frontiers{
		Upper:              types.EmptyAntichain(),
		Since:              types.AntichainFromElem(900),
		CompactionWindowMs: w(100),
	}
	got := DeriveCompactionFrontier(types.EmptyAntichain(), 100)
	if !got.IsEmpty() {
		t.Errorf("expected empty upper to never compact, got %v", got)
	}
}

func TestLeastValidSinceAndGreatestOpenUpper(t *testing.T) {
	tr := NewTracker()
	a, b := types.UserID(1), types.UserID(2)
	tr.Insert(a, types.Frontiers{Upper: types.AntichainFromElem(50), Since: types.AntichainFromElem(10)})
	tr.Insert(b, types.Frontiers{Upper: types.AntichainFromElem(80), Since: types.AntichainFromElem(30)})

	since := tr.LeastValidSince([]types.GlobalId{a, b})
	if elem, _ := since.Element(); elem != 10 {
		t.Errorf("expected least_valid_since=10, got %v", since)
	}

	upper := tr.GreatestOpenUpper([]types.GlobalId{a, b})
	if elem, _ := upper.Element(); elem != 80 {
		t.Errorf("expected greatest_open_upper=80, got %v", upper)
	}
}

func TestInsertRemove(t *testing.T) {
	tr := NewTracker()
	id := types.UserID(5)
	tr.Insert(id, types.Frontiers{Upper: types.AntichainFromElem(1), Since: types.EmptyAntichain()})

	if _, ok := tr.UpperOf(id); !ok {
		t.Fatal("expected id to be tracked after Insert")
	}

	removed, ok := tr.Remove(id)
	if !ok {
		t.Fatal("expected Remove to report the previous record")
	}
	if elem, _ := removed.Upper.Element(); elem != 1 {
		t.Errorf("unexpected removed record: %v", removed)
	}

	if _, ok := tr.UpperOf(id); ok {
		t.Error("expected id to be untracked after Remove")
	}
}
