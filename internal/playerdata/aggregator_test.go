package playerdata

import (
	"testing"

	"github.com/sorayoru/reliquary/internal/model"
)

func TestProcessItemsReplacesWholesale(t *testing.T) {
	agg := NewAggregator()
	agg.ProcessItems([]model.ItemRecord{{ItemID: 1}, {ItemID: 2}, {ItemID: 3}})
	agg.ProcessItems([]model.ItemRecord{{ItemID: 9}})

	items := agg.Items()
	if len(items) != 1 || items[0].ItemID != 9 {
		t.Fatalf("expected second batch only, got %v", items)
	}

	agg.ProcessItems(nil)
	if len(agg.Items()) != 0 {
		t.Fatalf("empty batch must clear the list, got %v", agg.Items())
	}
}

func TestProcessCharactersRebuildsLocationMap(t *testing.T) {
	agg := NewAggregator()
	agg.ProcessCharacters([]model.CharacterRecord{
		{AvatarID: 100, EquipGUIDs: []uint64{1, 2}},
		{AvatarID: 200, EquipGUIDs: []uint64{3}},
	})

	if id, ok := agg.LocationOf(2); !ok || id != 100 {
		t.Fatalf("guid 2 should map to 100, got %d (ok=%v)", id, ok)
	}

	// A new batch rebuilds the map from scratch; the old entries must be
	// gone even though avatar 100 was not resent.
	agg.ProcessCharacters([]model.CharacterRecord{
		{AvatarID: 300, EquipGUIDs: []uint64{7}},
	})
	if _, ok := agg.LocationOf(1); ok {
		t.Fatal("stale map entry survived a rebuild")
	}
	if id, ok := agg.LocationOf(7); !ok || id != 300 {
		t.Fatalf("guid 7 should map to 300, got %d (ok=%v)", id, ok)
	}
}

func TestProcessCharactersLastWriterWins(t *testing.T) {
	agg := NewAggregator()
	agg.ProcessCharacters([]model.CharacterRecord{
		{AvatarID: 100, EquipGUIDs: []uint64{5}},
		{AvatarID: 200, EquipGUIDs: []uint64{5}},
	})
	if id, _ := agg.LocationOf(5); id != 200 {
		t.Fatalf("duplicate guid must resolve to last writer, got %d", id)
	}
}

func TestProcessAchievementsReplacesWholesale(t *testing.T) {
	agg := NewAggregator()
	agg.ProcessAchievements([]model.Achievement{{ID: 1}, {ID: 2}})
	agg.ProcessAchievements([]model.Achievement{{ID: 3}})
	if got := agg.Achievements(); len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("expected second batch only, got %v", got)
	}
}

func TestResetDropsEverything(t *testing.T) {
	agg := NewAggregator()
	agg.ProcessItems([]model.ItemRecord{{ItemID: 1}})
	agg.ProcessCharacters([]model.CharacterRecord{{AvatarID: 100, EquipGUIDs: []uint64{1}}})
	agg.ProcessAchievements([]model.Achievement{{ID: 1}})

	agg.Reset()
	if len(agg.Items()) != 0 || len(agg.Characters()) != 0 || len(agg.Achievements()) != 0 {
		t.Fatal("reset left records behind")
	}
	if _, ok := agg.LocationOf(1); ok {
		t.Fatal("reset left a location entry behind")
	}
}
