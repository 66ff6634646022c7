// Package playerdata accumulates the latest known inventory snapshot for
// one capture session.
package playerdata

import "github.com/sorayoru/reliquary/internal/model"

// Aggregator holds the most recent full batch per category. It is owned
// by the monitor goroutine; no method takes a lock and none may fail.
// Each incoming batch replaces the stored list wholesale, so nothing
// survives from earlier batches of the same category.
type Aggregator struct {
	achievements []model.Achievement
	characters   []model.CharacterRecord
	items        []model.ItemRecord

	equipLocation map[uint64]uint32
}

func NewAggregator() *Aggregator {
	return &Aggregator{equipLocation: make(map[uint64]uint32)}
}

// ProcessItems replaces the stored item list with batch.
func (a *Aggregator) ProcessItems(batch []model.ItemRecord) {
	a.items = append([]model.ItemRecord(nil), batch...)
}

// ProcessCharacters replaces the stored character list with batch and
// rebuilds the equip location map from scratch. Entries derived from a
// previous batch are discarded even when the owning character was not
// resent; on duplicate reference ids within one batch the last writer
// wins.
func (a *Aggregator) ProcessCharacters(batch []model.CharacterRecord) {
	clear(a.equipLocation)
	for _, character := range batch {
		for _, guid := range character.EquipGUIDs {
			a.equipLocation[guid] = character.AvatarID
		}
	}
	a.characters = append([]model.CharacterRecord(nil), batch...)
}

// ProcessAchievements replaces the stored achievement list with batch.
func (a *Aggregator) ProcessAchievements(batch []model.Achievement) {
	a.achievements = append([]model.Achievement(nil), batch...)
}

// Reset drops all per-session records. Called when a capture session
// starts so nothing carries over between sessions.
func (a *Aggregator) Reset() {
	a.achievements = nil
	a.characters = nil
	a.items = nil
	clear(a.equipLocation)
}

func (a *Aggregator) Items() []model.ItemRecord           { return a.items }
func (a *Aggregator) Characters() []model.CharacterRecord { return a.characters }
func (a *Aggregator) Achievements() []model.Achievement   { return a.achievements }

// LocationOf resolves an equipped item's reference id to the id of the
// character wearing it.
func (a *Aggregator) LocationOf(guid uint64) (uint32, bool) {
	id, ok := a.equipLocation[guid]
	return id, ok
}
