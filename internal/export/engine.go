package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sorayoru/reliquary/internal/gamedb"
	"github.com/sorayoru/reliquary/internal/model"
	"github.com/sorayoru/reliquary/internal/playerdata"
)

// Engine builds GOOD documents from an aggregator snapshot. Per-record
// problems (dictionary misses, missing properties) silently exclude the
// affected record; only a serialization failure surfaces as an error.
type Engine struct {
	db gamedb.Database
}

func NewEngine(db gamedb.Database) *Engine {
	return &Engine{db: db}
}

// Export renders the snapshot under settings and returns the encoded
// document.
func (e *Engine) Export(ctx context.Context, data *playerdata.Aggregator, settings model.ExportSettings) ([]byte, error) {
	doc := e.BuildDocument(ctx, data, settings)
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return out, nil
}

func (e *Engine) BuildDocument(ctx context.Context, data *playerdata.Aggregator, settings model.ExportSettings) Document {
	doc := Document{
		Format:     FormatTag,
		Version:    SchemaVersion,
		Source:     SourceTag,
		Characters: []Character{},
		Artifacts:  []Artifact{},
		Weapons:    []Weapon{},
		Materials:  map[string]uint32{},
	}
	if settings.IncludeCharacters {
		doc.Characters = e.characters(ctx, data, settings)
	}
	if settings.IncludeArtifacts {
		doc.Artifacts = e.artifacts(ctx, data, settings)
	}
	if settings.IncludeWeapons {
		doc.Weapons = e.weapons(ctx, data, settings)
	}
	if settings.IncludeMaterials {
		doc.Materials = e.materials(ctx, data)
	}
	return doc
}

func (e *Engine) characters(ctx context.Context, data *playerdata.Aggregator, settings model.ExportSettings) []Character {
	characters := []Character{}
	for _, character := range data.Characters() {
		if character.AvatarType != model.AvatarTypeNormal {
			continue
		}
		name, err := e.db.CharacterName(ctx, character.AvatarID)
		if err != nil {
			continue
		}
		// Level and ascension live in the property map; without them the
		// character cannot be exported yet.
		level, ok := character.Properties[model.PropLevel]
		if !ok {
			continue
		}
		ascension, ok := character.Properties[model.PropAscension]
		if !ok {
			continue
		}
		constellation := uint32(len(character.TalentIDs))

		// Talents start at level 1 and are never reported as 0.
		talent := TalentLevel{Auto: 1, Skill: 1, Burst: 1}
		for id, skillLevel := range character.SkillLevels {
			skillType, err := e.db.SkillType(ctx, id)
			if err != nil {
				continue
			}
			switch skillType {
			case gamedb.SkillAuto:
				talent.Auto = skillLevel
			case gamedb.SkillSkill:
				talent.Skill = skillLevel
			case gamedb.SkillBurst:
				talent.Burst = skillLevel
			}
		}

		if uint32(level) < settings.MinCharacterLevel ||
			uint32(ascension) < settings.MinCharacterAscension ||
			constellation < settings.MinCharacterConstellation {
			continue
		}

		characters = append(characters, Character{
			Key:           ToGoodKey(name),
			Level:         uint32(level),
			Constellation: constellation,
			Ascension:     uint32(ascension),
			Talent:        talent,
		})
	}
	return characters
}

func (e *Engine) artifacts(ctx context.Context, data *playerdata.Aggregator, settings model.ExportSettings) []Artifact {
	artifacts := []Artifact{}
	for _, item := range data.Items() {
		if item.Equip == nil || item.Equip.Reliquary == nil {
			continue
		}
		reliquary := item.Equip.Reliquary
		// Stored level is 1-based; a malformed payload without one would
		// wrap on the upgrade-count conversion below.
		if reliquary.Level == 0 {
			continue
		}

		meta, err := e.db.ArtifactMeta(ctx, item.ItemID)
		if err != nil {
			continue
		}
		mainStatKey, err := e.db.PropertyName(ctx, reliquary.MainPropID)
		if err != nil {
			continue
		}

		// Duplicate rolls of the same secondary stat merge into one entry
		// with the summed magnitude. Output order follows first appearance.
		sums := make(map[string]float64)
		order := []string{}
		for _, substatID := range reliquary.AppendPropIDs {
			affix, err := e.db.Affix(ctx, substatID)
			if err != nil {
				continue
			}
			if _, seen := sums[affix.Property]; !seen {
				order = append(order, affix.Property)
			}
			sums[affix.Property] += affix.Magnitude
		}
		substats := make([]Substat, 0, len(order))
		for _, key := range order {
			substats = append(substats, Substat{Key: key, Value: sums[key]})
		}

		// The game stores the level one above the upgrade count GOOD wants.
		level := reliquary.Level - 1

		if level < settings.MinArtifactLevel || meta.Rarity < settings.MinArtifactRarity {
			continue
		}

		artifacts = append(artifacts, Artifact{
			SetKey:      ToGoodKey(meta.SetName),
			SlotKey:     meta.SlotKey,
			Level:       level,
			Rarity:      meta.Rarity,
			MainStatKey: mainStatKey,
			Location:    e.location(ctx, data, item.GUID),
			Lock:        item.Equip.Locked,
			Substats:    substats,
		})
	}
	return artifacts
}

func (e *Engine) weapons(ctx context.Context, data *playerdata.Aggregator, settings model.ExportSettings) []Weapon {
	weapons := []Weapon{}
	for _, item := range data.Items() {
		if item.Equip == nil || item.Equip.Weapon == nil {
			continue
		}
		weapon := item.Equip.Weapon

		meta, err := e.db.WeaponMeta(ctx, item.ItemID)
		if err != nil {
			continue
		}

		// The affix map holds at most one meaningful entry; an arbitrary
		// one is used if the game ever sends more.
		refinement := uint32(1)
		for _, rank := range weapon.AffixMap {
			refinement = rank + 1
			break
		}

		if weapon.Level < settings.MinWeaponLevel ||
			refinement < settings.MinWeaponRefinement ||
			weapon.PromoteLevel < settings.MinWeaponAscension ||
			meta.Rarity < settings.MinWeaponRarity {
			continue
		}

		weapons = append(weapons, Weapon{
			Key:        ToGoodKey(meta.Name),
			Level:      weapon.Level,
			Ascension:  weapon.PromoteLevel,
			Refinement: refinement,
			Location:   e.location(ctx, data, item.GUID),
			Lock:       item.Equip.Locked,
		})
	}
	return weapons
}

func (e *Engine) materials(ctx context.Context, data *playerdata.Aggregator) map[string]uint32 {
	materials := map[string]uint32{}
	for _, item := range data.Items() {
		if item.Material == nil {
			continue
		}
		name, err := e.db.MaterialName(ctx, item.ItemID)
		if err != nil {
			continue
		}
		// Duplicate material stacks sum.
		materials[ToGoodKey(name)] += item.Material.Count
	}
	return materials
}

// location resolves the canonical key of the character wearing an item;
// empty when either the reference or the name lookup misses.
func (e *Engine) location(ctx context.Context, data *playerdata.Aggregator, guid uint64) string {
	characterID, ok := data.LocationOf(guid)
	if !ok {
		return ""
	}
	name, err := e.db.CharacterName(ctx, characterID)
	if err != nil {
		return ""
	}
	return ToGoodKey(name)
}
