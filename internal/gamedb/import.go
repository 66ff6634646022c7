package gamedb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Dump is the JSON shape of a game dictionary export. All sections are
// optional; present sections are upserted row by row.
type Dump struct {
	Characters map[uint32]string        `json:"characters"`
	Skills     map[uint32]string        `json:"skills"`
	Artifacts  map[uint32]ArtifactEntry `json:"artifacts"`
	Affixes    map[uint32]AffixEntry    `json:"affixes"`
	Properties map[uint32]string        `json:"properties"`
	Weapons    map[uint32]WeaponEntry   `json:"weapons"`
	Materials  map[uint32]string        `json:"materials"`
}

type ArtifactEntry struct {
	Set    string `json:"set"`
	Slot   string `json:"slot"`
	Rarity uint32 `json:"rarity"`
}

type AffixEntry struct {
	Property  string  `json:"property"`
	Magnitude float64 `json:"magnitude"`
}

type WeaponEntry struct {
	Name   string `json:"name"`
	Rarity uint32 `json:"rarity"`
}

// ImportJSON reads a dictionary dump and loads it into the store inside
// one transaction. Existing rows with the same id are overwritten.
func (s *Store) ImportJSON(ctx context.Context, r io.Reader) error {
	var dump Dump
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return fmt.Errorf("decode dump: %w", err)
	}
	return s.Import(ctx, dump)
}

func (s *Store) Import(ctx context.Context, dump Dump) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import tx: %w", err)
	}

	upsert := func(query string, args ...any) {
		if err != nil {
			return
		}
		_, err = tx.ExecContext(ctx, query, args...)
	}

	for id, name := range dump.Characters {
		upsert(`INSERT INTO characters(character_id, name) VALUES (?, ?)
ON CONFLICT(character_id) DO UPDATE SET name=excluded.name`, id, name)
	}
	for id, skillType := range dump.Skills {
		upsert(`INSERT INTO skills(skill_id, skill_type) VALUES (?, ?)
ON CONFLICT(skill_id) DO UPDATE SET skill_type=excluded.skill_type`, id, skillType)
	}
	for id, artifact := range dump.Artifacts {
		upsert(`INSERT INTO artifacts(artifact_id, set_name, slot_key, rarity) VALUES (?, ?, ?, ?)
ON CONFLICT(artifact_id) DO UPDATE SET set_name=excluded.set_name, slot_key=excluded.slot_key, rarity=excluded.rarity`,
			id, artifact.Set, artifact.Slot, artifact.Rarity)
	}
	for id, affix := range dump.Affixes {
		upsert(`INSERT INTO affixes(affix_id, property, magnitude) VALUES (?, ?, ?)
ON CONFLICT(affix_id) DO UPDATE SET property=excluded.property, magnitude=excluded.magnitude`,
			id, affix.Property, affix.Magnitude)
	}
	for id, key := range dump.Properties {
		upsert(`INSERT INTO properties(property_id, good_key) VALUES (?, ?)
ON CONFLICT(property_id) DO UPDATE SET good_key=excluded.good_key`, id, key)
	}
	for id, weapon := range dump.Weapons {
		upsert(`INSERT INTO weapons(weapon_id, name, rarity) VALUES (?, ?, ?)
ON CONFLICT(weapon_id) DO UPDATE SET name=excluded.name, rarity=excluded.rarity`,
			id, weapon.Name, weapon.Rarity)
	}
	for id, name := range dump.Materials {
		upsert(`INSERT INTO materials(material_id, name) VALUES (?, ?)
ON CONFLICT(material_id) DO UPDATE SET name=excluded.name`, id, name)
	}

	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("import dump: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}
