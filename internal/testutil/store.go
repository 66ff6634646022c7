// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sorayoru/reliquary/internal/gamedb"
)

// Fixture ids used across the export and monitor tests.
const (
	CharacterAmber   uint32 = 10000021
	CharacterCollei  uint32 = 10000067
	SkillAmberAuto   uint32 = 100543
	SkillAmberSkill  uint32 = 100544
	SkillAmberBurst  uint32 = 100545
	ArtifactFlower   uint32 = 23122
	AffixHPFlat      uint32 = 501022
	AffixCritRate    uint32 = 501064
	PropertyHPMain   uint32 = 15003
	WeaponStringless uint32 = 15405
	MaterialSlime    uint32 = 104001
)

// NewGameDB opens a temporary sqlite game dictionary, applies the schema
// and seeds it with a small fixture set.
func NewGameDB(t *testing.T) (*gamedb.Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := gamedb.Open(ctx, filepath.Join(t.TempDir(), "gamedb-test.db"))
	if err != nil {
		t.Fatalf("open test gamedb: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := gamedb.ApplyMigrations(ctx, store.DB()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if err := store.Import(ctx, FixtureDump()); err != nil {
		t.Fatalf("seed gamedb: %v", err)
	}
	return store, ctx
}

func FixtureDump() gamedb.Dump {
	return gamedb.Dump{
		Characters: map[uint32]string{
			CharacterAmber:  "Amber",
			CharacterCollei: "Collei",
		},
		Skills: map[uint32]string{
			SkillAmberAuto:  "auto",
			SkillAmberSkill: "skill",
			SkillAmberBurst: "burst",
		},
		Artifacts: map[uint32]gamedb.ArtifactEntry{
			ArtifactFlower: {Set: "Wanderer's Troupe", Slot: "flower", Rarity: 5},
		},
		Affixes: map[uint32]gamedb.AffixEntry{
			AffixHPFlat:   {Property: "hp", Magnitude: 209},
			AffixCritRate: {Property: "critRate_", Magnitude: 3.1},
		},
		Properties: map[uint32]string{
			PropertyHPMain: "hp",
		},
		Weapons: map[uint32]gamedb.WeaponEntry{
			WeaponStringless: {Name: "The Stringless", Rarity: 4},
		},
		Materials: map[uint32]string{
			MaterialSlime: "Slime Condensate",
		},
	}
}
