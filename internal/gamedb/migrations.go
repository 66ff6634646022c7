package gamedb

import (
	"context"
	"database/sql"
	"fmt"
)

type Migration struct {
	Version int
	UpSQL   string
	DownSQL string
}

var migrations = []Migration{
	{
		Version: 1,
		UpSQL: `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS characters (
	character_id INTEGER PRIMARY KEY,
	name TEXT NOT NULL CHECK(length(name) > 0)
);

CREATE TABLE IF NOT EXISTS skills (
	skill_id INTEGER PRIMARY KEY,
	skill_type TEXT NOT NULL CHECK(skill_type IN ('auto','skill','burst'))
);

CREATE TABLE IF NOT EXISTS artifacts (
	artifact_id INTEGER PRIMARY KEY,
	set_name TEXT NOT NULL CHECK(length(set_name) > 0),
	slot_key TEXT NOT NULL CHECK(slot_key IN ('flower','plume','sands','goblet','circlet')),
	rarity INTEGER NOT NULL CHECK(rarity BETWEEN 1 AND 5)
);

CREATE TABLE IF NOT EXISTS affixes (
	affix_id INTEGER PRIMARY KEY,
	property TEXT NOT NULL CHECK(length(property) > 0),
	magnitude REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS properties (
	property_id INTEGER PRIMARY KEY,
	good_key TEXT NOT NULL CHECK(length(good_key) > 0)
);

CREATE TABLE IF NOT EXISTS weapons (
	weapon_id INTEGER PRIMARY KEY,
	name TEXT NOT NULL CHECK(length(name) > 0),
	rarity INTEGER NOT NULL CHECK(rarity BETWEEN 1 AND 5)
);

CREATE TABLE IF NOT EXISTS materials (
	material_id INTEGER PRIMARY KEY,
	name TEXT NOT NULL CHECK(length(name) > 0)
);
`,
		DownSQL: `
DROP TABLE IF EXISTS materials;
DROP TABLE IF EXISTS weapons;
DROP TABLE IF EXISTS properties;
DROP TABLE IF EXISTS affixes;
DROP TABLE IF EXISTS artifacts;
DROP TABLE IF EXISTS skills;
DROP TABLE IF EXISTS characters;
DROP TABLE IF EXISTS schema_migrations;
`,
	},
}

func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err == nil {
			continue
		}
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.Version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
