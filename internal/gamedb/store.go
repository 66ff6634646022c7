// Package gamedb is the read-only game dictionary consumed by the export
// path: numeric ids to names, stat keys and metadata. Lookups may miss;
// a miss is ErrNotFound, never a fabricated value.
package gamedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("gamedb: not found")

// SkillType buckets a character skill into the three exported talent
// slots.
type SkillType string

const (
	SkillAuto  SkillType = "auto"
	SkillSkill SkillType = "skill"
	SkillBurst SkillType = "burst"
)

type ArtifactMeta struct {
	SetName string
	SlotKey string
	Rarity  uint32
}

type WeaponMeta struct {
	Name   string
	Rarity uint32
}

// Affix is one substat roll: the stat it raises (as a GOOD stat key) and
// its magnitude.
type Affix struct {
	Property  string
	Magnitude float64
}

// Database is the lookup capability held by the export engine. Injected
// as an interface so tests can substitute a fixture-backed store.
type Database interface {
	CharacterName(ctx context.Context, id uint32) (string, error)
	SkillType(ctx context.Context, id uint32) (SkillType, error)
	ArtifactMeta(ctx context.Context, id uint32) (ArtifactMeta, error)
	Affix(ctx context.Context, id uint32) (Affix, error)
	PropertyName(ctx context.Context, id uint32) (string, error)
	WeaponMeta(ctx context.Context, id uint32) (WeaponMeta, error)
	MaterialName(ctx context.Context, id uint32) (string, error)
}

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) CharacterName(ctx context.Context, id uint32) (string, error) {
	return s.lookupString(ctx, `SELECT name FROM characters WHERE character_id = ?`, id)
}

func (s *Store) SkillType(ctx context.Context, id uint32) (SkillType, error) {
	raw, err := s.lookupString(ctx, `SELECT skill_type FROM skills WHERE skill_id = ?`, id)
	if err != nil {
		return "", err
	}
	switch SkillType(raw) {
	case SkillAuto, SkillSkill, SkillBurst:
		return SkillType(raw), nil
	default:
		return "", fmt.Errorf("skill %d: unknown type %q", id, raw)
	}
}

func (s *Store) ArtifactMeta(ctx context.Context, id uint32) (ArtifactMeta, error) {
	var meta ArtifactMeta
	err := s.db.QueryRowContext(ctx,
		`SELECT set_name, slot_key, rarity FROM artifacts WHERE artifact_id = ?`, id,
	).Scan(&meta.SetName, &meta.SlotKey, &meta.Rarity)
	if errors.Is(err, sql.ErrNoRows) {
		return ArtifactMeta{}, ErrNotFound
	}
	if err != nil {
		return ArtifactMeta{}, fmt.Errorf("lookup artifact %d: %w", id, err)
	}
	return meta, nil
}

func (s *Store) Affix(ctx context.Context, id uint32) (Affix, error) {
	var affix Affix
	err := s.db.QueryRowContext(ctx,
		`SELECT property, magnitude FROM affixes WHERE affix_id = ?`, id,
	).Scan(&affix.Property, &affix.Magnitude)
	if errors.Is(err, sql.ErrNoRows) {
		return Affix{}, ErrNotFound
	}
	if err != nil {
		return Affix{}, fmt.Errorf("lookup affix %d: %w", id, err)
	}
	return affix, nil
}

func (s *Store) PropertyName(ctx context.Context, id uint32) (string, error) {
	return s.lookupString(ctx, `SELECT good_key FROM properties WHERE property_id = ?`, id)
}

func (s *Store) WeaponMeta(ctx context.Context, id uint32) (WeaponMeta, error) {
	var meta WeaponMeta
	err := s.db.QueryRowContext(ctx,
		`SELECT name, rarity FROM weapons WHERE weapon_id = ?`, id,
	).Scan(&meta.Name, &meta.Rarity)
	if errors.Is(err, sql.ErrNoRows) {
		return WeaponMeta{}, ErrNotFound
	}
	if err != nil {
		return WeaponMeta{}, fmt.Errorf("lookup weapon %d: %w", id, err)
	}
	return meta, nil
}

func (s *Store) MaterialName(ctx context.Context, id uint32) (string, error) {
	return s.lookupString(ctx, `SELECT name FROM materials WHERE material_id = ?`, id)
}

func (s *Store) lookupString(ctx context.Context, query string, id uint32) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup id %d: %w", id, err)
	}
	return value, nil
}
