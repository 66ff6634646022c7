package api

import (
	"encoding/json"
	"time"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Error         APIError  `json:"error"`
}

// Freshness mirrors the monitor's per-category last-seen timestamps.
type Freshness struct {
	Items        *time.Time `json:"items,omitempty"`
	Characters   *time.Time `json:"characters,omitempty"`
	Achievements *time.Time `json:"achievements,omitempty"`
}

type StatusEnvelope struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	State         string    `json:"state"`
	Capturing     bool      `json:"capturing"`
	Updated       Freshness `json:"updated"`
}

// ExportRequest carries the filter settings for a GOOD export. Every
// field is optional; absent fields fall back to the daemon defaults,
// so a zero minimum must be sent explicitly to disable a threshold.
type ExportRequest struct {
	IncludeCharacters *bool `json:"include_characters,omitempty"`
	IncludeArtifacts  *bool `json:"include_artifacts,omitempty"`
	IncludeWeapons    *bool `json:"include_weapons,omitempty"`
	IncludeMaterials  *bool `json:"include_materials,omitempty"`

	MinCharacterLevel         *uint32 `json:"min_character_level,omitempty"`
	MinCharacterAscension     *uint32 `json:"min_character_ascension,omitempty"`
	MinCharacterConstellation *uint32 `json:"min_character_constellation,omitempty"`

	MinArtifactLevel  *uint32 `json:"min_artifact_level,omitempty"`
	MinArtifactRarity *uint32 `json:"min_artifact_rarity,omitempty"`

	MinWeaponLevel      *uint32 `json:"min_weapon_level,omitempty"`
	MinWeaponRefinement *uint32 `json:"min_weapon_refinement,omitempty"`
	MinWeaponAscension  *uint32 `json:"min_weapon_ascension,omitempty"`
	MinWeaponRarity     *uint32 `json:"min_weapon_rarity,omitempty"`
}

type ExportEnvelope struct {
	SchemaVersion string          `json:"schema_version"`
	GeneratedAt   time.Time       `json:"generated_at"`
	RequestID     string          `json:"request_id"`
	Document      json.RawMessage `json:"document"`
}

type AchievementResponse struct {
	ID              uint32 `json:"id"`
	Status          uint32 `json:"status"`
	CurrentProgress uint32 `json:"current_progress"`
	TotalProgress   uint32 `json:"total_progress"`
	FinishTimestamp uint32 `json:"finish_timestamp,omitempty"`
}

type AchievementSummary struct {
	Total    int `json:"total"`
	Finished int `json:"finished"`
}

type AchievementsEnvelope struct {
	SchemaVersion string                `json:"schema_version"`
	GeneratedAt   time.Time             `json:"generated_at"`
	Summary       AchievementSummary    `json:"summary"`
	Achievements  []AchievementResponse `json:"achievements"`
}

type LoggingRequest struct {
	Enabled bool `json:"enabled"`
}

type LoggingEnvelope struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Enabled       bool      `json:"enabled"`
}
