package model

import "time"

// SessionState is the orchestrator's top-level state. It is owned by the
// monitor goroutine and only ever changes in response to control messages.
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateCapturing SessionState = "capturing"
)

// DataFreshness records when each data category was last seen on the wire.
// All three are cleared when a capture session starts.
type DataFreshness struct {
	Items        *time.Time
	Characters   *time.Time
	Achievements *time.Time
}

// AppState is the snapshot broadcast to subscribers on every change.
type AppState struct {
	State     SessionState
	Capturing bool
	Updated   DataFreshness
}

// Command is one decoded protocol message extracted from a frame.
type Command struct {
	ID   uint16
	Data []byte
}

// Character property ids used by the export path.
const (
	PropLevel     uint32 = 4001
	PropAscension uint32 = 1002
)

// AvatarTypeNormal marks a real playable character; other values are
// trial/story stand-ins and are never exported.
const AvatarTypeNormal uint32 = 1

type CharacterRecord struct {
	AvatarID    uint32
	AvatarType  uint32
	Properties  map[uint32]int64
	SkillLevels map[uint32]uint32
	TalentIDs   []uint32
	EquipGUIDs  []uint64
}

// ItemRecord is a tagged union: exactly one of Equip or Material is set.
type ItemRecord struct {
	ItemID   uint32
	GUID     uint64
	Equip    *EquipData
	Material *MaterialData
}

// EquipData carries either reliquary or weapon payload, never both.
type EquipData struct {
	Locked    bool
	Reliquary *Reliquary
	Weapon    *Weapon
}

// Reliquary level is stored 1-based-plus-one by the game; the export
// path subtracts one to get the 0-based upgrade count.
type Reliquary struct {
	Level         uint32
	MainPropID    uint32
	AppendPropIDs []uint32
}

type Weapon struct {
	Level        uint32
	PromoteLevel uint32
	AffixMap     map[uint32]uint32
}

type MaterialData struct {
	Count uint32
}

type Achievement struct {
	ID              uint32 `json:"id"`
	Status          uint32 `json:"status"`
	CurrentProgress uint32 `json:"current_progress"`
	TotalProgress   uint32 `json:"total_progress"`
	FinishTimestamp uint32 `json:"finish_timestamp,omitempty"`
}

// AchievementStatusFinished and above mean the achievement is done
// (finished or reward taken).
const AchievementStatusFinished uint32 = 2

// ExportSettings controls which sections the export engine emits and the
// inclusive minimum thresholds applied per record.
type ExportSettings struct {
	IncludeCharacters bool `json:"include_characters"`
	IncludeArtifacts  bool `json:"include_artifacts"`
	IncludeWeapons    bool `json:"include_weapons"`
	IncludeMaterials  bool `json:"include_materials"`

	MinCharacterLevel         uint32 `json:"min_character_level"`
	MinCharacterAscension     uint32 `json:"min_character_ascension"`
	MinCharacterConstellation uint32 `json:"min_character_constellation"`

	MinArtifactLevel  uint32 `json:"min_artifact_level"`
	MinArtifactRarity uint32 `json:"min_artifact_rarity"`

	MinWeaponLevel      uint32 `json:"min_weapon_level"`
	MinWeaponRefinement uint32 `json:"min_weapon_refinement"`
	MinWeaponAscension  uint32 `json:"min_weapon_ascension"`
	MinWeaponRarity     uint32 `json:"min_weapon_rarity"`
}

// DefaultExportSettings keeps only characters that reached level 1,
// 5-star artifacts and weapons of at least rarity 3, matching the
// thresholds most exporters care about.
func DefaultExportSettings() ExportSettings {
	return ExportSettings{
		IncludeCharacters: true,
		IncludeArtifacts:  true,
		IncludeWeapons:    true,
		IncludeMaterials:  true,
		MinCharacterLevel: 1,
		MinArtifactRarity: 5,
		MinWeaponLevel:    1,
		MinWeaponRarity:   3,
	}
}

// Error codes defined by API contract.
const (
	ErrRefInvalid         = "E_REF_INVALID"
	ErrRefNotFound        = "E_REF_NOT_FOUND"
	ErrPreconditionFailed = "E_PRECONDITION_FAILED"
	ErrExportFailed       = "E_EXPORT_FAILED"
	ErrCaptureUnavailable = "E_CAPTURE_UNAVAILABLE"
)
