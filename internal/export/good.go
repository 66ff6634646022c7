// Package export renders an aggregated inventory snapshot into the GOOD
// format (Genshin Optimizer Data), the JSON schema consumed by
// third-party build optimizers.
package export

// Document tags. GOOD consumers dispatch on the format tag and schema
// version; the source tag names the producing application.
const (
	FormatTag     = "GOOD"
	SourceTag     = "Reliquary"
	SchemaVersion = 2
)

type Substat struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

type Artifact struct {
	SetKey      string    `json:"setKey"`
	SlotKey     string    `json:"slotKey"`
	Level       uint32    `json:"level"`
	Rarity      uint32    `json:"rarity"`
	MainStatKey string    `json:"mainStatKey"`
	Location    string    `json:"location"`
	Lock        bool      `json:"lock"`
	Substats    []Substat `json:"substats"`
}

type Weapon struct {
	Key        string `json:"key"`
	Level      uint32 `json:"level"`
	Ascension  uint32 `json:"ascension"`
	Refinement uint32 `json:"refinement"`
	Location   string `json:"location"`
	Lock       bool   `json:"lock"`
}

type TalentLevel struct {
	Auto  uint32 `json:"auto"`
	Skill uint32 `json:"skill"`
	Burst uint32 `json:"burst"`
}

type Character struct {
	Key           string      `json:"key"`
	Level         uint32      `json:"level"`
	Constellation uint32      `json:"constellation"`
	Ascension     uint32      `json:"ascension"`
	Talent        TalentLevel `json:"talent"`
}

type Document struct {
	Format     string            `json:"format"`
	Version    uint32            `json:"version"`
	Source     string            `json:"source"`
	Characters []Character       `json:"characters"`
	Artifacts  []Artifact        `json:"artifacts"`
	Weapons    []Weapon          `json:"weapons"`
	Materials  map[string]uint32 `json:"materials"`
}

// ToGoodKey converts a display name into the compact GOOD identifier:
// ASCII letters and digits survive, everything else is dropped, and the
// first kept character after any dropped run (and the very first one) is
// capitalized. "Bow of the Stringless" becomes "BowOfTheStringless".
func ToGoodKey(value string) string {
	out := make([]byte, 0, len(value))
	capitalizeNext := true
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c >= 'a' && c <= 'z':
			if capitalizeNext {
				c -= 'a' - 'A'
			}
			out = append(out, c)
			capitalizeNext = false
		case c >= 'A' && c <= 'Z' || c >= '0' && c <= '9':
			out = append(out, c)
			capitalizeNext = false
		default:
			capitalizeNext = true
		}
	}
	return string(out)
}
