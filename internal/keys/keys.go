// Package keys loads the bundled per-command secret table used to
// initialize a protocol session.
package keys

import (
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

//go:embed keys.json
var bundled []byte

// Load decodes the bundled command-id to secret-bytes table. The table is
// stored as a JSON object of decimal command ids to base64 values.
func Load() (map[uint16][]byte, error) {
	return Parse(bundled)
}

func Parse(data []byte) (map[uint16][]byte, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse key table: %w", err)
	}
	table := make(map[uint16][]byte, len(raw))
	for id, value := range raw {
		n, err := strconv.ParseUint(id, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("parse key id %q: %w", id, err)
		}
		secret, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("decode key %s: %w", id, err)
		}
		if len(secret) == 0 {
			return nil, fmt.Errorf("key %s is empty", id)
		}
		table[uint16(n)] = secret
	}
	return table, nil
}
