package keys

import (
	"bytes"
	"testing"
)

func TestLoadBundledTable(t *testing.T) {
	table, err := Load()
	if err != nil {
		t.Fatalf("load bundled keys: %v", err)
	}
	if len(table) == 0 {
		t.Fatal("bundled key table is empty")
	}
	for _, id := range []uint16{690, 1716, 2678} {
		if len(table[id]) == 0 {
			t.Fatalf("no key material for command %d", id)
		}
	}
}

func TestParse(t *testing.T) {
	table, err := Parse([]byte(`{"7": "AAEC"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !bytes.Equal(table[7], []byte{0x00, 0x01, 0x02}) {
		t.Fatalf("unexpected key bytes: %v", table[7])
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"bad id":     `{"70000": "AAEC"}`,
		"bad base64": `{"7": "!!"}`,
		"empty key":  `{"7": ""}`,
		"not json":   `[]`,
	}
	for name, input := range cases {
		if _, err := Parse([]byte(input)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
