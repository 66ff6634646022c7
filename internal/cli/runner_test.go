package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sorayoru/reliquary/internal/appclient"
	"github.com/sorayoru/reliquary/internal/testutil"
)

func newTestRunner(srv *httptest.Server) (*Runner, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	client := appclient.NewWithClient(srv.URL, srv.Client())
	return NewRunnerWithClient(client, out, errOut), out, errOut
}

func TestStatusCallsAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("expected GET, got %s", r.Method)
		}
		_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-08-30T00:00:00Z","state":"capturing","capturing":true,"updated":{"items":"2026-08-30T00:00:01Z"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r, out, errOut := newTestRunner(srv)
	if code := r.Run(context.Background(), []string{"status"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "state: capturing") {
		t.Fatalf("expected state line, got: %s", out.String())
	}
	if !strings.Contains(out.String(), "characters: never") {
		t.Fatalf("expected never marker for unseen category, got: %s", out.String())
	}

	out.Reset()
	if code := r.Run(context.Background(), []string{"status", "-json"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), `"state": "capturing"`) {
		t.Fatalf("expected JSON output, got: %s", out.String())
	}
}

func TestStartStopCallAPI(t *testing.T) {
	var started, stopped bool
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/capture/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		started = true
		_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-08-30T00:00:00Z","state":"capturing","capturing":true,"updated":{}}`)
	})
	mux.HandleFunc("/v1/capture/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		stopped = true
		_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-08-30T00:00:00Z","state":"idle","capturing":false,"updated":{}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r, out, errOut := newTestRunner(srv)
	if code := r.Run(context.Background(), []string{"start"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !started || !strings.Contains(out.String(), "state: capturing") {
		t.Fatalf("start not forwarded, got: %s", out.String())
	}

	out.Reset()
	if code := r.Run(context.Background(), []string{"stop"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !stopped || !strings.Contains(out.String(), "state: idle") {
		t.Fatalf("stop not forwarded, got: %s", out.String())
	}
}

func TestExportWritesDocument(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/export", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["include_weapons"] != false {
			t.Fatalf("expected weapons excluded, got %v", req)
		}
		if req["min_artifact_level"] != float64(16) {
			t.Fatalf("expected artifact threshold, got %v", req)
		}
		// Unset flags still send the default thresholds.
		if req["min_character_level"] != float64(1) || req["min_artifact_rarity"] != float64(5) ||
			req["min_weapon_level"] != float64(1) || req["min_weapon_rarity"] != float64(3) {
			t.Fatalf("expected default thresholds, got %v", req)
		}
		_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-08-30T00:00:00Z","request_id":"r1","document":{"format":"GOOD","version":2,"source":"Reliquary"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r, out, errOut := newTestRunner(srv)
	code := r.Run(context.Background(), []string{"export", "-no-weapons", "-min-artifact-level", "16"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), `"format":"GOOD"`) {
		t.Fatalf("expected document on stdout, got: %s", out.String())
	}

	// -out writes the document to a file instead.
	path := filepath.Join(t.TempDir(), "export.json")
	out.Reset()
	code = r.Run(context.Background(), []string{"export", "-no-weapons", "-min-artifact-level", "16", "-out", path})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export file: %v", err)
	}
	if !strings.Contains(string(data), `"format":"GOOD"`) {
		t.Fatalf("unexpected file contents: %s", data)
	}
}

func TestAchievementsOutput(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/achievements", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-08-30T00:00:00Z","summary":{"total":2,"finished":1},"achievements":[{"id":80001,"status":2,"current_progress":1,"total_progress":1},{"id":80002,"status":1,"current_progress":3,"total_progress":10}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r, out, errOut := newTestRunner(srv)
	if code := r.Run(context.Background(), []string{"achievements"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "finished 1 of 2") {
		t.Fatalf("expected summary line, got: %s", out.String())
	}
	if !strings.Contains(out.String(), "80002\tin-progress\t3/10") {
		t.Fatalf("expected tabular achievement output, got: %s", out.String())
	}
}

func TestLogToggleCallsAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/logging", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !req.Enabled {
			t.Fatal("expected enable request")
		}
		_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-08-30T00:00:00Z","enabled":true}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r, out, errOut := newTestRunner(srv)
	if code := r.Run(context.Background(), []string{"log", "on"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "packet logging enabled") {
		t.Fatalf("unexpected output: %s", out.String())
	}

	if code := r.Run(context.Background(), []string{"log", "sideways"}); code != 2 {
		t.Fatalf("expected usage error, got %d", code)
	}
}

func TestImportDataLoadsDump(t *testing.T) {
	dump := testutil.FixtureDump()
	data, err := json.Marshal(dump)
	if err != nil {
		t.Fatalf("marshal dump: %v", err)
	}
	dumpPath := filepath.Join(t.TempDir(), "dump.json")
	if err := os.WriteFile(dumpPath, data, 0o644); err != nil {
		t.Fatalf("write dump: %v", err)
	}
	dbPath := filepath.Join(t.TempDir(), "gamedata.db")

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient(nil, out, errOut)
	code := r.Run(context.Background(), []string{"import-data", "-db", dbPath, dumpPath})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "imported") {
		t.Fatalf("unexpected output: %s", out.String())
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database not created: %v", err)
	}
}

func TestUnknownCommandPrintsUsage(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient(nil, out, errOut)
	if code := r.Run(context.Background(), []string{"frobnicate"}); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "unknown command") {
		t.Fatalf("expected unknown command message, got: %s", errOut.String())
	}
}
