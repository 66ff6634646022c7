package daemon

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sorayoru/reliquary/internal/api"
	"github.com/sorayoru/reliquary/internal/appclient"
	"github.com/sorayoru/reliquary/internal/capture"
	"github.com/sorayoru/reliquary/internal/config"
	"github.com/sorayoru/reliquary/internal/model"
	"github.com/sorayoru/reliquary/internal/monitor"
	"github.com/sorayoru/reliquary/internal/sniff"
	"github.com/sorayoru/reliquary/internal/testutil"
)

var testKeys = map[uint16][]byte{
	sniff.CmdPlayerStoreNotify:        {0x2F, 0x90},
	sniff.CmdAvatarDataNotify:         {0x61},
	sniff.CmdAchievementAllDataNotify: {0xC4, 0x13},
}

func buildFrame(t *testing.T, id uint16, body []byte) []byte {
	t.Helper()
	key, ok := testKeys[id]
	if !ok {
		t.Fatalf("no test key for command %d", id)
	}
	encrypted := make([]byte, len(body))
	for i, b := range body {
		encrypted[i] = b ^ key[i%len(key)]
	}
	var buf bytes.Buffer
	var head [8]byte
	binary.BigEndian.PutUint16(head[0:], 0x4567)
	binary.BigEndian.PutUint16(head[2:], id)
	binary.BigEndian.PutUint32(head[4:], uint32(len(body)))
	buf.Write(head[:])
	buf.Write(encrypted)
	var tail [2]byte
	binary.BigEndian.PutUint16(tail[:], 0x89AB)
	buf.Write(tail[:])
	return buf.Bytes()
}

func achievementFrame(t *testing.T, id, status uint32) []byte {
	t.Helper()
	var msg []byte
	msg = protowire.AppendTag(msg, 1, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(id))
	msg = protowire.AppendTag(msg, 2, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(status))
	var list []byte
	list = protowire.AppendTag(list, 1, protowire.BytesType)
	list = protowire.AppendBytes(list, msg)
	return buildFrame(t, sniff.CmdAchievementAllDataNotify, list)
}

func freePort(t *testing.T) uint16 {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("probe port: %v", err)
	}
	port := uint16(conn.LocalAddr().(*net.UDPAddr).Port)
	conn.Close() //nolint:errcheck
	return port
}

type testDaemon struct {
	client     *appclient.Client
	portB      uint16
	socketPath string
}

func startTestDaemon(t *testing.T) *testDaemon {
	t.Helper()
	store, _ := testutil.NewGameDB(t)

	portA := freePort(t)
	portB := freePort(t)

	cfg := config.DefaultConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "reliquaryd.sock")
	cfg.CapturePortA = portA
	cfg.CapturePortB = portB
	cfg.PacketLogDir = t.TempDir()

	mon := monitor.New(monitor.Options{
		Keys:         testKeys,
		DB:           store,
		Source:       capture.UDPSource{},
		PortA:        portA,
		PortB:        portB,
		PacketLogDir: cfg.PacketLogDir,
		Logger:       log.New(os.Stderr, "", 0),
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go mon.Run(ctx)

	srv := NewServer(cfg, mon)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-serveErr:
		case <-time.After(5 * time.Second):
			t.Log("daemon did not shut down in time")
		}
	})

	client := appclient.New(cfg.SocketPath)
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := client.Health(context.Background()); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("daemon never became healthy")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return &testDaemon{client: client, portB: portB, socketPath: cfg.SocketPath}
}

func (d *testDaemon) sendFrame(t *testing.T, frame []byte) {
	t.Helper()
	conn, err := net.Dial("udp", fmt.Sprintf("127.0.0.1:%d", d.portB))
	if err != nil {
		t.Fatalf("dial capture port: %v", err)
	}
	defer conn.Close() //nolint:errcheck
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("send frame: %v", err)
	}
}

func TestServerHealth(t *testing.T) {
	d := startTestDaemon(t)
	resp, err := d.client.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.Status != "ok" || resp.SchemaVersion != "v1" {
		t.Fatalf("unexpected health response: %+v", resp)
	}
}

func TestServerCaptureLifecycle(t *testing.T) {
	d := startTestDaemon(t)
	ctx := context.Background()

	status, err := d.client.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != string(model.StateIdle) || status.Capturing {
		t.Fatalf("daemon must start idle: %+v", status)
	}

	status, err = d.client.StartCapture(ctx)
	if err != nil {
		t.Fatalf("start capture: %v", err)
	}
	if status.State != string(model.StateCapturing) || !status.Capturing {
		t.Fatalf("unexpected state after start: %+v", status)
	}

	// Give the UDP listener a moment before sending traffic at it.
	time.Sleep(50 * time.Millisecond)
	d.sendFrame(t, achievementFrame(t, 80101, model.AchievementStatusFinished))

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := d.client.Achievements(ctx)
		if err != nil {
			t.Fatalf("achievements: %v", err)
		}
		if resp.Summary.Total == 1 && resp.Summary.Finished == 1 && resp.Achievements[0].ID == 80101 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("achievement never arrived: %+v", resp)
		}
		time.Sleep(10 * time.Millisecond)
		d.sendFrame(t, achievementFrame(t, 80101, model.AchievementStatusFinished))
	}

	status, err = d.client.StopCapture(ctx)
	if err != nil {
		t.Fatalf("stop capture: %v", err)
	}
	if status.State != string(model.StateIdle) || status.Capturing {
		t.Fatalf("unexpected state after stop: %+v", status)
	}
	if status.Updated.Achievements == nil {
		t.Fatalf("achievement freshness lost on stop: %+v", status)
	}

	// The snapshot survives the stop so it can still be served.
	resp, err := d.client.Achievements(ctx)
	if err != nil {
		t.Fatalf("achievements after stop: %v", err)
	}
	if resp.Summary.Total != 1 {
		t.Fatalf("snapshot lost on stop: %+v", resp)
	}
}

func TestServerExport(t *testing.T) {
	d := startTestDaemon(t)
	ctx := context.Background()

	resp, err := d.client.Export(ctx, api.ExportRequest{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if resp.RequestID == "" {
		t.Fatal("export response missing request id")
	}
	var doc struct {
		Format  string `json:"format"`
		Version int    `json:"version"`
		Source  string `json:"source"`
	}
	if err := json.Unmarshal(resp.Document, &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.Format != "GOOD" || doc.Version != 2 || doc.Source != "Reliquary" {
		t.Fatalf("unexpected document tags: %+v", doc)
	}
}

func TestServerLoggingToggle(t *testing.T) {
	d := startTestDaemon(t)
	ctx := context.Background()

	resp, err := d.client.SetPacketLogging(ctx, true)
	if err != nil {
		t.Fatalf("enable logging: %v", err)
	}
	if !resp.Enabled {
		t.Fatalf("unexpected logging response: %+v", resp)
	}
	resp, err = d.client.SetPacketLogging(ctx, false)
	if err != nil {
		t.Fatalf("disable logging: %v", err)
	}
	if resp.Enabled {
		t.Fatalf("unexpected logging response: %+v", resp)
	}
}

func TestServerRejectsWrongMethod(t *testing.T) {
	d := startTestDaemon(t)

	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var dialer net.Dialer
				return dialer.DialContext(ctx, "unix", d.socketPath)
			},
		},
	}
	req, err := http.NewRequest(http.MethodGet, "http://unix/v1/export", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodPost {
		t.Fatalf("unexpected Allow header %q", allow)
	}
	var body api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Code != model.ErrRefInvalid {
		t.Fatalf("unexpected error code %q", body.Error.Code)
	}
}

func TestServerSingleInstanceLock(t *testing.T) {
	d := startTestDaemon(t)
	_ = d

	// Second daemon on the same socket must refuse to start.
	cfg := config.DefaultConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "reliquaryd.sock")

	store, _ := testutil.NewGameDB(t)
	mon := monitor.New(monitor.Options{
		Keys:   testKeys,
		DB:     store,
		Source: capture.UDPSource{},
		PortA:  freePort(t),
		PortB:  freePort(t),
		Logger: log.New(os.Stderr, "", 0),
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go mon.Run(ctx)

	first := NewServer(cfg, mon)
	firstErr := make(chan error, 1)
	go func() { firstErr <- first.Start(ctx) }()

	client := appclient.New(cfg.SocketPath)
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := client.Health(context.Background()); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first daemon never became healthy")
		}
		time.Sleep(5 * time.Millisecond)
	}

	second := NewServer(cfg, mon)
	err := second.Start(ctx)
	if err == nil {
		t.Fatal("second daemon must fail to start")
	}
	if got := err.Error(); got != "daemon already running" {
		t.Fatalf("unexpected error: %v", got)
	}

	cancel()
	select {
	case <-firstErr:
	case <-time.After(5 * time.Second):
		t.Fatal("first daemon did not shut down")
	}
}

func TestExportSettingsMerge(t *testing.T) {
	defaults := model.DefaultExportSettings()
	if defaults.MinCharacterLevel != 1 || defaults.MinArtifactRarity != 5 ||
		defaults.MinWeaponLevel != 1 || defaults.MinWeaponRarity != 3 {
		t.Fatalf("unexpected defaults: %+v", defaults)
	}

	// An empty request keeps every default.
	if got := exportSettings(api.ExportRequest{}); got != defaults {
		t.Fatalf("empty request must keep defaults, got %+v", got)
	}

	// An explicit zero disables a threshold instead of being dropped.
	zero := uint32(0)
	include := false
	got := exportSettings(api.ExportRequest{
		IncludeWeapons:    &include,
		MinArtifactRarity: &zero,
	})
	if got.MinArtifactRarity != 0 {
		t.Fatalf("explicit zero threshold was clobbered: %+v", got)
	}
	if got.IncludeWeapons {
		t.Fatalf("include override lost: %+v", got)
	}
	if got.MinCharacterLevel != 1 || got.MinWeaponRarity != 3 {
		t.Fatalf("untouched defaults lost: %+v", got)
	}
}
