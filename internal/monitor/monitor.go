package monitor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sorayoru/reliquary/internal/capture"
	"github.com/sorayoru/reliquary/internal/export"
	"github.com/sorayoru/reliquary/internal/gamedb"
	"github.com/sorayoru/reliquary/internal/model"
	"github.com/sorayoru/reliquary/internal/playerdata"
	"github.com/sorayoru/reliquary/internal/sniff"
)

type msgKind int

const (
	msgStartCapture msgKind = iota
	msgStopCapture
	msgSetLogging
	msgExport
	msgStatus
	msgAchievements
)

type message struct {
	kind     msgKind
	ctx      context.Context
	enabled  bool
	settings model.ExportSettings

	stateReply        chan model.AppState
	errReply          chan error
	exportReply       chan exportResult
	achievementsReply chan []model.Achievement
}

type exportResult struct {
	data []byte
	err  error
}

// Options carries everything a Monitor needs to run.
type Options struct {
	Keys           map[uint16][]byte
	DB             gamedb.Database
	Source         capture.Source
	PortA          uint16
	PortB          uint16
	FrameQueueSize int
	PacketLogDir   string
	LogPackets     bool
	Logger         *log.Logger
}

// Monitor owns the capture session end to end. All mutable state is
// confined to the Run goroutine; other goroutines talk to it over the
// control channel.
type Monitor struct {
	session    *sniff.Session
	aggregator *playerdata.Aggregator
	engine     *export.Engine
	controller *capture.Controller

	frames   chan []byte
	failures chan error
	control  chan message
	logger   *log.Logger

	packetLogDir string
	logPackets   bool

	state     model.SessionState
	freshness model.DataFreshness

	mu          sync.Mutex
	subscribers []chan model.AppState
}

func New(opts Options) *Monitor {
	queue := opts.FrameQueueSize
	if queue <= 0 {
		queue = 1024
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	frames := make(chan []byte, queue)
	failures := make(chan error, 1)
	return &Monitor{
		session:      sniff.NewSession(opts.Keys),
		aggregator:   playerdata.NewAggregator(),
		engine:       export.NewEngine(opts.DB),
		controller:   capture.NewController(opts.Source, opts.PortA, opts.PortB, frames, failures, logger),
		frames:       frames,
		failures:     failures,
		control:      make(chan message, 16),
		logger:       logger,
		packetLogDir: opts.PacketLogDir,
		logPackets:   opts.LogPackets,
		state:        model.StateIdle,
	}
}

// Run drives the monitor until ctx is cancelled. It must be called
// exactly once.
func (m *Monitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if m.controller.Active() {
				m.controller.Stop()
			}
			return
		case msg := <-m.control:
			m.handleControl(msg)
		case frame := <-m.frames:
			m.handlePayload(frame)
		case err := <-m.failures:
			m.logger.Printf("capture task failed: %v", err)
			m.controller.Abort()
			m.state = model.StateIdle
			m.broadcast()
		}
	}
}

// StartCapture resets the aggregated snapshot and begins a new capture
// task. The returned state reflects the monitor after the request.
func (m *Monitor) StartCapture(ctx context.Context) (model.AppState, error) {
	return m.requestState(ctx, message{kind: msgStartCapture})
}

// StopCapture ends the active capture task. Aggregated data survives
// so it can still be exported.
func (m *Monitor) StopCapture(ctx context.Context) (model.AppState, error) {
	return m.requestState(ctx, message{kind: msgStopCapture})
}

// Status reports the current session state and data freshness.
func (m *Monitor) Status(ctx context.Context) (model.AppState, error) {
	return m.requestState(ctx, message{kind: msgStatus})
}

// SetPacketLogging toggles writing decoded command bodies to disk.
func (m *Monitor) SetPacketLogging(ctx context.Context, enabled bool) error {
	msg := message{kind: msgSetLogging, enabled: enabled, errReply: make(chan error, 1)}
	if err := m.send(ctx, msg); err != nil {
		return err
	}
	select {
	case err := <-msg.errReply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Export renders the current snapshot as a GOOD document.
func (m *Monitor) Export(ctx context.Context, settings model.ExportSettings) ([]byte, error) {
	msg := message{kind: msgExport, ctx: ctx, settings: settings, exportReply: make(chan exportResult, 1)}
	if err := m.send(ctx, msg); err != nil {
		return nil, err
	}
	select {
	case res := <-msg.exportReply:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Achievements returns a copy of the aggregated achievement list.
func (m *Monitor) Achievements(ctx context.Context) ([]model.Achievement, error) {
	msg := message{kind: msgAchievements, achievementsReply: make(chan []model.Achievement, 1)}
	if err := m.send(ctx, msg); err != nil {
		return nil, err
	}
	select {
	case list := <-msg.achievementsReply:
		return list, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe registers a state watcher. Updates are dropped rather than
// blocking the monitor when the subscriber lags.
func (m *Monitor) Subscribe() <-chan model.AppState {
	ch := make(chan model.AppState, 8)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch
}

func (m *Monitor) requestState(ctx context.Context, msg message) (model.AppState, error) {
	msg.stateReply = make(chan model.AppState, 1)
	if err := m.send(ctx, msg); err != nil {
		return model.AppState{}, err
	}
	select {
	case state := <-msg.stateReply:
		return state, nil
	case <-ctx.Done():
		return model.AppState{}, ctx.Err()
	}
}

func (m *Monitor) send(ctx context.Context, msg message) error {
	select {
	case m.control <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) handleControl(msg message) {
	switch msg.kind {
	case msgStartCapture:
		m.aggregator.Reset()
		m.freshness = model.DataFreshness{}
		m.controller.Start()
		m.state = model.StateCapturing
		m.broadcast()
		msg.stateReply <- m.appState()
	case msgStopCapture:
		m.controller.Stop()
		m.state = model.StateIdle
		m.broadcast()
		msg.stateReply <- m.appState()
	case msgSetLogging:
		msg.errReply <- m.setLogging(msg.enabled)
	case msgExport:
		data, err := m.engine.Export(msg.ctx, m.aggregator, msg.settings)
		msg.exportReply <- exportResult{data: data, err: err}
	case msgStatus:
		msg.stateReply <- m.appState()
	case msgAchievements:
		list := m.aggregator.Achievements()
		out := make([]model.Achievement, len(list))
		copy(out, list)
		msg.achievementsReply <- out
	}
}

func (m *Monitor) setLogging(enabled bool) error {
	if enabled {
		if err := os.MkdirAll(m.packetLogDir, 0o700); err != nil {
			return fmt.Errorf("create packet log dir: %w", err)
		}
	}
	m.logPackets = enabled
	return nil
}

func (m *Monitor) handlePayload(frame []byte) {
	now := time.Now()
	changed := false
	for _, cmd := range m.session.Decode(frame) {
		if m.logPackets {
			m.writePacket(cmd, now)
		}
		if batch, ok := sniff.MatchItems(cmd); ok {
			m.aggregator.ProcessItems(batch)
			m.freshness.Items = &now
			changed = true
			continue
		}
		if batch, ok := sniff.MatchCharacters(cmd); ok {
			m.aggregator.ProcessCharacters(batch)
			m.freshness.Characters = &now
			changed = true
			continue
		}
		if batch, ok := sniff.MatchAchievements(cmd); ok {
			m.aggregator.ProcessAchievements(batch)
			m.freshness.Achievements = &now
			changed = true
		}
	}
	if changed {
		m.broadcast()
	}
}

func (m *Monitor) writePacket(cmd model.Command, now time.Time) {
	name := fmt.Sprintf("%d-%d.bin", now.UnixMilli(), cmd.ID)
	if err := os.WriteFile(filepath.Join(m.packetLogDir, name), cmd.Data, 0o600); err != nil {
		m.logger.Printf("error writing packet log %s: %v", name, err)
	}
}

func (m *Monitor) appState() model.AppState {
	return model.AppState{
		State:     m.state,
		Capturing: m.controller.Active(),
		Updated:   m.freshness,
	}
}

func (m *Monitor) broadcast() {
	state := m.appState()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- state:
		default:
		}
	}
}
