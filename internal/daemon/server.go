package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sorayoru/reliquary/internal/api"
	"github.com/sorayoru/reliquary/internal/config"
	"github.com/sorayoru/reliquary/internal/model"
	"github.com/sorayoru/reliquary/internal/monitor"
)

const requestTimeout = 10 * time.Second

type Server struct {
	cfg         config.Config
	httpSrv     *http.Server
	listener    net.Listener
	lockFile    *os.File
	monitor     *monitor.Monitor
	mu          sync.Mutex
	shutdown    sync.Once
	shutdownErr error
}

func NewServer(cfg config.Config, mon *monitor.Monitor) *Server {
	mux := http.NewServeMux()
	s := &Server{
		cfg:     cfg,
		monitor: mon,
		httpSrv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc("/v1/health", s.healthHandler)
	mux.HandleFunc("/v1/status", s.statusHandler)
	mux.HandleFunc("/v1/capture/start", s.captureStartHandler)
	mux.HandleFunc("/v1/capture/stop", s.captureStopHandler)
	mux.HandleFunc("/v1/export", s.exportHandler)
	mux.HandleFunc("/v1/achievements", s.achievementsHandler)
	mux.HandleFunc("/v1/logging", s.loggingHandler)
	return s
}

func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := s.acquireLock(); err != nil {
		return err
	}
	if st, err := os.Lstat(s.cfg.SocketPath); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("socket path exists and is not unix socket: %s", s.cfg.SocketPath)
		}
		if err := os.Remove(s.cfg.SocketPath); err != nil {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("stat socket path: %w", err)
	}
	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		s.releaseLock()
		return fmt.Errorf("listen uds: %w", err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
		ln.Close() //nolint:errcheck
		s.releaseLock()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("serve uds: %w", err)
		}
		return nil
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Do(func() {
		var errs []error
		if s.httpSrv != nil {
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		s.mu.Lock()
		listener := s.listener
		s.listener = nil
		s.mu.Unlock()
		if listener != nil {
			if err := listener.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if s.cfg.SocketPath != "" {
			if err := os.Remove(s.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		if err := s.releaseLock(); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			s.shutdownErr = fmt.Errorf("shutdown errors: %v", errs)
		}
	})
	return s.shutdownErr
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	resp := api.HealthResponse{
		SchemaVersion: "v1",
		GeneratedAt:   time.Now().UTC(),
		Status:        "ok",
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	state, err := s.monitor.Status(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, model.ErrPreconditionFailed, "failed to read status")
		return
	}
	s.writeJSON(w, http.StatusOK, statusEnvelope(state))
}

func (s *Server) captureStartHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	state, err := s.monitor.StartCapture(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, model.ErrCaptureUnavailable, "failed to start capture")
		return
	}
	s.writeJSON(w, http.StatusOK, statusEnvelope(state))
}

func (s *Server) captureStopHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	state, err := s.monitor.StopCapture(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, model.ErrCaptureUnavailable, "failed to stop capture")
		return
	}
	s.writeJSON(w, http.StatusOK, statusEnvelope(state))
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req api.ExportRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, model.ErrRefInvalid, "invalid export request body")
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	data, err := s.monitor.Export(ctx, exportSettings(req))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, model.ErrExportFailed, "failed to build export document")
		return
	}
	resp := api.ExportEnvelope{
		SchemaVersion: "v1",
		GeneratedAt:   time.Now().UTC(),
		RequestID:     uuid.NewString(),
		Document:      json.RawMessage(data),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) achievementsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	list, err := s.monitor.Achievements(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, model.ErrPreconditionFailed, "failed to read achievements")
		return
	}
	resp := api.AchievementsEnvelope{
		SchemaVersion: "v1",
		GeneratedAt:   time.Now().UTC(),
		Achievements:  make([]api.AchievementResponse, 0, len(list)),
	}
	for _, a := range list {
		resp.Summary.Total++
		if a.Status >= model.AchievementStatusFinished {
			resp.Summary.Finished++
		}
		resp.Achievements = append(resp.Achievements, api.AchievementResponse{
			ID:              a.ID,
			Status:          a.Status,
			CurrentProgress: a.CurrentProgress,
			TotalProgress:   a.TotalProgress,
			FinishTimestamp: a.FinishTimestamp,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) loggingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req api.LoggingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, model.ErrRefInvalid, "invalid logging request body")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := s.monitor.SetPacketLogging(ctx, req.Enabled); err != nil {
		s.writeError(w, http.StatusInternalServerError, model.ErrPreconditionFailed, "failed to update packet logging")
		return
	}
	resp := api.LoggingEnvelope{
		SchemaVersion: "v1",
		GeneratedAt:   time.Now().UTC(),
		Enabled:       req.Enabled,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func statusEnvelope(state model.AppState) api.StatusEnvelope {
	return api.StatusEnvelope{
		SchemaVersion: "v1",
		GeneratedAt:   time.Now().UTC(),
		State:         string(state.State),
		Capturing:     state.Capturing,
		Updated: api.Freshness{
			Items:        state.Updated.Items,
			Characters:   state.Updated.Characters,
			Achievements: state.Updated.Achievements,
		},
	}
}

func exportSettings(req api.ExportRequest) model.ExportSettings {
	settings := model.DefaultExportSettings()
	if req.IncludeCharacters != nil {
		settings.IncludeCharacters = *req.IncludeCharacters
	}
	if req.IncludeArtifacts != nil {
		settings.IncludeArtifacts = *req.IncludeArtifacts
	}
	if req.IncludeWeapons != nil {
		settings.IncludeWeapons = *req.IncludeWeapons
	}
	if req.IncludeMaterials != nil {
		settings.IncludeMaterials = *req.IncludeMaterials
	}
	if req.MinCharacterLevel != nil {
		settings.MinCharacterLevel = *req.MinCharacterLevel
	}
	if req.MinCharacterAscension != nil {
		settings.MinCharacterAscension = *req.MinCharacterAscension
	}
	if req.MinCharacterConstellation != nil {
		settings.MinCharacterConstellation = *req.MinCharacterConstellation
	}
	if req.MinArtifactLevel != nil {
		settings.MinArtifactLevel = *req.MinArtifactLevel
	}
	if req.MinArtifactRarity != nil {
		settings.MinArtifactRarity = *req.MinArtifactRarity
	}
	if req.MinWeaponLevel != nil {
		settings.MinWeaponLevel = *req.MinWeaponLevel
	}
	if req.MinWeaponRefinement != nil {
		settings.MinWeaponRefinement = *req.MinWeaponRefinement
	}
	if req.MinWeaponAscension != nil {
		settings.MinWeaponAscension = *req.MinWeaponAscension
	}
	if req.MinWeaponRarity != nil {
		settings.MinWeaponRarity = *req.MinWeaponRarity
	}
	return settings
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	resp := api.ErrorResponse{
		SchemaVersion: "v1",
		GeneratedAt:   time.Now().UTC(),
		Error: api.APIError{
			Code:    code,
			Message: msg,
		},
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allow ...string) {
	if len(allow) > 0 {
		w.Header().Set("Allow", strings.Join(allow, ", "))
	}
	s.writeError(w, http.StatusMethodNotAllowed, model.ErrRefInvalid, "method not allowed")
}

func (s *Server) acquireLock() error {
	lockPath := s.cfg.SocketPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("daemon already running")
	}
	s.mu.Lock()
	s.lockFile = f
	s.mu.Unlock()
	return nil
}

func (s *Server) releaseLock() error {
	s.mu.Lock()
	f := s.lockFile
	s.lockFile = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}
