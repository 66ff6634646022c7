package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	SocketPath      string        `env:"RELIQUARY_SOCKET_PATH"`
	DBPath          string        `env:"RELIQUARY_DB_PATH"`
	CapturePortA    uint16        `env:"RELIQUARY_CAPTURE_PORT_A"  envDefault:"22101"`
	CapturePortB    uint16        `env:"RELIQUARY_CAPTURE_PORT_B"  envDefault:"22102"`
	FrameQueueSize  int           `env:"RELIQUARY_FRAME_QUEUE"     envDefault:"1024"`
	LogPackets      bool          `env:"RELIQUARY_LOG_PACKETS"     envDefault:"false"`
	PacketLogDir    string        `env:"RELIQUARY_PACKET_LOG_DIR"`
	ShutdownTimeout time.Duration `env:"RELIQUARY_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

func DefaultConfig() Config {
	return Config{
		SocketPath:      defaultSocketPath(),
		DBPath:          defaultDBPath(),
		CapturePortA:    22101,
		CapturePortB:    22102,
		FrameQueueSize:  1024,
		LogPackets:      false,
		PacketLogDir:    defaultPacketLogDir(),
		ShutdownTimeout: 5 * time.Second,
	}
}

// FromEnv starts from DefaultConfig and overlays RELIQUARY_* variables.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PacketLogDir == "" {
		cfg.PacketLogDir = defaultPacketLogDir()
	}
	return cfg, nil
}

func defaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "reliquary", "reliquaryd.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".reliquaryd.sock"
	}
	return filepath.Join(home, ".local", "state", "reliquary", "reliquaryd.sock")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "gamedata.db"
	}
	return filepath.Join(home, ".local", "state", "reliquary", "gamedata.db")
}

func defaultPacketLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "packets"
	}
	return filepath.Join(home, ".local", "state", "reliquary", "packets")
}
