package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sorayoru/reliquary/internal/capture"
	"github.com/sorayoru/reliquary/internal/config"
	"github.com/sorayoru/reliquary/internal/daemon"
	"github.com/sorayoru/reliquary/internal/gamedb"
	"github.com/sorayoru/reliquary/internal/keys"
	"github.com/sorayoru/reliquary/internal/monitor"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fatal(err)
	}
	flag.StringVar(&cfg.SocketPath, "socket", cfg.SocketPath, "UDS path for reliquaryd")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "game database path")
	portA := flag.Uint("port-a", uint(cfg.CapturePortA), "first capture port")
	portB := flag.Uint("port-b", uint(cfg.CapturePortB), "second capture port")
	flag.BoolVar(&cfg.LogPackets, "log-packets", cfg.LogPackets, "write decoded command bodies to the packet log dir")
	flag.Parse()
	cfg.CapturePortA = uint16(*portA)
	cfg.CapturePortB = uint16(*portB)

	logger := log.New(os.Stderr, "[RELIQUARYD] ", log.LstdFlags)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := gamedb.Open(ctx, cfg.DBPath)
	if err != nil {
		fatal(err)
	}
	defer store.Close() //nolint:errcheck
	if err := gamedb.ApplyMigrations(ctx, store.DB()); err != nil {
		fatal(err)
	}

	keyTable, err := keys.Load()
	if err != nil {
		fatal(err)
	}

	if cfg.LogPackets {
		if err := os.MkdirAll(cfg.PacketLogDir, 0o700); err != nil {
			fatal(fmt.Errorf("create packet log dir: %w", err))
		}
	}

	mon := monitor.New(monitor.Options{
		Keys:           keyTable,
		DB:             store,
		Source:         capture.UDPSource{},
		PortA:          cfg.CapturePortA,
		PortB:          cfg.CapturePortB,
		FrameQueueSize: cfg.FrameQueueSize,
		PacketLogDir:   cfg.PacketLogDir,
		LogPackets:     cfg.LogPackets,
		Logger:         logger,
	})
	go mon.Run(ctx)

	logger.Printf("listening on %s, capture ports %d/%d", cfg.SocketPath, cfg.CapturePortA, cfg.CapturePortB)
	srv := daemon.NewServer(cfg, mon)
	if err := srv.Start(ctx); err != nil && err != context.Canceled {
		fatal(err)
	}
}

func fatal(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "reliquaryd: %v\n", err)
	os.Exit(1)
}
