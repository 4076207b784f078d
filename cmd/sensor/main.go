package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/telemetry-collector/internal/config"
	"github.com/taoyao-code/telemetry-collector/internal/logging"
	"github.com/taoyao-code/telemetry-collector/internal/sensor"
)

func main() {
	target := flag.String("target", "127.0.0.1:5005", "collector UDP address")
	device := flag.Uint("device", 1, "first device id")
	devices := flag.Int("devices", 1, "number of simulated devices")
	interval := flag.Duration("interval", time.Second, "mean send interval")
	jitter := flag.Float64("jitter", 0.1, "interval jitter ratio")
	heartbeat := flag.Float64("heartbeat", 0.2, "heartbeat ratio")
	readings := flag.Int("readings", 5, "readings per DATA frame")
	count := flag.Int("count", 0, "frames per device after INIT (0 = until interrupted)")
	duration := flag.Duration("duration", 0, "stop after this long (0 = no limit)")
	seed := flag.Int64("seed", 0, "random seed (0 = time based)")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	log := logging.NewWriterLogger(cfgpkg.LoggingConfig{Level: *level, Format: "console"}, os.Stderr)
	defer func() { _ = log.Sync() }()

	if *device > 0xFFFF {
		log.Fatal("device id out of range", zap.Uint("device", *device))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	cfg := sensor.Config{
		Target:         *target,
		DeviceID:       uint16(*device),
		Interval:       *interval,
		Jitter:         *jitter,
		HeartbeatRatio: *heartbeat,
		Readings:       *readings,
		Count:          *count,
		Seed:           *seed,
	}
	sent, err := sensor.Fleet(ctx, cfg, *devices, log)
	if err != nil {
		log.Fatal("sensor failed", zap.Error(err))
	}
	log.Info("sensor finished", zap.Int("frames_sent", sent), zap.Int("devices", *devices))
}
