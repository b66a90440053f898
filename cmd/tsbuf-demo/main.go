// Command tsbuf-demo loads a YAML config describing a handful of synthetic
// sensors and destinations, wires them into a tsbuffer.Buffer, drives writes
// on a ticker, and serves Prometheus metrics — the config-loading, process-
// lifecycle role the teacher's cmd/ublk-mem played for a memory-backed ublk
// device, now playing it for a tiered sensor buffer instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/telemetrygw/tsbuffer"
	"github.com/telemetrygw/tsbuffer/internal/logging"
	"github.com/telemetrygw/tsbuffer/internal/telemetry"
)

// Config is the on-disk shape of a tsbuf-demo run.
type Config struct {
	PoolSectors      int      `yaml:"pool_sectors"`
	DiskRoot         string   `yaml:"disk_root"`
	MigrateThreshold float64  `yaml:"migrate_threshold"`
	StopThreshold    float64  `yaml:"stop_threshold"`
	MetricsAddr      string   `yaml:"metrics_addr"`
	Sensors          []Sensor `yaml:"sensors"`
}

// Sensor describes one synthetic data source to drive.
type Sensor struct {
	ID             uint32   `yaml:"id"`
	SamplePeriodMs uint32   `yaml:"sample_period_ms"`
	Destinations   []string `yaml:"destinations"`
}

func loadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func destByName(name string) (tsbuffer.Destination, bool) {
	switch name {
	case "telemetry":
		return tsbuffer.DestTelemetry, true
	case "diagnostics":
		return tsbuffer.DestDiagnostics, true
	case "gateway":
		return tsbuffer.DestGateway, true
	case "ble":
		return tsbuffer.DestBLE, true
	case "can":
		return tsbuffer.DestCAN, true
	default:
		return 0, false
	}
}

func main() {
	configPath := flag.String("config", "tsbuf-demo.yaml", "path to YAML config")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}

	exporter := telemetry.New()
	srv := exporter.Serve(cfg.MetricsAddr)
	defer srv.Close()
	logger.Info("serving metrics", "addr", cfg.MetricsAddr)

	buf, err := tsbuffer.Init(tsbuffer.BufferParams{
		PoolSectors:      cfg.PoolSectors,
		DiskRoot:         cfg.DiskRoot,
		MigrateThreshold: cfg.MigrateThreshold,
		StopThreshold:    cfg.StopThreshold,
		Observer:         exporter,
	})
	if err != nil {
		logger.Error("failed to init buffer", "error", err)
		os.Exit(1)
	}
	defer buf.Close()

	type driven struct {
		sensor tsbuffer.Sensor
		state  *tsbuffer.SensorState
	}
	var sensors []driven
	for _, s := range cfg.Sensors {
		sensor := tsbuffer.Sensor{ID: s.ID, SamplePeriodMs: s.SamplePeriodMs}
		if err := buf.ConfigureSensor(sensor); err != nil {
			logger.Error("invalid sensor config", "sensor", s.ID, "error", err)
			os.Exit(1)
		}
		state := tsbuffer.NewSensorState()
		for _, name := range s.Destinations {
			dest, ok := destByName(name)
			if !ok {
				logger.Error("unknown destination", "name", name)
				os.Exit(1)
			}
			buf.ActivateSensor(&state, dest)
		}
		sensors = append(sensors, driven{sensor: sensor, state: &state})
		logger.Info("configured sensor", "id", s.ID, "tsd", sensor.IsTSD())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, d := range sensors {
					value := uint32(rand.Intn(1000))
					var werr error
					if d.sensor.IsTSD() {
						werr = buf.WriteTSD(d.sensor, d.state, value)
					} else {
						werr = buf.WriteEVT(d.sensor, d.state, value, uint64(time.Now().UnixMilli()))
					}
					if werr != nil {
						logger.Warn("write failed", "sensor", d.sensor.ID, "error", werr)
					}
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	buf.PowerEvent()
	for _, d := range sensors {
		n, err := buf.Shutdown(d.sensor.ID, d.state, 2*time.Second)
		if err != nil {
			logger.Error("shutdown flush failed", "sensor", d.sensor.ID, "error", err)
			continue
		}
		logger.Info("flushed sensor on shutdown", "sensor", d.sensor.ID, "sectors", n)
	}
}
