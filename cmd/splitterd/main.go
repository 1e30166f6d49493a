// Package main implements the entry point for splitterd, the log
// splitter production statistics service. It subscribes to controller
// telemetry over MQTT (and optionally NATS), maintains per-basket
// production statistics, and serves them over an HTTP gateway.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Alex-Pennington/splitterstats/classifier"
	"github.com/Alex-Pennington/splitterstats/component"
	"github.com/Alex-Pennington/splitterstats/config"
	"github.com/Alex-Pennington/splitterstats/gateway/httpserver"
	"github.com/Alex-Pennington/splitterstats/input/mqttinput"
	"github.com/Alex-Pennington/splitterstats/input/natsinput"
	"github.com/Alex-Pennington/splitterstats/metric"
	"github.com/Alex-Pennington/splitterstats/snapshot"
	"github.com/Alex-Pennington/splitterstats/stats"
)

// Build information constants
const (
	Version = "1.0.0"
	appName = "splitterd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}

	if cliCfg.Validate {
		fmt.Println("configuration is valid")
		return nil
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	slog.Info("starting splitterd",
		"version", Version,
		"config_path", cliCfg.ConfigPath,
		"snapshot_path", cfg.Snapshot.Path)

	registry := metric.NewMetricsRegistry()
	metrics := registry.CoreMetrics()

	store := snapshot.NewFileStore(cfg.Snapshot.Path)
	engine := stats.New(store, stats.Config{
		SplitsPerBasket:    cfg.Stats.SplitsPerBasket,
		ExchangeDebounce:   cfg.Stats.ExchangeDebounce,
		PressureHistory:    cfg.Stats.PressureHistory,
		FuelHistory:        cfg.Stats.FuelHistory,
		TemperatureHistory: cfg.Stats.TemperatureHistory,
	}, logger, stats.WithMetrics(metrics), stats.WithRingMetrics(registry.PrometheusRegistry()))

	components, err := buildComponents(cfg, engine, registry, metrics, logger)
	if err != nil {
		return err
	}

	return runWithSignalHandling(cfg, engine, components, cliCfg.ShutdownTimeout, logger)
}

// buildComponents assembles the transport inputs and the HTTP gateway.
// Each transport gets its own classifier so log records and ingest
// metrics carry the right transport label.
func buildComponents(
	cfg *config.Config,
	engine *stats.Engine,
	registry *metric.MetricsRegistry,
	metrics *metric.Metrics,
	logger *slog.Logger,
) ([]component.Lifecycle, error) {
	var components []component.Lifecycle

	if cfg.MQTT.Enabled {
		components = append(components, mqttinput.NewInput(mqttinput.Deps{
			Name:       "mqtt-input",
			Config:     cfg.MQTT,
			Classifier: classifier.New(engine, logger, "mqtt", classifier.WithMetrics(metrics)),
			Metrics:    metrics,
			Logger:     logger,
		}))
	}

	if cfg.NATS.Enabled {
		components = append(components, natsinput.NewInput(natsinput.Deps{
			Name:       "nats-input",
			Config:     cfg.NATS,
			Classifier: classifier.New(engine, logger, "nats", classifier.WithMetrics(metrics)),
			Metrics:    metrics,
			Logger:     logger,
		}))
	}

	discoverable := make([]component.Discoverable, len(components))
	for i, c := range components {
		discoverable[i] = c
	}

	components = append(components, httpserver.NewServer(httpserver.Deps{
		Name:       "http-gateway",
		Config:     cfg.HTTP,
		Engine:     engine,
		Registry:   registry,
		Logger:     logger,
		Components: discoverable,
	}))

	return components, nil
}

// runWithSignalHandling starts all components, runs the snapshot
// autosave loop, and shuts everything down in reverse order on
// SIGINT/SIGTERM. The final persist happens after the transports stop
// so the snapshot reflects every delivered message.
func runWithSignalHandling(
	cfg *config.Config,
	engine *stats.Engine,
	components []component.Lifecycle,
	shutdownTimeout time.Duration,
	logger *slog.Logger,
) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	// Stop in start order: inputs first so no more telemetry arrives,
	// gateway last so the dashboard stays reachable until the end.
	started := make([]component.Lifecycle, 0, len(components))
	stopStarted := func() {
		for _, c := range started {
			if err := c.Stop(shutdownTimeout); err != nil {
				logger.Warn("component stop failed", "component", c.Meta().Name, "error", err)
			}
		}
	}

	for _, c := range components {
		name := c.Meta().Name
		if err := c.Initialize(); err != nil {
			stopStarted()
			return fmt.Errorf("initialize %s: %w", name, err)
		}
		if err := c.Start(signalCtx); err != nil {
			stopStarted()
			return fmt.Errorf("start %s: %w", name, err)
		}
		started = append(started, c)
	}

	logger.Info("splitterd started", "components", len(started))

	g, gctx := errgroup.WithContext(signalCtx)
	if cfg.Snapshot.SaveInterval > 0 {
		g.Go(func() error {
			return autosave(gctx, engine, cfg.Snapshot.SaveInterval, logger)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("background task failed", "error", err)
	}
	logger.Info("shutdown signal received")

	stopStarted()

	if err := engine.Persist(); err != nil {
		logger.Error("final snapshot failed", "error", err)
		return err
	}
	logger.Info("splitterd stopped")
	return nil
}

// autosave persists the statistics periodically so a crash loses at
// most one interval of counting. Persist failures are logged, not
// fatal; the next tick retries.
func autosave(ctx context.Context, engine *stats.Engine, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := engine.Persist(); err != nil {
				logger.Warn("periodic snapshot failed", "error", err)
			}
		}
	}
}
