// Package main implements splitter-sim, a load generator that publishes
// realistic controller telemetry over MQTT. It models the production
// parameters of the real machine: a stroke roughly every 30 seconds,
// 60 splits per basket, a quarter gallon of fuel per basket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type simConfig struct {
	brokerURL       string
	username        string
	password        string
	baseTopic       string
	duration        time.Duration
	speed           float64
	splitsPerBasket int
	avgCycleTime    time.Duration
	abortChance     float64
	startFuel       float64
	fuelPerBasket   float64
}

func parseSimFlags() *simConfig {
	cfg := &simConfig{}

	flag.StringVar(&cfg.brokerURL, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.StringVar(&cfg.username, "username", "", "MQTT username")
	flag.StringVar(&cfg.password, "password", "", "MQTT password")
	flag.StringVar(&cfg.baseTopic, "base-topic", "r4/splitter", "Telemetry base topic")
	flag.DurationVar(&cfg.duration, "duration", 0, "Simulation duration, 0 runs until interrupted")
	flag.Float64Var(&cfg.speed, "speed", 1.0, "Simulation speed multiplier")
	flag.IntVar(&cfg.splitsPerBasket, "splits-per-basket", 60, "Splits per basket")
	flag.DurationVar(&cfg.avgCycleTime, "cycle-time", 30*time.Second, "Average time between strokes")
	flag.Float64Var(&cfg.abortChance, "abort-chance", 0.02, "Probability of an abort event per cycle")
	flag.Float64Var(&cfg.startFuel, "fuel", 10.0, "Starting fuel level in gallons")
	flag.Float64Var(&cfg.fuelPerBasket, "fuel-per-basket", 0.25, "Fuel consumed per basket in gallons")

	flag.Parse()
	return cfg
}

type simulator struct {
	cfg    *simConfig
	client mqtt.Client
	logger *slog.Logger
	rng    *rand.Rand

	stage        string
	fuelLevel    float64
	basketSplits int
	basketStart  time.Time
	totalSplits  int
	totalBaskets int
	sessionStart time.Time
}

func main() {
	cfg := parseSimFlags()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With("service", "splitter-sim")

	if err := run(cfg, logger); err != nil {
		logger.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *simConfig, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.duration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, scaled(cfg.duration, cfg.speed))
		defer cancelTimeout()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.brokerURL).
		SetClientID(fmt.Sprintf("splitter-sim-%d", os.Getpid())).
		SetConnectTimeout(10 * time.Second)
	if cfg.username != "" {
		opts.SetUsername(cfg.username)
		opts.SetPassword(cfg.password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to broker: %w", token.Error())
	}
	defer client.Disconnect(1000)

	logger.Info("simulation starting",
		"broker", cfg.brokerURL,
		"avg_cycle", cfg.avgCycleTime,
		"splits_per_basket", cfg.splitsPerBasket,
		"speed", cfg.speed)

	sim := &simulator{
		cfg:          cfg,
		client:       client,
		logger:       logger,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		stage:        "idle",
		fuelLevel:    cfg.startFuel,
		basketStart:  time.Now(),
		sessionStart: time.Now(),
	}

	go sim.publishPeriodic(ctx)
	sim.loop(ctx)
	sim.report()
	return nil
}

func (s *simulator) loop(ctx context.Context) {
	for {
		if !sleepCtx(ctx, scaled(s.randomCycleTime(), s.cfg.speed)) {
			return
		}
		if s.fuelLevel <= 0 {
			s.logger.Warn("out of fuel, simulation stopped")
			return
		}

		s.runCycle(ctx)

		if s.rng.Float64() < s.cfg.abortChance {
			s.simulateAbort(ctx)
		}

		basketAge := time.Since(s.basketStart)
		if s.basketSplits >= s.cfg.splitsPerBasket || basketAge >= 35*time.Minute {
			s.completeBasket(ctx)
		}
	}
}

// runCycle publishes one extend/retract stroke with pressure readings
// at each phase.
func (s *simulator) runCycle(ctx context.Context) {
	s.publish(s.cfg.baseTopic+"/sequence/event", "cycle_start")

	s.stage = "extending"
	s.publish(s.cfg.baseTopic+"/sequence/status", "extending")
	s.publishPressureBurst(ctx, 3*time.Second+time.Duration(s.rng.Int63n(int64(3*time.Second))))

	s.publish(s.cfg.baseTopic+"/sequence/event", "extend_complete")

	s.stage = "retracting"
	s.publish(s.cfg.baseTopic+"/sequence/status", "retracting")
	s.publishPressureBurst(ctx, 2*time.Second+time.Duration(s.rng.Int63n(int64(2*time.Second))))

	s.publish(s.cfg.baseTopic+"/sequence/event", "retract_complete")

	s.stage = "idle"
	s.publish(s.cfg.baseTopic+"/sequence/status", "idle")

	s.totalSplits++
	s.basketSplits++
	s.fuelLevel = max(0, s.fuelLevel-s.cfg.fuelPerBasket/float64(s.cfg.splitsPerBasket))
	s.publish("monitor/fuel_level", fmt.Sprintf("%.2f", s.fuelLevel))

	s.logger.Info("split completed",
		"total", s.totalSplits,
		"basket_progress", fmt.Sprintf("%d/%d", s.basketSplits, s.cfg.splitsPerBasket))
}

func (s *simulator) simulateAbort(ctx context.Context) {
	events := []string{"abort", "timeout", "safety_stop"}
	event := events[s.rng.Intn(len(events))]
	s.logger.Warn("simulating fault", "event", event)

	s.publish(s.cfg.baseTopic+"/sequence/event", event)
	sleepCtx(ctx, scaled(time.Second, s.cfg.speed))
	s.stage = "idle"
	s.publish(s.cfg.baseTopic+"/sequence/status", "idle")
}

func (s *simulator) completeBasket(ctx context.Context) {
	s.totalBaskets++
	s.logger.Info("basket complete",
		"basket", s.totalBaskets,
		"splits", s.basketSplits,
		"duration", time.Since(s.basketStart).Round(time.Second))

	// Exchange signal followed by the operator button on pin 8
	s.publish("controller/signals/basket_exchange", "1")
	sleepCtx(ctx, scaled(500*time.Millisecond, s.cfg.speed))
	s.publish("controller/signals/basket_exchange", "0")

	s.publish("controller/inputs/8", "1")
	sleepCtx(ctx, scaled(200*time.Millisecond, s.cfg.speed))
	s.publish("controller/inputs/8", "0")

	s.basketSplits = 0
	s.basketStart = time.Now()

	// Operator pause while swapping baskets
	pause := 5*time.Second + time.Duration(s.rng.Int63n(int64(10*time.Second)))
	sleepCtx(ctx, scaled(pause, s.cfg.speed))
}

// publishPeriodic emits background sensor readings every 10 seconds,
// independent of the cycle loop.
func (s *simulator) publishPeriodic(ctx context.Context) {
	ticker := time.NewTicker(scaled(10*time.Second, s.cfg.speed))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publish(s.cfg.baseTopic+"/pressure/hydraulic_system",
				fmt.Sprintf("%.1f", s.pressureForStage()))
			s.publish(s.cfg.baseTopic+"/pressure/hydraulic_filter",
				fmt.Sprintf("%.1f", 10+s.rng.Float64()*15))
			s.publish("monitor/fuel_level", fmt.Sprintf("%.2f", s.fuelLevel))
			s.publish(s.cfg.baseTopic+"/sequence/status", s.stage)
		}
	}
}

func (s *simulator) publishPressureBurst(ctx context.Context, duration time.Duration) {
	steps := int(duration / (500 * time.Millisecond))
	for i := 0; i < steps; i++ {
		s.publish(s.cfg.baseTopic+"/pressure/hydraulic_system",
			fmt.Sprintf("%.1f", s.pressureForStage()))
		if !sleepCtx(ctx, scaled(500*time.Millisecond, s.cfg.speed)) {
			return
		}
	}
}

func (s *simulator) pressureForStage() float64 {
	switch s.stage {
	case "extending":
		return max(0, 1800+s.rng.Float64()*600-200)
	case "retracting":
		return max(0, 1600+s.rng.Float64()*450-150)
	case "pressure_relief":
		return max(0, 200+s.rng.Float64()*150-50)
	default:
		return max(0, 50+s.rng.Float64()*20-10)
	}
}

// randomCycleTime varies the stroke interval by ±30 percent with a
// 10 second floor, matching observed operator pacing.
func (s *simulator) randomCycleTime() time.Duration {
	variation := 1 + (s.rng.Float64()*0.6 - 0.3)
	d := time.Duration(float64(s.cfg.avgCycleTime) * variation)
	if d < 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

func (s *simulator) publish(topic, payload string) {
	token := s.client.Publish(topic, 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		s.logger.Error("publish failed", "topic", topic, "error", err)
	}
}

func (s *simulator) report() {
	hours := time.Since(s.sessionStart).Hours()
	s.logger.Info("simulation complete",
		"duration_hours", fmt.Sprintf("%.2f", hours),
		"total_baskets", s.totalBaskets,
		"total_splits", s.totalSplits,
		"fuel_remaining", fmt.Sprintf("%.2f", s.fuelLevel))
	if hours > 0 {
		s.logger.Info("production rates",
			"splits_per_hour", fmt.Sprintf("%.1f", float64(s.totalSplits)/hours),
			"baskets_per_hour", fmt.Sprintf("%.1f", float64(s.totalBaskets)/hours))
	}
}

func scaled(d time.Duration, speed float64) time.Duration {
	if speed <= 0 {
		return d
	}
	return time.Duration(float64(d) / speed)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
