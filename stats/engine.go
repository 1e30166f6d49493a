// Package stats implements the production statistics engine: the
// stateful aggregation of sequence events into cycles, baskets,
// cumulative counters and derived rates, persisted across restarts.
package stats

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Alex-Pennington/splitterstats/classifier"
	"github.com/Alex-Pennington/splitterstats/errors"
	"github.com/Alex-Pennington/splitterstats/metric"
	"github.com/Alex-Pennington/splitterstats/pkg/ring"
	"github.com/Alex-Pennington/splitterstats/snapshot"
)

// Reading is one buffered sensor sample
type Reading struct {
	Timestamp time.Time
	Value     float64
	Sensor    string
}

// Config tunes the engine. Zero values take the production defaults.
type Config struct {
	SplitsPerBasket    int
	ExchangeDebounce   time.Duration
	PressureHistory    int
	FuelHistory        int
	TemperatureHistory int
}

func (c Config) withDefaults() Config {
	if c.SplitsPerBasket <= 0 {
		c.SplitsPerBasket = 60
	}
	if c.PressureHistory <= 0 {
		c.PressureHistory = 1000
	}
	if c.FuelHistory <= 0 {
		c.FuelHistory = 100
	}
	if c.TemperatureHistory <= 0 {
		c.TemperatureHistory = 50
	}
	return c
}

// Engine owns all production state. Every mutation and query runs under
// one exclusive lock; the engine is the serialization point for all
// transports. The only I/O under the lock is the snapshot write, which
// is bounded and infrequent.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	logger *slog.Logger
	store  snapshot.Store

	now     func() time.Time
	metrics *metric.Metrics
	ringReg prometheus.Registerer

	startTime        time.Time
	lastActivityTime time.Time
	lastExchangeTime time.Time

	currentBasket    *Basket
	completedBaskets []*Basket
	stage            classifier.Stage

	totalCycles  int64
	totalSplits  int64
	totalBaskets int64

	pressure    map[string]*ring.Ring[Reading]
	fuel        *ring.Ring[Reading]
	temperature map[string]*ring.Ring[Reading]

	// topics tracks general numeric telemetry outside the production
	// model; it has its own lock.
	topics *TopicTracker
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the engine's time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithMetrics attaches platform metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRingMetrics exposes fuel buffer utilization on the given registerer
func WithRingMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.ringReg = reg
	}
}

// New constructs the engine and attempts to restore state from the
// store. A missing or unreadable snapshot starts fresh and is never
// fatal.
func New(store snapshot.Store, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:         cfg.withDefaults(),
		logger:      logger.With("component", "stats-engine"),
		store:       store,
		now:         time.Now,
		stage:       classifier.StageIdle,
		pressure:    make(map[string]*ring.Ring[Reading]),
		temperature: make(map[string]*ring.Ring[Reading]),
	}
	for _, opt := range opts {
		opt(e)
	}

	var fuelOpts []ring.Option[Reading]
	if e.ringReg != nil {
		fuelOpts = append(fuelOpts, ring.WithMetrics[Reading](e.ringReg, "fuel"))
	}
	fuel, err := ring.New[Reading](e.cfg.FuelHistory, fuelOpts...)
	if err != nil {
		// Metric registration conflicts must not cost the fuel buffer
		e.logger.Warn("fuel buffer metrics unavailable, continuing unmetered", "error", err)
		fuel, _ = ring.New[Reading](e.cfg.FuelHistory)
	}
	e.fuel = fuel
	e.topics = NewTopicTracker(e.now)

	ts := e.now()
	e.startTime = ts
	e.lastActivityTime = ts

	if doc, err := store.Load(); err != nil {
		if errors.IsInvalid(err) {
			e.logger.Warn("snapshot unreadable, starting fresh", "error", err)
		} else {
			e.logger.Info("no snapshot found, starting fresh")
		}
	} else {
		e.restore(doc)
	}

	if e.currentBasket == nil {
		e.currentBasket = NewBasket(ts)
		e.logger.Info("started new basket session", "basket_id", e.currentBasket.ID)
	}
	e.syncTotals()
	return e
}

// ensure the basket invariant inside the lock
func (e *Engine) ensureBasket(ts time.Time) {
	if e.currentBasket == nil {
		e.currentBasket = NewBasket(ts)
		e.logger.Info("started new basket session", "basket_id", e.currentBasket.ID)
	}
}

// wireReason converts a canonical event kind back to the underscore
// wire form used in persisted abort reasons.
func wireReason(kind classifier.EventKind) string {
	return strings.ReplaceAll(string(kind), "-", "_")
}

// handledEvent reports whether kind is in the engine's event table.
// Unknown kinds must not touch the session, not even its activity clock.
func handledEvent(kind classifier.EventKind) bool {
	switch kind {
	case classifier.EventCycleStart, classifier.EventExtendStart,
		classifier.EventExtendComplete, classifier.EventRetractStart,
		classifier.EventRetractComplete, classifier.EventCycleComplete,
		classifier.EventExtendLimitReached, classifier.EventRetractLimitReach,
		classifier.EventSafetyStop, classifier.EventEmergencyStop,
		classifier.EventAbort, classifier.EventTimeout,
		classifier.EventSafetyClear, classifier.EventExtendValveOn,
		classifier.EventRetractValveOn, classifier.EventSequenceStart,
		classifier.EventSequenceEnd:
		return true
	}
	return false
}

// HandleSequenceEvent applies one sequence event to the state machine
func (e *Engine) HandleSequenceEvent(kind classifier.EventKind, ts time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !handledEvent(kind) {
		e.logger.Warn("unknown sequence event", "event", kind)
		return
	}

	started := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.RecordProcessingDuration("sequence_event", time.Since(started))
		}
	}()

	e.lastActivityTime = ts
	e.ensureBasket(ts)
	e.currentBasket.MarkActivity(ts)

	basket := e.currentBasket
	cycle := basket.CurrentCycle
	open := cycle != nil && !cycle.IsComplete()

	switch kind {
	case classifier.EventCycleStart, classifier.EventExtendStart:
		c := basket.StartNewCycle(ts)
		c.StartExtend(ts)
		e.totalCycles++
		e.stage = classifier.StageExtending
		e.logger.Info("started production cycle", "cycle", e.totalCycles)

	case classifier.EventExtendComplete:
		if open {
			cycle.FinishExtend(ts)
			cycle.StartRetract(ts)
			e.stage = classifier.StageRetracting
		}

	case classifier.EventRetractStart:
		if open {
			if cycle.RetractStart.IsZero() {
				cycle.StartRetract(ts)
			}
			e.stage = classifier.StageRetracting
		}

	case classifier.EventRetractComplete, classifier.EventCycleComplete:
		if open {
			e.completeSplit(cycle, ts)
		}

	case classifier.EventExtendLimitReached:
		if open && cycle.ExtendComplete.IsZero() {
			cycle.FinishExtend(ts)
			e.stage = classifier.StageRetracting
		}

	case classifier.EventRetractLimitReach:
		if open {
			e.completeSplit(cycle, ts)
		}

	case classifier.EventSafetyStop, classifier.EventEmergencyStop,
		classifier.EventAbort, classifier.EventTimeout:
		if open {
			reason := wireReason(kind)
			cycle.Abort(reason, ts)
			e.stage = classifier.StageIdle
			e.logger.Warn("cycle aborted", "reason", reason)
		}

	case classifier.EventSafetyClear:
		e.logger.Info("safety cleared")

	case classifier.EventExtendValveOn, classifier.EventRetractValveOn:
		e.logger.Debug("valve event", "event", kind)

	case classifier.EventSequenceStart:
		e.logger.Debug("sequence started")

	case classifier.EventSequenceEnd:
		e.stage = classifier.StageIdle
	}

	e.syncTotals()
}

// completeSplit closes the cycle as a successful split. Runs inside the
// lock.
func (e *Engine) completeSplit(cycle *Cycle, ts time.Time) {
	cycle.FinishRetract(ts)
	e.totalSplits++
	e.stage = classifier.StageIdle
	// Gap until the next event counts as idle
	e.currentBasket.MarkIdle(ts)
	e.logger.Info("completed split", "split", e.totalSplits,
		"basket_splits", e.currentBasket.SplitCount())

	e.persistLocked()

	if e.currentBasket.SplitCount() >= e.cfg.SplitsPerBasket {
		e.logger.Info("basket full, auto-triggering exchange",
			"splits", e.currentBasket.SplitCount())
		e.exchangeLocked(ts)
	}
}

// HandleSequenceStatus records the controller-reported stage. Status
// reports are advisory and do not count as operator activity.
func (e *Engine) HandleSequenceStatus(stage classifier.Stage, _ time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stage = stage
	if e.metrics != nil {
		e.metrics.RecordStage(string(stage), classifier.Stages())
	}
}

// HandleBasketExchange processes an external basket-exchange signal.
// Duplicate signals inside the debounce window are dropped, so a bounced
// switch cannot close two baskets.
func (e *Engine) HandleBasketExchange(ts time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.lastExchangeTime.IsZero() && ts.Sub(e.lastExchangeTime) < e.cfg.ExchangeDebounce {
		e.logger.Debug("basket exchange signal debounced",
			"since_last", ts.Sub(e.lastExchangeTime))
		return
	}
	e.lastActivityTime = ts
	e.exchangeLocked(ts)
	e.syncTotals()
}

// exchangeLocked closes the current basket and starts a new one.
// Runs inside the lock.
func (e *Engine) exchangeLocked(ts time.Time) {
	e.ensureBasket(ts)
	basket := e.currentBasket
	e.lastExchangeTime = ts

	if latest, ok := e.fuel.Latest(); ok {
		basket.SettleFuel(latest.Value)
	}

	if basket.Complete(ts) {
		// Open cycle force-completed as a normal retract-complete
		e.totalSplits++
	}

	e.completedBaskets = append(e.completedBaskets, basket)
	e.totalBaskets++
	e.stage = classifier.StageIdle

	e.logger.Info("completed basket",
		"basket", e.totalBaskets,
		"basket_id", basket.ID,
		"splits", basket.SplitCount(),
		"duration", basket.Duration(ts),
		"fuel_consumed", basket.FuelConsumed)

	e.currentBasket = NewBasket(ts)
	e.logger.Info("started new basket session", "basket_id", e.currentBasket.ID)

	e.persistLocked()
}

// HandlePressureReading buffers a pressure sample
func (e *Engine) HandlePressureReading(value float64, sensor string, ts time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.pressure[sensor]
	if !ok {
		r, _ = ring.New[Reading](e.cfg.PressureHistory)
		e.pressure[sensor] = r
	}
	r.Append(Reading{Timestamp: ts, Value: value, Sensor: sensor})
	if e.metrics != nil {
		e.metrics.RecordReadingStored("pressure_" + sensor)
	}
}

// HandleFuelLevel buffers a fuel sample and lazily captures the current
// basket's start fuel level.
func (e *Engine) HandleFuelLevel(value float64, ts time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.fuel.Append(Reading{Timestamp: ts, Value: value})
	e.ensureBasket(ts)
	e.currentBasket.RecordFuelLevel(value)
	if e.metrics != nil {
		e.metrics.RecordReadingStored("fuel")
	}
}

// HandleTemperatureReading buffers a temperature sample
func (e *Engine) HandleTemperatureReading(value float64, sensor string, ts time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.temperature[sensor]
	if !ok {
		r, _ = ring.New[Reading](e.cfg.TemperatureHistory)
		e.temperature[sensor] = r
	}
	r.Append(Reading{Timestamp: ts, Value: value, Sensor: sensor})
	if e.metrics != nil {
		e.metrics.RecordReadingStored("temperature_" + sensor)
	}
}

// HandleGeneralReading feeds unmatched numeric telemetry into the
// per-topic tracker. Does not take the engine lock.
func (e *Engine) HandleGeneralReading(topic string, value float64, ts time.Time) {
	e.topics.Add(topic, value, ts)
}

// TopicStats returns the general per-topic telemetry tracker
func (e *Engine) TopicStats() *TopicTracker {
	return e.topics
}

// StartBreak suspends idle accounting for the current basket
func (e *Engine) StartBreak() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ts := e.now()
	e.ensureBasket(ts)
	if !e.currentBasket.StartBreak(ts) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted,
			"Engine", "StartBreak", "break already in progress")
	}
	e.logger.Info("break started")
	return nil
}

// EndBreak resumes idle accounting
func (e *Engine) EndBreak() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ts := e.now()
	e.ensureBasket(ts)
	if !e.currentBasket.EndBreak(ts) {
		return errors.WrapInvalid(errors.ErrNotStarted,
			"Engine", "EndBreak", "no break in progress")
	}
	e.logger.Info("break ended", "break_time", e.currentBasket.BreakTime)
	return nil
}

// CompleteBasketNow manually triggers a basket exchange, subject to the
// same debounce as the external signal.
func (e *Engine) CompleteBasketNow() {
	e.HandleBasketExchange(e.now())
}

// Reset clears all history, counters and reading buffers, starts a
// fresh basket and persists the reset state. Administrative and
// irreversible.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.logger.Warn("resetting production statistics")

	ts := e.now()
	e.completedBaskets = nil
	e.totalCycles = 0
	e.totalSplits = 0
	e.totalBaskets = 0
	e.startTime = ts
	e.lastActivityTime = ts
	e.lastExchangeTime = time.Time{}
	e.stage = classifier.StageIdle

	e.pressure = make(map[string]*ring.Ring[Reading])
	e.temperature = make(map[string]*ring.Ring[Reading])
	e.fuel.Clear()
	e.topics.Reset()

	e.currentBasket = NewBasket(ts)
	e.syncTotals()
	e.persistLocked()
}

// Persist writes the current snapshot. Used by the periodic autosaver
// and the shutdown path.
func (e *Engine) Persist() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persist()
}

// persistLocked saves and logs failures without propagating them; a
// failed snapshot must not fail the event that triggered it.
func (e *Engine) persistLocked() {
	if err := e.persist(); err != nil {
		e.logger.Error("snapshot write failed", "error", err)
	}
}

func (e *Engine) persist() error {
	started := time.Now()
	if err := e.store.Save(e.toDocument()); err != nil {
		if e.metrics != nil {
			e.metrics.RecordSnapshotError()
		}
		return fmt.Errorf("stats.Engine: persist snapshot: %w", err)
	}
	if e.metrics != nil {
		e.metrics.RecordSnapshotWrite(time.Since(started))
	}
	return nil
}

func (e *Engine) syncTotals() {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordTotals(e.totalCycles, e.totalSplits, e.totalBaskets)
	e.metrics.RecordStage(string(e.stage), classifier.Stages())
}
