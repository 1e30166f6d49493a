package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the platform-level metrics shared across components.
// Engine-internal gauges (splits, baskets) are synced by the stats engine.
type Metrics struct {
	// Telemetry ingest metrics
	EventsReceived     *prometheus.CounterVec
	EventsDropped      *prometheus.CounterVec
	ReadingsStored     *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec

	// Production totals (mirrors of engine counters for dashboards)
	SplitsTotal  prometheus.Gauge
	BasketsTotal prometheus.Gauge
	CyclesTotal  prometheus.Gauge
	CurrentStage *prometheus.GaugeVec

	// Snapshot persistence metrics
	SnapshotWrites   prometheus.Counter
	SnapshotErrors   prometheus.Counter
	SnapshotDuration prometheus.Histogram

	// Broker connectivity
	BrokerConnected  *prometheus.GaugeVec
	BrokerReconnects *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "splitterstats",
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Total telemetry events received by kind",
			},
			[]string{"transport", "kind"},
		),

		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "splitterstats",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Telemetry events dropped (unknown kind, bad payload)",
			},
			[]string{"transport", "reason"},
		),

		ReadingsStored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "splitterstats",
				Subsystem: "readings",
				Name:      "stored_total",
				Help:      "Sensor readings appended to the engine buffers",
			},
			[]string{"sensor"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "splitterstats",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Event processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		SplitsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "splitterstats",
				Subsystem: "production",
				Name:      "splits_total",
				Help:      "Completed splits across all baskets",
			},
		),

		BasketsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "splitterstats",
				Subsystem: "production",
				Name:      "baskets_total",
				Help:      "Completed baskets",
			},
		),

		CyclesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "splitterstats",
				Subsystem: "production",
				Name:      "cycles_total",
				Help:      "Cycles attempted (including aborted)",
			},
		),

		CurrentStage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "splitterstats",
				Subsystem: "production",
				Name:      "stage",
				Help:      "Current sequence stage (1 for the active stage, 0 otherwise)",
			},
			[]string{"stage"},
		),

		SnapshotWrites: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "splitterstats",
				Subsystem: "snapshot",
				Name:      "writes_total",
				Help:      "Snapshot files written",
			},
		),

		SnapshotErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "splitterstats",
				Subsystem: "snapshot",
				Name:      "errors_total",
				Help:      "Snapshot read/write failures",
			},
		),

		SnapshotDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "splitterstats",
				Subsystem: "snapshot",
				Name:      "write_duration_seconds",
				Help:      "Snapshot write duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
		),

		BrokerConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "splitterstats",
				Subsystem: "broker",
				Name:      "connected",
				Help:      "Broker connection status (0=disconnected, 1=connected)",
			},
			[]string{"transport"},
		),

		BrokerReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "splitterstats",
				Subsystem: "broker",
				Name:      "reconnects_total",
				Help:      "Total broker reconnections",
			},
			[]string{"transport"},
		),
	}
}

// RecordEventReceived increments the received-event counter
func (m *Metrics) RecordEventReceived(transport, kind string) {
	m.EventsReceived.WithLabelValues(transport, kind).Inc()
}

// RecordEventDropped increments the dropped-event counter
func (m *Metrics) RecordEventDropped(transport, reason string) {
	m.EventsDropped.WithLabelValues(transport, reason).Inc()
}

// RecordReadingStored increments the stored-readings counter
func (m *Metrics) RecordReadingStored(sensor string) {
	m.ReadingsStored.WithLabelValues(sensor).Inc()
}

// RecordProcessingDuration records event processing time
func (m *Metrics) RecordProcessingDuration(operation string, duration time.Duration) {
	m.ProcessingDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTotals syncs the production total gauges from engine counters
func (m *Metrics) RecordTotals(cycles, splits, baskets int64) {
	m.CyclesTotal.Set(float64(cycles))
	m.SplitsTotal.Set(float64(splits))
	m.BasketsTotal.Set(float64(baskets))
}

// RecordStage marks the given stage active and all others inactive
func (m *Metrics) RecordStage(active string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == active {
			v = 1.0
		}
		m.CurrentStage.WithLabelValues(s).Set(v)
	}
}

// RecordSnapshotWrite records a successful snapshot write and its duration
func (m *Metrics) RecordSnapshotWrite(duration time.Duration) {
	m.SnapshotWrites.Inc()
	m.SnapshotDuration.Observe(duration.Seconds())
}

// RecordSnapshotError increments the snapshot failure counter
func (m *Metrics) RecordSnapshotError() {
	m.SnapshotErrors.Inc()
}

// RecordBrokerStatus updates broker connection status for a transport
func (m *Metrics) RecordBrokerStatus(transport string, connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.BrokerConnected.WithLabelValues(transport).Set(value)
}

// RecordBrokerReconnect increments the reconnection counter for a transport
func (m *Metrics) RecordBrokerReconnect(transport string) {
	m.BrokerReconnects.WithLabelValues(transport).Inc()
}
