package ring

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ringMetrics exposes ring statistics as Prometheus metrics.
type ringMetrics struct {
	appends     prometheus.Counter
	evictions   prometheus.Counter
	utilization prometheus.Gauge
}

func newRingMetrics(reg prometheus.Registerer, prefix string) (*ringMetrics, error) {
	m := &ringMetrics{
		appends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "splitterstats",
			Subsystem: "ring",
			Name:      fmt.Sprintf("%s_appends_total", prefix),
			Help:      "Total items appended to the ring",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "splitterstats",
			Subsystem: "ring",
			Name:      fmt.Sprintf("%s_evictions_total", prefix),
			Help:      "Items evicted due to ring overflow",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "splitterstats",
			Subsystem: "ring",
			Name:      fmt.Sprintf("%s_utilization_ratio", prefix),
			Help:      "Ring usage (0-1)",
		}),
	}

	for _, c := range []prometheus.Collector{m.appends, m.evictions, m.utilization} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *ringMetrics) recordAppend(size, capacity int, evicted bool) {
	m.appends.Inc()
	if evicted {
		m.evictions.Inc()
	}
	m.updateSize(size, capacity)
}

func (m *ringMetrics) updateSize(size, capacity int) {
	if capacity > 0 {
		m.utilization.Set(float64(size) / float64(capacity))
	}
}
