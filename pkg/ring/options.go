package ring

import "github.com/prometheus/client_golang/prometheus"

// Option configures a Ring using the functional options pattern.
type Option[T any] func(*ringOptions)

type ringOptions struct {
	metricsReg    prometheus.Registerer
	metricsPrefix string
}

// WithMetrics enables Prometheus metrics for the ring, registered with the
// given registerer under the given prefix (e.g. "pressure_readings").
func WithMetrics[T any](reg prometheus.Registerer, prefix string) Option[T] {
	return func(o *ringOptions) {
		o.metricsReg = reg
		o.metricsPrefix = prefix
	}
}

func applyOptions[T any](options ...Option[T]) *ringOptions {
	opts := &ringOptions{}
	for _, option := range options {
		option(opts)
	}
	return opts
}
