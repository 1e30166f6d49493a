// Package metric provides Prometheus-based metrics collection for the
// production statistics service.
//
// A single MetricsRegistry owns the prometheus.Registry and the core
// platform metrics (event ingest, production totals, snapshot persistence,
// broker connectivity). Components register their own metrics through the
// MetricsRegistrar interface, and the HTTP gateway serves the registry
// through Handler().
//
// All core metrics use the namespace "splitterstats":
//   - splitterstats_events_received_total{transport,kind}
//   - splitterstats_production_splits_total
//   - splitterstats_snapshot_writes_total
//   - splitterstats_broker_connected{transport}
package metric
