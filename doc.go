// Package splitterstats tracks production statistics for a hydraulic
// firewood splitter. Controller telemetry arrives over MQTT or NATS, is
// classified into semantic events, and drives a stateful engine that
// counts splits, cycles, and baskets, tracks fuel and idle time, and
// persists its state to a JSON snapshot. An HTTP gateway serves the
// statistics to the shop dashboard.
//
// The service binary lives in cmd/splitterd; cmd/splitter-sim publishes
// synthetic telemetry for load and integration testing.
package splitterstats
