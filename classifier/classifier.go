// Package classifier turns transport-level (topic, payload) pairs into
// semantic calls on the statistics engine. It owns the topic grammar and
// the payload parsing rules; the engine never sees raw wire data.
package classifier

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Alex-Pennington/splitterstats/metric"
)

// Sink receives classified telemetry. Implemented by the statistics
// engine; every method marshals into the engine's lock.
type Sink interface {
	HandleSequenceEvent(kind EventKind, ts time.Time)
	HandleSequenceStatus(stage Stage, ts time.Time)
	HandleBasketExchange(ts time.Time)
	HandlePressureReading(value float64, sensor string, ts time.Time)
	HandleFuelLevel(value float64, ts time.Time)
	HandleTemperatureReading(value float64, sensor string, ts time.Time)
	HandleGeneralReading(topic string, value float64, ts time.Time)
}

// operatorPin is the controller input wired to the operator signal button
const operatorPin = "8"

// Classifier routes raw messages by topic suffix and feeds the sink
type Classifier struct {
	sink      Sink
	logger    *slog.Logger
	transport string
	metrics   *metric.Metrics

	// warnLimiter keeps a flood of unknown events or garbage payloads
	// from drowning the log.
	warnLimiter *rate.Limiter
}

// Option configures a Classifier
type Option func(*Classifier)

// WithMetrics attaches ingest metrics, labeled with the transport name
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Classifier) {
		c.metrics = m
	}
}

// New creates a classifier delivering to sink. The transport name labels
// log records and metrics ("mqtt", "nats").
func New(sink Sink, logger *slog.Logger, transport string, opts ...Option) *Classifier {
	c := &Classifier{
		sink:        sink,
		logger:      logger.With("component", "classifier", "transport", transport),
		transport:   transport,
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Route classifies one raw message and dispatches it to the sink.
// Malformed payloads and unknown event names are logged and dropped;
// Route never returns an error to the transport.
func (c *Classifier) Route(topic string, payload []byte, ts time.Time) {
	body := strings.TrimSpace(string(payload))

	switch {
	case strings.HasSuffix(topic, "/sequence/event"):
		c.routeSequenceEvent(body, ts)

	case strings.HasSuffix(topic, "/sequence/status"):
		c.routeSequenceStatus(body, ts)

	case strings.HasSuffix(topic, "/signals/basket_exchange"):
		if ParseBool(body) {
			c.received("basket-exchange")
			c.sink.HandleBasketExchange(ts)
		}

	case strings.Contains(topic, "/pressure/") || strings.HasSuffix(topic, "/pressure"):
		c.routePressure(topic, body, ts)

	case strings.HasSuffix(topic, "/fuel_level"):
		value, ok := c.parseFloat(topic, body)
		if !ok {
			return
		}
		c.received("fuel-level")
		c.sink.HandleFuelLevel(value, ts)

	case strings.Contains(topic, "/temperature/"):
		value, ok := c.parseFloat(topic, body)
		if !ok {
			return
		}
		c.received("temperature")
		c.sink.HandleTemperatureReading(value, lastSegment(topic), ts)

	case strings.Contains(topic, "/inputs/"):
		c.routeInputPin(topic, body)

	default:
		c.routeGeneral(topic, body, ts)
	}
}

func (c *Classifier) routeSequenceEvent(body string, ts time.Time) {
	kind, ok := ParseEventKind(body)
	if !ok {
		c.dropped("unknown_event")
		if c.warnLimiter.Allow() {
			c.logger.Warn("unknown sequence event", "event", body)
		}
		return
	}
	c.received(string(kind))
	c.sink.HandleSequenceEvent(kind, ts)
}

func (c *Classifier) routeSequenceStatus(body string, ts time.Time) {
	stage, ok := ParseStage(body)
	if !ok {
		c.dropped("unknown_status")
		if c.warnLimiter.Allow() {
			c.logger.Warn("unknown sequence status", "status", body)
		}
		return
	}
	c.received("status")
	c.sink.HandleSequenceStatus(stage, ts)
}

func (c *Classifier) routePressure(topic, body string, ts time.Time) {
	value, ok := c.parseFloat(topic, body)
	if !ok {
		return
	}
	// Bare "/pressure" suffix is the pre-rename firmware topic
	sensor := "hydraulic"
	if strings.Contains(topic, "/pressure/") {
		sensor = lastSegment(topic)
	}
	c.received("pressure")
	c.sink.HandlePressureReading(value, sensor, ts)
}

// routeInputPin handles controller GPIO change notifications. Only the
// operator signal pin is meaningful; the rest are diagnostic.
func (c *Classifier) routeInputPin(topic, body string) {
	pin := lastSegment(topic)
	c.logger.Debug("input pin changed", "pin", pin, "state", body)

	if pin == operatorPin && (ParseBool(body) || body == "ON" || body == "HIGH") {
		c.logger.Info("operator signal detected", "pin", pin)
	}
}

// routeGeneral feeds unmatched numeric telemetry into the per-topic
// statistics tracker. JSON objects contribute one reading per numeric
// field, keyed topic/field.
func (c *Classifier) routeGeneral(topic, body string, ts time.Time) {
	if strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[") {
		var doc map[string]any
		if err := json.Unmarshal([]byte(body), &doc); err == nil {
			for key, raw := range doc {
				if value, ok := raw.(float64); ok {
					c.received("general")
					c.sink.HandleGeneralReading(topic+"/"+key, value, ts)
				}
			}
			return
		}
	}

	value, err := strconv.ParseFloat(body, 64)
	if err != nil {
		c.logger.Debug("non-numeric message", "topic", topic, "payload", body)
		return
	}
	c.received("general")
	c.sink.HandleGeneralReading(topic, value, ts)
}

func (c *Classifier) parseFloat(topic, body string) (float64, bool) {
	value, err := strconv.ParseFloat(body, 64)
	if err != nil {
		c.dropped("bad_payload")
		if c.warnLimiter.Allow() {
			c.logger.Warn("unparseable numeric payload", "topic", topic, "payload", body)
		}
		return 0, false
	}
	return value, true
}

func (c *Classifier) received(kind string) {
	if c.metrics != nil {
		c.metrics.RecordEventReceived(c.transport, kind)
	}
}

func (c *Classifier) dropped(reason string) {
	if c.metrics != nil {
		c.metrics.RecordEventDropped(c.transport, reason)
	}
}

func lastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
