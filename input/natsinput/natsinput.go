// Package natsinput bridges telemetry published on NATS core subjects
// into the classifier. Subjects mirror the MQTT topic tree with dots in
// place of slashes: "splitter.sequence.event" carries the same payloads
// as "splitter/sequence/event".
package natsinput

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Alex-Pennington/splitterstats/classifier"
	"github.com/Alex-Pennington/splitterstats/component"
	"github.com/Alex-Pennington/splitterstats/config"
	"github.com/Alex-Pennington/splitterstats/errors"
	"github.com/Alex-Pennington/splitterstats/metric"
	"github.com/Alex-Pennington/splitterstats/pkg/retry"
)

// Deps holds runtime dependencies for the NATS input component
type Deps struct {
	Name       string
	Config     config.NATSConfig
	Classifier *classifier.Classifier
	Metrics    *metric.Metrics
	Logger     *slog.Logger
}

// Input is the NATS ingest component
type Input struct {
	name       string
	cfg        config.NATSConfig
	classifier *classifier.Classifier
	metrics    *metric.Metrics
	logger     *slog.Logger

	retryConfig retry.Config

	mu        sync.RWMutex
	conn      *nats.Conn
	sub       *nats.Subscription
	running   atomic.Bool
	startTime time.Time

	messagesReceived atomic.Int64
	bytesReceived    atomic.Int64
	errorCount       atomic.Int64
	lastActivity     atomic.Value // stores time.Time
	lastError        atomic.Value // stores string
}

var _ component.Lifecycle = (*Input)(nil)

// NewInput creates the NATS input component
func NewInput(deps Deps) *Input {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	in := &Input{
		name:        deps.Name,
		cfg:         deps.Config,
		classifier:  deps.Classifier,
		metrics:     deps.Metrics,
		logger:      logger.With("component", "nats-input"),
		retryConfig: retry.Persistent(),
		startTime:   time.Now(),
	}
	in.lastActivity.Store(time.Time{})
	in.lastError.Store("")
	return in
}

// Meta returns the component metadata
func (in *Input) Meta() component.Metadata {
	name := in.name
	if name == "" {
		name = "nats-input"
	}
	return component.Metadata{
		Name:        name,
		Type:        "input",
		Description: fmt.Sprintf("NATS ingest on %s.>", in.cfg.SubjectPrefix),
		Version:     "1.0.0",
	}
}

// Health returns the current health status
func (in *Input) Health() component.HealthStatus {
	in.mu.RLock()
	connected := in.conn != nil && in.conn.IsConnected()
	in.mu.RUnlock()

	lastErr, _ := in.lastError.Load().(string)
	return component.HealthStatus{
		Healthy:    in.running.Load() && connected,
		LastCheck:  time.Now(),
		ErrorCount: int(in.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     time.Since(in.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (in *Input) DataFlow() component.FlowMetrics {
	messages := in.messagesReceived.Load()
	bytes := in.bytesReceived.Load()
	errorCount := in.errorCount.Load()
	lastActivity, _ := in.lastActivity.Load().(time.Time)

	var perSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(in.startTime).Seconds(); uptime > 0 {
		perSecond = float64(messages) / uptime
		bytesPerSecond = float64(bytes) / uptime
	}
	if messages > 0 {
		errorRate = float64(errorCount) / float64(messages)
	}

	return component.FlowMetrics{
		MessagesPerSecond: perSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates configuration
func (in *Input) Initialize() error {
	if len(in.cfg.URLs) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"nats-input", "Initialize", "server URLs required")
	}
	if in.cfg.SubjectPrefix == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"nats-input", "Initialize", "subject prefix required")
	}
	if in.classifier == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"nats-input", "Initialize", "classifier required")
	}
	return nil
}

// Start connects to the NATS servers and subscribes to the telemetry
// subject tree. nats.go handles reconnection internally; the handlers
// keep the broker metrics current.
func (in *Input) Start(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.running.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted,
			"nats-input", "Start", "component already started")
	}

	opts := []nats.Option{
		nats.Name(in.name),
		nats.MaxReconnects(in.cfg.MaxReconnects),
		nats.ReconnectWait(in.cfg.ReconnectWait),
		nats.DisconnectErrHandler(in.handleDisconnect),
		nats.ReconnectHandler(in.handleReconnect),
	}

	connect := func() error {
		conn, err := nats.Connect(strings.Join(in.cfg.URLs, ","), opts...)
		if err != nil {
			return err
		}
		in.conn = conn
		return nil
	}

	if err := retry.Do(ctx, in.retryConfig, connect); err != nil {
		return errors.WrapTransient(err, "nats-input", "Start", "server connection")
	}

	subject := in.cfg.SubjectPrefix + ".>"
	sub, err := in.conn.Subscribe(subject, in.handleMessage)
	if err != nil {
		in.conn.Close()
		in.conn = nil
		return errors.WrapTransient(errors.ErrSubscriptionFailed,
			"nats-input", "Start", subject)
	}
	in.sub = sub

	in.running.Store(true)
	in.startTime = time.Now()
	if in.metrics != nil {
		in.metrics.RecordBrokerStatus("nats", true)
	}
	in.logger.Info("nats input started", "subject", subject)
	return nil
}

// Stop drains the subscription so queued messages reach the engine
// before the connection closes.
func (in *Input) Stop(timeout time.Duration) error {
	if !in.running.Load() {
		return nil
	}
	in.running.Store(false)

	in.mu.Lock()
	defer in.mu.Unlock()

	if in.sub != nil {
		if err := in.sub.Drain(); err != nil {
			in.logger.Warn("subscription drain failed", "error", err)
		}
		in.sub = nil
	}
	if in.conn != nil {
		done := make(chan struct{})
		go func() {
			in.conn.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			in.logger.Warn("nats close timed out")
		}
		in.conn = nil
	}

	if in.metrics != nil {
		in.metrics.RecordBrokerStatus("nats", false)
	}
	in.logger.Info("nats input stopped")
	return nil
}

func (in *Input) handleDisconnect(_ *nats.Conn, err error) {
	if err != nil {
		in.errorCount.Add(1)
		in.lastError.Store(err.Error())
	}
	in.logger.Warn("nats connection lost, reconnecting", "error", err)
	if in.metrics != nil {
		in.metrics.RecordBrokerStatus("nats", false)
	}
}

func (in *Input) handleReconnect(conn *nats.Conn) {
	in.logger.Info("nats reconnected", "server", conn.ConnectedUrlRedacted())
	if in.metrics != nil {
		in.metrics.RecordBrokerStatus("nats", true)
		in.metrics.RecordBrokerReconnect("nats")
	}
}

func (in *Input) handleMessage(msg *nats.Msg) {
	in.messagesReceived.Add(1)
	in.bytesReceived.Add(int64(len(msg.Data)))
	in.lastActivity.Store(time.Now())

	in.classifier.Route(subjectToTopic(msg.Subject), msg.Data, time.Now())
}

// subjectToTopic maps a NATS subject onto the MQTT topic grammar the
// classifier understands. Dots become slashes; token names are shared
// between the two transports.
func subjectToTopic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}
