// Package mqttinput subscribes to the controller's MQTT topics and
// feeds every message through the classifier into the statistics engine.
package mqttinput

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Alex-Pennington/splitterstats/classifier"
	"github.com/Alex-Pennington/splitterstats/component"
	"github.com/Alex-Pennington/splitterstats/config"
	"github.com/Alex-Pennington/splitterstats/errors"
	"github.com/Alex-Pennington/splitterstats/metric"
	"github.com/Alex-Pennington/splitterstats/pkg/retry"
)

// Deps holds runtime dependencies for the MQTT input component
type Deps struct {
	Name       string
	Config     config.MQTTConfig
	Classifier *classifier.Classifier
	Metrics    *metric.Metrics
	Logger     *slog.Logger
}

// Input is the MQTT ingest component
type Input struct {
	name       string
	cfg        config.MQTTConfig
	classifier *classifier.Classifier
	metrics    *metric.Metrics
	logger     *slog.Logger

	retryConfig retry.Config

	mu        sync.RWMutex
	client    mqtt.Client
	running   atomic.Bool
	startTime time.Time

	messagesReceived atomic.Int64
	bytesReceived    atomic.Int64
	errorCount       atomic.Int64
	lastActivity     atomic.Value // stores time.Time
	lastError        atomic.Value // stores string
}

var _ component.Lifecycle = (*Input)(nil)

// NewInput creates the MQTT input component
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
		logger:      logger.With("component", "mqtt-input", "broker", deps.Config.BrokerURL),
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
		name = "mqtt-input"
	}
	return component.Metadata{
		Name:        name,
		Type:        "input",
		Description: fmt.Sprintf("MQTT ingest from %s (%s)", in.cfg.BrokerURL, in.cfg.BaseTopic),
		Version:     "1.0.0",
	}
}

// Health returns the current health status
func (in *Input) Health() component.HealthStatus {
	in.mu.RLock()
	connected := in.client != nil && in.client.IsConnectionOpen()
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

// Initialize validates configuration and builds the MQTT client
func (in *Input) Initialize() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.cfg.BrokerURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"mqtt-input", "Initialize", "broker URL required")
	}
	if in.classifier == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"mqtt-input", "Initialize", "classifier required")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(in.cfg.BrokerURL).
		SetClientID(in.cfg.ClientID).
		SetKeepAlive(in.cfg.KeepAlive).
		SetConnectTimeout(in.cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(in.cfg.MaxReconnect).
		SetOrderMatters(true)

	if in.cfg.Username != "" {
		opts.SetUsername(in.cfg.Username)
		opts.SetPassword(in.cfg.Password)
	}

	opts.SetOnConnectHandler(in.onConnect)
	opts.SetConnectionLostHandler(in.onConnectionLost)

	in.client = mqtt.NewClient(opts)
	return nil
}

// Start connects to the broker. Subscriptions are restored by the
// on-connect handler, so they survive reconnects.
func (in *Input) Start(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.running.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted,
			"mqtt-input", "Start", "component already started")
	}
	if in.client == nil {
		return errors.WrapInvalid(errors.ErrNotStarted,
			"mqtt-input", "Start", "Initialize must be called first")
	}

	connect := func() error {
		token := in.client.Connect()
		if !token.WaitTimeout(in.cfg.ConnectTimeout) {
			return fmt.Errorf("%w: %s", errors.ErrConnectionTimeout, in.cfg.BrokerURL)
		}
		return token.Error()
	}

	if err := retry.Do(ctx, in.retryConfig, connect); err != nil {
		return errors.WrapTransient(err, "mqtt-input", "Start", "broker connection")
	}

	in.running.Store(true)
	in.startTime = time.Now()
	in.logger.Info("mqtt input started", "topics", in.cfg.SubscribeTopics())
	return nil
}

// Stop disconnects from the broker, letting in-flight work finish
// within the timeout.
func (in *Input) Stop(timeout time.Duration) error {
	if !in.running.Load() {
		return nil
	}
	in.running.Store(false)

	in.mu.Lock()
	client := in.client
	in.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(uint(timeout.Milliseconds()))
	}
	if in.metrics != nil {
		in.metrics.RecordBrokerStatus("mqtt", false)
	}
	in.logger.Info("mqtt input stopped")
	return nil
}

func (in *Input) onConnect(client mqtt.Client) {
	in.logger.Info("connected to mqtt broker")
	if in.metrics != nil {
		in.metrics.RecordBrokerStatus("mqtt", true)
	}

	for _, topic := range in.cfg.SubscribeTopics() {
		token := client.Subscribe(topic, in.cfg.QoS, in.handleMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			in.errorCount.Add(1)
			in.lastError.Store(err.Error())
			in.logger.Error("subscription failed", "topic", topic, "error", err)
			continue
		}
		in.logger.Info("subscribed", "topic", topic)
	}
}

func (in *Input) onConnectionLost(_ mqtt.Client, err error) {
	in.errorCount.Add(1)
	in.lastError.Store(err.Error())
	in.logger.Warn("mqtt connection lost, reconnecting", "error", err)
	if in.metrics != nil {
		in.metrics.RecordBrokerStatus("mqtt", false)
		in.metrics.RecordBrokerReconnect("mqtt")
	}
}

// handleMessage runs on paho's router goroutine. The classifier call
// marshals into the engine lock, which is the serialization point for
// all transports.
func (in *Input) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	in.messagesReceived.Add(1)
	in.bytesReceived.Add(int64(len(msg.Payload())))
	in.lastActivity.Store(time.Now())

	in.classifier.Route(msg.Topic(), msg.Payload(), time.Now())
}
