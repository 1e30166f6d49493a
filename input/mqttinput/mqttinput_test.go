package mqttinput

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alex-Pennington/splitterstats/classifier"
	"github.com/Alex-Pennington/splitterstats/config"
	"github.com/Alex-Pennington/splitterstats/errors"
	"github.com/Alex-Pennington/splitterstats/pkg/retry"
)

type recordingSink struct {
	mu    sync.Mutex
	calls []classifier.EventKind
}

func (s *recordingSink) HandleSequenceEvent(kind classifier.EventKind, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, kind)
}

func (s *recordingSink) HandleSequenceStatus(classifier.Stage, time.Time)       {}
func (s *recordingSink) HandleBasketExchange(time.Time)                         {}
func (s *recordingSink) HandlePressureReading(float64, string, time.Time)       {}
func (s *recordingSink) HandleFuelLevel(float64, time.Time)                     {}
func (s *recordingSink) HandleTemperatureReading(float64, string, time.Time)    {}
func (s *recordingSink) HandleGeneralReading(string, float64, time.Time)        {}

// stubMessage implements just enough of mqtt.Message for the handler
type stubMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m stubMessage) Topic() string   { return m.topic }
func (m stubMessage) Payload() []byte { return m.payload }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestInput(sink classifier.Sink) *Input {
	cfg := config.Default().MQTT
	return NewInput(Deps{
		Name:       "mqtt-test",
		Config:     cfg,
		Classifier: classifier.New(sink, discardLogger(), "mqtt"),
		Logger:     discardLogger(),
	})
}

func TestInput_Meta(t *testing.T) {
	in := newTestInput(&recordingSink{})
	meta := in.Meta()
	assert.Equal(t, "mqtt-test", meta.Name)
	assert.Equal(t, "input", meta.Type)
	assert.Contains(t, meta.Description, "tcp://localhost:1883")
}

func TestInput_InitializeRequiresBroker(t *testing.T) {
	cfg := config.Default().MQTT
	cfg.BrokerURL = ""
	in := NewInput(Deps{
		Config:     cfg,
		Classifier: classifier.New(&recordingSink{}, discardLogger(), "mqtt"),
		Logger:     discardLogger(),
	})

	err := in.Initialize()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestInput_InitializeRequiresClassifier(t *testing.T) {
	in := NewInput(Deps{Config: config.Default().MQTT, Logger: discardLogger()})

	err := in.Initialize()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestInput_StartBeforeInitialize(t *testing.T) {
	in := newTestInput(&recordingSink{})

	err := in.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotStarted)
}

func TestInput_StopWithoutStartIsNoop(t *testing.T) {
	in := newTestInput(&recordingSink{})
	assert.NoError(t, in.Stop(time.Second))
}

func TestInput_HandleMessageRoutesAndCounts(t *testing.T) {
	sink := &recordingSink{}
	in := newTestInput(sink)

	in.handleMessage(nil, stubMessage{
		topic:   "r4/splitter/sequence/event",
		payload: []byte("extend_complete"),
	})
	in.handleMessage(nil, stubMessage{
		topic:   "r4/splitter/sequence/event",
		payload: []byte("retract_complete"),
	})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.calls, 2)
	assert.Equal(t, classifier.EventExtendComplete, sink.calls[0])
	assert.Equal(t, classifier.EventRetractComplete, sink.calls[1])

	flow := in.DataFlow()
	assert.False(t, flow.LastActivity.IsZero())
	assert.Equal(t, int64(2), in.messagesReceived.Load())
	assert.Equal(t, int64(len("extend_complete")+len("retract_complete")), in.bytesReceived.Load())
}

func TestInput_ConnectRetryIsPersistent(t *testing.T) {
	in := newTestInput(&recordingSink{})
	assert.Equal(t, retry.Persistent(), in.retryConfig,
		"broker connects keep retrying, the daemon cannot run without one")
}

func TestInput_HealthReflectsDisconnected(t *testing.T) {
	in := newTestInput(&recordingSink{})
	require.NoError(t, in.Initialize())

	health := in.Health()
	assert.False(t, health.Healthy, "not started, not connected")
	assert.Zero(t, health.ErrorCount)
}

func TestSubscribeTopicsDefaults(t *testing.T) {
	cfg := config.Default().MQTT
	assert.Equal(t, []string{"r4/splitter/#", "controller/#", "monitor/#"}, cfg.SubscribeTopics())

	cfg.Topics = []string{"custom/#"}
	assert.Equal(t, []string{"custom/#"}, cfg.SubscribeTopics())
}
