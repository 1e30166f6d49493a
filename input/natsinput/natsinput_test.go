package natsinput

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alex-Pennington/splitterstats/classifier"
	"github.com/Alex-Pennington/splitterstats/config"
	"github.com/Alex-Pennington/splitterstats/errors"
	"github.com/Alex-Pennington/splitterstats/pkg/retry"
)

type recordingSink struct {
	mu        sync.Mutex
	events    []classifier.EventKind
	exchanges int
}

func (s *recordingSink) HandleSequenceEvent(kind classifier.EventKind, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, kind)
}

func (s *recordingSink) HandleBasketExchange(_ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges++
}

func (s *recordingSink) HandleSequenceStatus(classifier.Stage, time.Time)    {}
func (s *recordingSink) HandlePressureReading(float64, string, time.Time)    {}
func (s *recordingSink) HandleFuelLevel(float64, time.Time)                  {}
func (s *recordingSink) HandleTemperatureReading(float64, string, time.Time) {}
func (s *recordingSink) HandleGeneralReading(string, float64, time.Time)     {}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestInput(sink classifier.Sink) *Input {
	cfg := config.Default().NATS
	return NewInput(Deps{
		Name:       "nats-test",
		Config:     cfg,
		Classifier: classifier.New(sink, discardLogger(), "nats"),
		Logger:     discardLogger(),
	})
}

func TestSubjectToTopic(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{"splitter.sequence.event", "splitter/sequence/event"},
		{"splitter.signals.basket_exchange", "splitter/signals/basket_exchange"},
		{"splitter.pressure.hydraulic_system", "splitter/pressure/hydraulic_system"},
		{"splitter.fuel_level", "splitter/fuel_level"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, subjectToTopic(tt.subject))
	}
}

func TestInput_InitializeValidation(t *testing.T) {
	sink := &recordingSink{}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, newTestInput(sink).Initialize())
	})

	t.Run("missing urls", func(t *testing.T) {
		cfg := config.Default().NATS
		cfg.URLs = nil
		in := NewInput(Deps{
			Config:     cfg,
			Classifier: classifier.New(sink, discardLogger(), "nats"),
			Logger:     discardLogger(),
		})
		err := in.Initialize()
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("missing prefix", func(t *testing.T) {
		cfg := config.Default().NATS
		cfg.SubjectPrefix = ""
		in := NewInput(Deps{
			Config:     cfg,
			Classifier: classifier.New(sink, discardLogger(), "nats"),
			Logger:     discardLogger(),
		})
		err := in.Initialize()
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("missing classifier", func(t *testing.T) {
		in := NewInput(Deps{Config: config.Default().NATS, Logger: discardLogger()})
		err := in.Initialize()
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})
}

func TestInput_HandleMessageRoutes(t *testing.T) {
	sink := &recordingSink{}
	in := newTestInput(sink)

	in.handleMessage(&nats.Msg{
		Subject: "splitter.sequence.event",
		Data:    []byte("cycle_start"),
	})
	in.handleMessage(&nats.Msg{
		Subject: "splitter.signals.basket_exchange",
		Data:    []byte("1"),
	})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.events, 1)
	assert.Equal(t, classifier.EventCycleStart, sink.events[0])
	assert.Equal(t, 1, sink.exchanges)

	assert.Equal(t, int64(2), in.messagesReceived.Load())
}

func TestInput_ConnectRetryIsPersistent(t *testing.T) {
	in := newTestInput(&recordingSink{})
	assert.Equal(t, retry.Persistent(), in.retryConfig,
		"server connects keep retrying, the daemon cannot run without one")
}

func TestInput_StopWithoutStartIsNoop(t *testing.T) {
	in := newTestInput(&recordingSink{})
	assert.NoError(t, in.Stop(time.Second))
}

func TestInput_Meta(t *testing.T) {
	meta := newTestInput(&recordingSink{}).Meta()
	assert.Equal(t, "nats-test", meta.Name)
	assert.Equal(t, "input", meta.Type)
	assert.Contains(t, meta.Description, "splitter.>")
}
