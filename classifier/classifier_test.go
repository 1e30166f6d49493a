package classifier

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	method string
	kind   EventKind
	stage  Stage
	value  float64
	sensor string
	topic  string
}

type recordingSink struct {
	calls []recordedCall
}

func (s *recordingSink) HandleSequenceEvent(kind EventKind, _ time.Time) {
	s.calls = append(s.calls, recordedCall{method: "event", kind: kind})
}

func (s *recordingSink) HandleSequenceStatus(stage Stage, _ time.Time) {
	s.calls = append(s.calls, recordedCall{method: "status", stage: stage})
}

func (s *recordingSink) HandleBasketExchange(_ time.Time) {
	s.calls = append(s.calls, recordedCall{method: "exchange"})
}

func (s *recordingSink) HandlePressureReading(value float64, sensor string, _ time.Time) {
	s.calls = append(s.calls, recordedCall{method: "pressure", value: value, sensor: sensor})
}

func (s *recordingSink) HandleFuelLevel(value float64, _ time.Time) {
	s.calls = append(s.calls, recordedCall{method: "fuel", value: value})
}

func (s *recordingSink) HandleTemperatureReading(value float64, sensor string, _ time.Time) {
	s.calls = append(s.calls, recordedCall{method: "temperature", value: value, sensor: sensor})
}

func (s *recordingSink) HandleGeneralReading(topic string, value float64, _ time.Time) {
	s.calls = append(s.calls, recordedCall{method: "general", topic: topic, value: value})
}

func newTestClassifier(sink Sink) *Classifier {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(sink, logger, "test")
}

func TestRoute_SequenceEvent(t *testing.T) {
	sink := &recordingSink{}
	c := newTestClassifier(sink)

	c.Route("r4/splitter/sequence/event", []byte("retract_complete"), time.Now())

	require.Len(t, sink.calls, 1)
	assert.Equal(t, "event", sink.calls[0].method)
	assert.Equal(t, EventRetractComplete, sink.calls[0].kind)
}

func TestRoute_UnknownEventDropped(t *testing.T) {
	sink := &recordingSink{}
	c := newTestClassifier(sink)

	c.Route("r4/splitter/sequence/event", []byte("warp_drive"), time.Now())

	assert.Empty(t, sink.calls)
}

func TestRoute_SequenceStatus(t *testing.T) {
	sink := &recordingSink{}
	c := newTestClassifier(sink)

	c.Route("r4/splitter/sequence/status", []byte("EXTENDING"), time.Now())
	c.Route("r4/splitter/sequence/status", []byte("PRESSURE_RELIEF"), time.Now())
	c.Route("r4/splitter/sequence/status", []byte("BROKEN"), time.Now())

	require.Len(t, sink.calls, 2)
	assert.Equal(t, StageExtending, sink.calls[0].stage)
	assert.Equal(t, StagePressureRelief, sink.calls[1].stage)
}

func TestRoute_BasketExchange(t *testing.T) {
	sink := &recordingSink{}
	c := newTestClassifier(sink)

	c.Route("r4/splitter/signals/basket_exchange", []byte("1"), time.Now())
	c.Route("r4/splitter/signals/basket_exchange", []byte("0"), time.Now())
	c.Route("r4/splitter/signals/basket_exchange", []byte("exchange"), time.Now())

	require.Len(t, sink.calls, 1)
	assert.Equal(t, "exchange", sink.calls[0].method)
}

func TestRoute_Pressure(t *testing.T) {
	sink := &recordingSink{}
	c := newTestClassifier(sink)

	c.Route("r4/splitter/pressure/hydraulic_system", []byte("2450.5"), time.Now())
	c.Route("r4/splitter/pressure/hydraulic_filter", []byte("12"), time.Now())
	// Pre-rename firmware published on a bare pressure topic
	c.Route("r4/splitter/pressure", []byte("2200"), time.Now())
	c.Route("r4/splitter/pressure/hydraulic_system", []byte("garbage"), time.Now())

	require.Len(t, sink.calls, 3)
	assert.Equal(t, "hydraulic_system", sink.calls[0].sensor)
	assert.Equal(t, 2450.5, sink.calls[0].value)
	assert.Equal(t, "hydraulic_filter", sink.calls[1].sensor)
	assert.Equal(t, "hydraulic", sink.calls[2].sensor)
}

func TestRoute_FuelAndTemperature(t *testing.T) {
	sink := &recordingSink{}
	c := newTestClassifier(sink)

	c.Route("r4/splitter/fuel_level", []byte("4.75"), time.Now())
	c.Route("r4/splitter/temperature/engine", []byte("93.2"), time.Now())
	c.Route("r4/splitter/fuel_level", []byte("low"), time.Now())

	require.Len(t, sink.calls, 2)
	assert.Equal(t, "fuel", sink.calls[0].method)
	assert.Equal(t, 4.75, sink.calls[0].value)
	assert.Equal(t, "temperature", sink.calls[1].method)
	assert.Equal(t, "engine", sink.calls[1].sensor)
}

func TestRoute_InputPinsAreLogOnly(t *testing.T) {
	sink := &recordingSink{}
	c := newTestClassifier(sink)

	c.Route("controller/inputs/8", []byte("1"), time.Now())
	c.Route("controller/inputs/3", []byte("0"), time.Now())

	assert.Empty(t, sink.calls)
}

func TestRoute_GeneralNumeric(t *testing.T) {
	sink := &recordingSink{}
	c := newTestClassifier(sink)

	c.Route("r4/splitter/engine_rpm", []byte("3400"), time.Now())
	c.Route("r4/splitter/status_text", []byte("running"), time.Now())

	require.Len(t, sink.calls, 1)
	assert.Equal(t, "general", sink.calls[0].method)
	assert.Equal(t, "r4/splitter/engine_rpm", sink.calls[0].topic)
	assert.Equal(t, 3400.0, sink.calls[0].value)
}

func TestRoute_GeneralJSON(t *testing.T) {
	sink := &recordingSink{}
	c := newTestClassifier(sink)

	c.Route("r4/splitter/engine", []byte(`{"rpm": 3400, "hours": 120.5, "model": "GX390"}`), time.Now())

	require.Len(t, sink.calls, 2)
	topics := []string{sink.calls[0].topic, sink.calls[1].topic}
	assert.ElementsMatch(t, []string{"r4/splitter/engine/rpm", "r4/splitter/engine/hours"}, topics)
}
