package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicTracker_Add(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTopicTracker(clock.now)

	tracker.Add("r4/engine_rpm", 3400, clock.advance(time.Second))
	tracker.Add("r4/engine_rpm", 3600, clock.advance(time.Second))
	tracker.Add("r4/engine_rpm", 3200, clock.advance(time.Second))

	view, ok := tracker.Topic("r4/engine_rpm")
	require.True(t, ok)
	assert.Equal(t, int64(3), view.Count)
	assert.Equal(t, 3200.0, view.Min)
	assert.Equal(t, 3600.0, view.Max)
	assert.Equal(t, 3200.0, view.LastValue)
	assert.InDelta(t, 3400.0, view.Average, 0.001)

	_, ok = tracker.Topic("never/seen")
	assert.False(t, ok)
}

func TestTopicTracker_SummarySortsByCount(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTopicTracker(clock.now)

	tracker.Add("quiet", 1, clock.advance(time.Second))
	for i := 0; i < 5; i++ {
		tracker.Add("busy", float64(i), clock.advance(time.Second))
	}

	summary := tracker.Summary()
	assert.Equal(t, 2, summary.TotalTopics)
	assert.Equal(t, int64(6), summary.TotalMessages)
	require.Len(t, summary.ActiveTopics, 2)
	assert.Equal(t, "busy", summary.ActiveTopics[0].Topic)
}

func TestTopicTracker_Reset(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTopicTracker(clock.now)

	tracker.Add("a", 1, clock.advance(time.Second))
	tracker.Reset()

	all := tracker.All()
	assert.Zero(t, all.TotalTopics)
	assert.Zero(t, all.TotalMessages)
}

func TestTopicTracker_RatePerMinute(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTopicTracker(clock.now)

	start := clock.now()
	for i := 0; i < 10; i++ {
		tracker.Add("t", 1, start.Add(time.Duration(i)*time.Second))
	}
	clock.t = start.Add(time.Minute)

	view, ok := tracker.Topic("t")
	require.True(t, ok)
	// First sample timestamp anchors the window
	assert.InDelta(t, 10.0, view.RatePerMinute, 0.5)
}
