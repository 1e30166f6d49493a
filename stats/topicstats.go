package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/Alex-Pennington/splitterstats/pkg/timestamp"
)

// TopicStats accumulates running statistics for one telemetry topic
// outside the production model (engine RPM, auxiliary sensors).
type TopicStats struct {
	Topic       string
	Count       int64
	Total       float64
	Min         float64
	Max         float64
	LastValue   float64
	LastUpdated time.Time
	StartTime   time.Time
}

func (s *TopicStats) add(value float64, ts time.Time) {
	if s.Count == 0 || value < s.Min {
		s.Min = value
	}
	if s.Count == 0 || value > s.Max {
		s.Max = value
	}
	s.Count++
	s.Total += value
	s.LastValue = value
	s.LastUpdated = ts
}

// Average returns the running mean
func (s *TopicStats) Average() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Total / float64(s.Count)
}

// RatePerMinute returns the message rate since tracking began
func (s *TopicStats) RatePerMinute(now time.Time) float64 {
	elapsed := now.Sub(s.StartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.Count) * 60 / elapsed
}

// TopicStatsView is the JSON rendering of one topic's statistics
type TopicStatsView struct {
	Topic         string  `json:"topic"`
	Count         int64   `json:"count"`
	Total         float64 `json:"total"`
	Average       float64 `json:"average"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	LastValue     float64 `json:"last_value"`
	LastUpdated   float64 `json:"last_updated"`
	RatePerMinute float64 `json:"rate_per_minute"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// TopicTracker holds per-topic statistics with its own lock, so general
// telemetry never contends with the production engine.
type TopicTracker struct {
	mu        sync.RWMutex
	topics    map[string]*TopicStats
	startTime time.Time
	now       func() time.Time
}

// NewTopicTracker creates an empty tracker using the given clock
func NewTopicTracker(now func() time.Time) *TopicTracker {
	return &TopicTracker{
		topics:    make(map[string]*TopicStats),
		startTime: now(),
		now:       now,
	}
}

// Add records one value for a topic
func (t *TopicTracker) Add(topic string, value float64, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.topics[topic]
	if !ok {
		s = &TopicStats{Topic: topic, StartTime: ts}
		t.topics[topic] = s
	}
	s.add(value, ts)
}

// Topic returns the view for one topic, if tracked
func (t *TopicTracker) Topic(topic string) (TopicStatsView, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.topics[topic]
	if !ok {
		return TopicStatsView{}, false
	}
	return t.view(s), true
}

// AllStats is the /api/stats payload
type AllStats struct {
	TotalTopics   int                       `json:"total_topics"`
	TotalMessages int64                     `json:"total_messages"`
	UptimeSeconds float64                   `json:"uptime_seconds"`
	Topics        map[string]TopicStatsView `json:"topics"`
}

// All returns statistics for every tracked topic
func (t *TopicTracker) All() AllStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := AllStats{
		UptimeSeconds: t.now().Sub(t.startTime).Seconds(),
		Topics:        make(map[string]TopicStatsView, len(t.topics)),
	}
	for topic, s := range t.topics {
		out.Topics[topic] = t.view(s)
		out.TotalMessages += s.Count
	}
	out.TotalTopics = len(t.topics)
	return out
}

// TopicSummary is one row of the /api/summary payload
type TopicSummary struct {
	Topic         string  `json:"topic"`
	Count         int64   `json:"count"`
	Average       float64 `json:"average"`
	LastValue     float64 `json:"last_value"`
	RatePerMinute float64 `json:"rate_per_minute"`
}

// Summary is the /api/summary payload
type Summary struct {
	TotalTopics   int            `json:"total_topics"`
	TotalMessages int64          `json:"total_messages"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	ActiveTopics  []TopicSummary `json:"active_topics"`
}

// Summary returns the busiest-first topic overview
func (t *TopicTracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	out := Summary{
		TotalTopics:   len(t.topics),
		UptimeSeconds: now.Sub(t.startTime).Seconds(),
		ActiveTopics:  make([]TopicSummary, 0, len(t.topics)),
	}
	for topic, s := range t.topics {
		out.TotalMessages += s.Count
		out.ActiveTopics = append(out.ActiveTopics, TopicSummary{
			Topic:         topic,
			Count:         s.Count,
			Average:       s.Average(),
			LastValue:     s.LastValue,
			RatePerMinute: s.RatePerMinute(now),
		})
	}
	sort.Slice(out.ActiveTopics, func(i, j int) bool {
		return out.ActiveTopics[i].Count > out.ActiveTopics[j].Count
	})
	return out
}

// Reset drops all tracked topics
func (t *TopicTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.topics = make(map[string]*TopicStats)
	t.startTime = t.now()
}

func (t *TopicTracker) view(s *TopicStats) TopicStatsView {
	now := t.now()
	return TopicStatsView{
		Topic:         s.Topic,
		Count:         s.Count,
		Total:         s.Total,
		Average:       s.Average(),
		Min:           s.Min,
		Max:           s.Max,
		LastValue:     s.LastValue,
		LastUpdated:   timestamp.Seconds(s.LastUpdated),
		RatePerMinute: s.RatePerMinute(now),
		UptimeSeconds: now.Sub(s.StartTime).Seconds(),
	}
}
