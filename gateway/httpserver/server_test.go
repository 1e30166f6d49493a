package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alex-Pennington/splitterstats/classifier"
	"github.com/Alex-Pennington/splitterstats/config"
	"github.com/Alex-Pennington/splitterstats/metric"
	"github.com/Alex-Pennington/splitterstats/snapshot"
	"github.com/Alex-Pennington/splitterstats/stats"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) *stats.Engine {
	t.Helper()
	store := snapshot.NewFileStore(filepath.Join(t.TempDir(), "stats.json"))
	return stats.New(store, stats.Config{}, discardLogger())
}

func newTestServer(t *testing.T, engine *stats.Engine) *Server {
	t.Helper()
	cfg := config.Default().HTTP
	cfg.RateLimit = 0

	return NewServer(Deps{
		Name:     "gateway-test",
		Config:   cfg,
		Engine:   engine,
		Registry: metric.NewMetricsRegistry(),
		Logger:   discardLogger(),
	})
}

func runSplit(engine *stats.Engine, at time.Time) {
	engine.HandleSequenceEvent(classifier.EventCycleStart, at)
	engine.HandleSequenceEvent(classifier.EventExtendComplete, at.Add(10*time.Second))
	engine.HandleSequenceEvent(classifier.EventRetractComplete, at.Add(18*time.Second))
}

func TestServer_ProductionEndpoints(t *testing.T) {
	engine := newTestEngine(t)
	runSplit(engine, time.Now())

	s := newTestServer(t, engine)
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	t.Run("summary", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/production/summary")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var summary stats.ProductionSummary
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
		assert.Equal(t, int64(1), summary.TotalSplits)
		assert.Equal(t, int64(1), summary.TotalCycles)
	})

	t.Run("rates", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/production/rates")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("current basket", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/production/current-basket")
		require.NoError(t, err)
		defer resp.Body.Close()

		var basket stats.CurrentBasketStats
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&basket))
		assert.Equal(t, 1, basket.SplitsCompleted)
		assert.NotEmpty(t, basket.BasketID)
	})

	t.Run("history", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/production/history")
		require.NoError(t, err)
		defer resp.Body.Close()

		var history stats.BasketHistory
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
		require.NotNil(t, history.CurrentBasket)
		assert.True(t, history.CurrentBasket.InProgress)
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/production/summary", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestServer_BreakEndpoints(t *testing.T) {
	engine := newTestEngine(t)
	s := newTestServer(t, engine)
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/production/break/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Second start conflicts
	resp, err = http.Post(ts.URL+"/api/production/break/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/production/break/end", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Ending without a break in progress conflicts
	resp, err = http.Post(ts.URL+"/api/production/break/end", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServer_ResetAndBasketComplete(t *testing.T) {
	engine := newTestEngine(t)
	runSplit(engine, time.Now())

	s := newTestServer(t, engine)
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/production/basket/complete", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), engine.ProductionSummary().TotalBaskets)

	resp, err = http.Post(ts.URL+"/api/production/reset", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	summary := engine.ProductionSummary()
	assert.Zero(t, summary.TotalSplits)
	assert.Zero(t, summary.TotalBaskets)
}

func TestServer_LegacyTopicRoutes(t *testing.T) {
	engine := newTestEngine(t)
	engine.HandleGeneralReading("r4/engine_rpm", 3400, time.Now())

	s := newTestServer(t, engine)
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var all stats.AllStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	assert.Equal(t, 1, all.TotalTopics)

	resp, err = http.Post(ts.URL+"/api/reset", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, engine.TopicStats().All().TotalTopics)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	engine := newTestEngine(t)
	s := newTestServer(t, engine)
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	// Gateway reports unhealthy until Start, aggregate follows
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "splitterstats_")
}

func TestServer_RateLimit(t *testing.T) {
	engine := newTestEngine(t)
	cfg := config.Default().HTTP
	cfg.RateLimit = 1
	cfg.RateBurst = 1

	s := NewServer(Deps{Config: cfg, Engine: engine, Logger: discardLogger()})
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/production/rates")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/production/rates")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestServer_Lifecycle(t *testing.T) {
	engine := newTestEngine(t)
	s := newTestServer(t, engine)
	s.cfg.Addr = "127.0.0.1:0"

	require.NoError(t, s.Initialize())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(time.Second)

	assert.True(t, s.Health().Healthy)

	resp, err := http.Get("http://" + s.Addr() + "/api/production/summary")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Second start rejected
	assert.Error(t, s.Start(context.Background()))

	require.NoError(t, s.Stop(time.Second))
	assert.False(t, s.Health().Healthy)
}

func TestServer_GatewayMetricsExported(t *testing.T) {
	engine := newTestEngine(t)
	s := newTestServer(t, engine)
	s.cfg.Addr = "127.0.0.1:0"

	require.NoError(t, s.Initialize())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(time.Second)

	resp, err := http.Get("http://" + s.Addr() + "/api/production/summary")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Contains(t, string(body),
		`splitterstats_http_gateway_requests_total{code="200",method="GET"}`)
	assert.Contains(t, string(body), "splitterstats_http_gateway_request_duration_seconds")
	assert.Contains(t, string(body), "splitterstats_http_gateway_websocket_sessions")
}

func TestServer_WebSocketPushesSummary(t *testing.T) {
	engine := newTestEngine(t)
	runSplit(engine, time.Now())

	s := newTestServer(t, engine)
	s.cfg.Addr = "127.0.0.1:0"
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(time.Second)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var summary stats.ProductionSummary
	require.NoError(t, conn.ReadJSON(&summary))
	assert.Equal(t, int64(1), summary.TotalSplits)
}
