// Package httpserver exposes the production statistics over a REST and
// WebSocket gateway. Read endpoints are pure queries against the engine;
// the few write endpoints map operator actions (breaks, manual basket
// completion, reset) onto engine operations.
package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/Alex-Pennington/splitterstats/component"
	"github.com/Alex-Pennington/splitterstats/config"
	"github.com/Alex-Pennington/splitterstats/errors"
	"github.com/Alex-Pennington/splitterstats/metric"
	"github.com/Alex-Pennington/splitterstats/stats"
)

// Deps holds runtime dependencies for the HTTP gateway
type Deps struct {
	Name     string
	Config   config.HTTPConfig
	Engine   *stats.Engine
	Registry *metric.MetricsRegistry
	Logger   *slog.Logger

	// Components are the peers whose health rolls up under /health
	Components []component.Discoverable
}

// Server is the HTTP gateway component
type Server struct {
	name       string
	cfg        config.HTTPConfig
	engine     *stats.Engine
	registry   *metric.MetricsRegistry
	logger     *slog.Logger
	components []component.Discoverable

	limiter *rate.Limiter

	// Gateway-owned metrics, registered through the registry's
	// registrar surface and released on Stop
	requests        *prometheus.CounterVec
	requestDuration prometheus.Histogram
	wsSessions      prometheus.Gauge

	mu        sync.Mutex
	srv       *http.Server
	listener  net.Listener
	running   atomic.Bool
	startTime time.Time

	wsCtx    context.Context
	wsCancel context.CancelFunc
	wsConns  sync.WaitGroup

	requestsServed atomic.Int64
	errorCount     atomic.Int64
	lastActivity   atomic.Value // stores time.Time
	lastError      atomic.Value // stores string
}

var _ component.Lifecycle = (*Server)(nil)

// NewServer creates the HTTP gateway component
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		name:       deps.Name,
		cfg:        deps.Config,
		engine:     deps.Engine,
		registry:   deps.Registry,
		logger:     logger.With("component", "http-gateway", "addr", deps.Config.Addr),
		components: deps.Components,
		startTime:  time.Now(),
	}
	if deps.Config.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(deps.Config.RateLimit), deps.Config.RateBurst)
	}
	s.lastActivity.Store(time.Time{})
	s.lastError.Store("")
	return s
}

// Meta returns the component metadata
func (s *Server) Meta() component.Metadata {
	name := s.name
	if name == "" {
		name = "http-gateway"
	}
	return component.Metadata{
		Name:        name,
		Type:        "gateway",
		Description: fmt.Sprintf("REST and WebSocket gateway on %s", s.cfg.Addr),
		Version:     "1.0.0",
	}
}

// Health returns the current health status
func (s *Server) Health() component.HealthStatus {
	lastErr, _ := s.lastError.Load().(string)
	return component.HealthStatus{
		Healthy:    s.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(s.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     time.Since(s.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (s *Server) DataFlow() component.FlowMetrics {
	requests := s.requestsServed.Load()
	errorCount := s.errorCount.Load()
	lastActivity, _ := s.lastActivity.Load().(time.Time)

	var perSecond, errorRate float64
	if uptime := time.Since(s.startTime).Seconds(); uptime > 0 {
		perSecond = float64(requests) / uptime
	}
	if requests > 0 {
		errorRate = float64(errorCount) / float64(requests)
	}

	return component.FlowMetrics{
		MessagesPerSecond: perSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates configuration and builds the HTTP server
func (s *Server) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Addr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"http-gateway", "Initialize", "listen address required")
	}
	if s.engine == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"http-gateway", "Initialize", "statistics engine required")
	}

	if s.registry != nil {
		s.registerGatewayMetrics()
	}

	s.srv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	return nil
}

const gatewayMetricComponent = "http-gateway"

// registerGatewayMetrics creates the gateway's own collectors and
// registers them through the registrar. A registration conflict costs
// the metric, never the gateway.
func (s *Server) registerGatewayMetrics() {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "splitterstats",
		Subsystem: "http_gateway",
		Name:      "requests_total",
		Help:      "HTTP requests served by method and status code",
	}, []string{"method", "code"})
	if err := s.registry.RegisterCounterVec(gatewayMetricComponent, "requests_total", requests); err != nil {
		s.logger.Warn("request counter unavailable", "error", err)
	} else {
		s.requests = requests
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "splitterstats",
		Subsystem: "http_gateway",
		Name:      "request_duration_seconds",
		Help:      "HTTP request handling duration in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	if err := s.registry.RegisterHistogram(gatewayMetricComponent, "request_duration_seconds", duration); err != nil {
		s.logger.Warn("request duration histogram unavailable", "error", err)
	} else {
		s.requestDuration = duration
	}

	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "splitterstats",
		Subsystem: "http_gateway",
		Name:      "websocket_sessions",
		Help:      "Open WebSocket dashboard sessions",
	})
	if err := s.registry.RegisterGauge(gatewayMetricComponent, "websocket_sessions", sessions); err != nil {
		s.logger.Warn("websocket session gauge unavailable", "error", err)
	} else {
		s.wsSessions = sessions
	}
}

// Start binds the listener and serves in the background. The bind is
// synchronous so a port conflict surfaces here, not in the serve
// goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted,
			"http-gateway", "Start", "component already started")
	}
	if s.srv == nil {
		return errors.WrapInvalid(errors.ErrNotStarted,
			"http-gateway", "Start", "Initialize must be called first")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.WrapFatal(err, "http-gateway", "Start", "bind listener")
	}
	s.listener = listener

	s.wsCtx, s.wsCancel = context.WithCancel(context.WithoutCancel(ctx))

	go func() {
		if err := s.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.errorCount.Add(1)
			s.lastError.Store(err.Error())
			s.logger.Error("http server exited", "error", err)
		}
	}()

	s.running.Store(true)
	s.startTime = time.Now()
	s.logger.Info("http gateway started")
	return nil
}

// Stop shuts down the server, waiting up to timeout for in-flight
// requests and open WebSocket sessions.
func (s *Server) Stop(timeout time.Duration) error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)

	s.mu.Lock()
	srv := s.srv
	cancel := s.wsCancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wsConns.Wait()

	ctx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "http-gateway", "Stop", "graceful shutdown")
	}

	if s.registry != nil {
		s.registry.Unregister(gatewayMetricComponent, "requests_total")
		s.registry.Unregister(gatewayMetricComponent, "request_duration_seconds")
		s.registry.Unregister(gatewayMetricComponent, "websocket_sessions")
	}

	s.logger.Info("http gateway stopped")
	return nil
}

// Addr returns the bound listen address, useful when the configured
// port is 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/production/summary", s.handleSummary)
	mux.HandleFunc("GET /api/production/rates", s.handleRates)
	mux.HandleFunc("GET /api/production/current-basket", s.handleCurrentBasket)
	mux.HandleFunc("GET /api/production/history", s.handleHistory)
	mux.HandleFunc("POST /api/production/reset", s.handleReset)
	mux.HandleFunc("POST /api/production/break/start", s.handleBreakStart)
	mux.HandleFunc("POST /api/production/break/end", s.handleBreakEnd)
	mux.HandleFunc("POST /api/production/basket/complete", s.handleBasketComplete)

	// Legacy dashboard routes backed by the per-topic tracker
	mux.HandleFunc("GET /api/stats", s.handleTopicStats)
	mux.HandleFunc("GET /api/summary", s.handleTopicSummary)
	mux.HandleFunc("POST /api/reset", s.handleTopicReset)

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.registry != nil {
		mux.Handle("GET /metrics", s.registry.Handler())
	}
	if s.cfg.EnableWebSocket {
		mux.HandleFunc("GET /ws", s.handleWebSocket)
	}

	return s.withMiddleware(mux)
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestsServed.Add(1)
		s.lastActivity.Store(time.Now())

		if s.limiter != nil && !s.limiter.Allow() {
			s.errorCount.Add(1)
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)

		if s.requests != nil {
			s.requests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		}
		if s.requestDuration != nil {
			s.requestDuration.Observe(time.Since(started).Seconds())
		}
	})
}

// statusRecorder captures the response status for the request counter.
// Hijack passes through so the WebSocket upgrade still works.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.errorCount.Add(1)
		s.lastError.Store(err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.errorCount.Add(1)
	s.lastError.Store(err.Error())

	status := http.StatusInternalServerError
	if errors.IsInvalid(err) {
		status = http.StatusConflict
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
