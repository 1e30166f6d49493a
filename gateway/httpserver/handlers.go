package httpserver

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Alex-Pennington/splitterstats/health"
)

// summaryPushInterval is how often open WebSocket sessions receive a
// fresh production summary.
const summaryPushInterval = 2 * time.Second

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.ProductionSummary())
}

func (s *Server) handleRates(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.ProductionRates())
}

func (s *Server) handleCurrentBasket(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.CurrentBasketStats())
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.BasketHistory())
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.engine.Reset()
	s.logger.Info("statistics reset via api")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleBreakStart(w http.ResponseWriter, _ *http.Request) {
	if err := s.engine.StartBreak(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "break_started"})
}

func (s *Server) handleBreakEnd(w http.ResponseWriter, _ *http.Request) {
	if err := s.engine.EndBreak(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "break_ended"})
}

func (s *Server) handleBasketComplete(w http.ResponseWriter, _ *http.Request) {
	s.engine.CompleteBasketNow()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "basket_completed"})
}

func (s *Server) handleTopicStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.TopicStats().All())
}

func (s *Server) handleTopicSummary(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.TopicStats().Summary())
}

func (s *Server) handleTopicReset(w http.ResponseWriter, _ *http.Request) {
	s.engine.TopicStats().Reset()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	statuses := make([]health.Status, 0, len(s.components)+1)
	statuses = append(statuses, health.FromComponentHealth("http-gateway", s.Health()))
	for _, c := range s.components {
		statuses = append(statuses, health.FromComponentHealth(c.Meta().Name, c.Health()))
	}

	overall := health.Aggregate("splitterstats", statuses...)
	status := http.StatusOK
	if overall.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, overall)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard is served from arbitrary hosts on the shop LAN
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket streams the production summary to the dashboard.
// One goroutine per session; the session ends when the client closes,
// a write fails, or the server shuts down.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.errorCount.Add(1)
		s.lastError.Store(err.Error())
		return
	}

	s.wsConns.Add(1)
	go s.serveWebSocket(conn)
}

func (s *Server) serveWebSocket(conn *websocket.Conn) {
	defer s.wsConns.Done()
	defer conn.Close()

	if s.wsSessions != nil {
		s.wsSessions.Inc()
		defer s.wsSessions.Dec()
	}

	// Drain the read side so close frames and pings are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(summaryPushInterval)
	defer ticker.Stop()

	// Push immediately so the dashboard renders without waiting a tick
	if err := conn.WriteJSON(s.engine.ProductionSummary()); err != nil {
		return
	}

	for {
		select {
		case <-s.wsCtx.Done():
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				deadline)
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.engine.ProductionSummary()); err != nil {
				return
			}
		}
	}
}
