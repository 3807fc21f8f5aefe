package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl1809/restock-agent/internal/agent"
	"github.com/rl1809/restock-agent/internal/core/domain"
	"github.com/rl1809/restock-agent/internal/port"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPingPeriod = 30 * time.Second
)

// AgentView is what the dashboard reads from, and pokes, the running agent.
type AgentView interface {
	Snapshot() agent.Snapshot
	Activity() []domain.ActivityEntry
	Runs() []agent.RunSummary
	Trigger()
	Subscribe() (<-chan agent.Snapshot, func())
}

// StreamEvent is one websocket frame.
type StreamEvent struct {
	Type     string                 `json:"type"`
	State    agent.Snapshot         `json:"state"`
	Activity []domain.ActivityEntry `json:"activity"`
}

type DashboardHandler struct {
	agent    AgentView
	supplier port.SupplierGateway
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewDashboardHandler(a AgentView, supplier port.SupplierGateway, logger *slog.Logger) *DashboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandler{
		agent:    a,
		supplier: supplier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *DashboardHandler) Router(metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", h.State).Methods(http.MethodGet)
	api.HandleFunc("/activity", h.Activity).Methods(http.MethodGet)
	api.HandleFunc("/runs", h.Runs).Methods(http.MethodGet)
	api.HandleFunc("/orders", h.Orders).Methods(http.MethodGet)
	api.HandleFunc("/trigger", h.Trigger).Methods(http.MethodPost)
	r.HandleFunc("/ws", h.Stream)
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	return r
}

func (h *DashboardHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *DashboardHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.agent.Snapshot())
}

func (h *DashboardHandler) Activity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.agent.Activity())
}

func (h *DashboardHandler) Runs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.agent.Runs())
}

// Orders proxies the supplier ledger so the dashboard needs one origin.
func (h *DashboardHandler) Orders(w http.ResponseWriter, r *http.Request) {
	summary, err := h.supplier.ListOrders(r.Context())
	if err != nil {
		h.logger.Warn("supplier ledger unavailable", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "supplier unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *DashboardHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	h.agent.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// Stream pushes a frame on connect and after every agent update until the
// client goes away.
func (h *DashboardHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.agent.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	if err := h.send(conn, "snapshot", h.agent.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := h.send(conn, "update", snap); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *DashboardHandler) send(conn *websocket.Conn, kind string, snap agent.Snapshot) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(StreamEvent{Type: kind, State: snap, Activity: h.agent.Activity()})
}
