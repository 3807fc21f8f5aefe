package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl1809/restock-agent/internal/core/domain"
	"github.com/rl1809/restock-agent/internal/core/service"
	"github.com/rl1809/restock-agent/internal/metrics"
)

// ProtocolDirect names the fallback order channel in direct order results.
const ProtocolDirect = "direct"

// HTTPHandler serves the supplier side of the order exchange.
type HTTPHandler struct {
	ledger    *service.LedgerService
	discovery domain.DiscoveryDocument
	metrics   *metrics.Supplier
	logger    *slog.Logger
}

func NewHTTPHandler(ledger *service.LedgerService, discovery domain.DiscoveryDocument, m *metrics.Supplier, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{ledger: ledger, discovery: discovery, metrics: m, logger: logger}
}

// Router mounts every supplier endpoint. metricsHandler may be nil.
func (h *HTTPHandler) Router(metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/buy-stock", h.BuyStock).Methods(http.MethodPost)
	r.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
	r.HandleFunc("/orders/direct", h.DirectOrder).Methods(http.MethodPost)
	r.HandleFunc("/.well-known/supplier.json", h.Discovery).Methods(http.MethodGet)
	r.HandleFunc("/negotiate", h.Negotiate).Methods(http.MethodPost)
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	return r
}

func (h *HTTPHandler) BuyStock(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req domain.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.ObserveRequest("buy-stock", "invalid", started)
		writeJSON(w, http.StatusBadRequest, domain.OrderResultBody{
			Success: false,
			Message: "invalid request body",
		})
		return
	}

	proof := strings.TrimSpace(r.Header.Get(domain.HeaderPaymentHash))
	if proof == "" {
		h.challenge(w, r, req, started)
		return
	}

	order, err := h.ledger.Fulfill(r.Context(), req, proof, r.Header.Get(domain.HeaderInvoiceID))
	if err != nil {
		status := http.StatusInternalServerError
		message := "internal error"
		outcome := "error"

		switch {
		case errors.Is(err, domain.ErrInvalidOrder):
			status, message, outcome = http.StatusBadRequest, err.Error(), "invalid"
		case errors.Is(err, domain.ErrDuplicateProof):
			status, message, outcome = http.StatusConflict, "payment proof already used", "conflict"
		case errors.Is(err, domain.ErrProofRejected):
			h.logger.Warn("payment proof rejected", "proof", proof, "error", err)
			h.challenge(w, r, req, started)
			return
		default:
			h.logger.Error("order fulfillment failed", "error", err)
		}

		h.metrics.ObserveRequest("buy-stock", outcome, started)
		writeJSON(w, status, domain.OrderResultBody{
			Success: false,
			Message: message,
		})
		return
	}

	h.metrics.ObserveRequest("buy-stock", "ok", started)
	h.metrics.OrderRecorded(order.TotalPaid.InexactFloat64())
	writeJSON(w, http.StatusOK, domain.OrderResultBody{
		Success:    true,
		Message:    fmt.Sprintf("Payment verified. %d %s shipped.", order.Quantity, order.Item),
		TrackingID: order.TrackingID,
	})
}

// challenge answers with 402 and a fresh invoice.
func (h *HTTPHandler) challenge(w http.ResponseWriter, r *http.Request, req domain.OrderRequest, started time.Time) {
	inv, err := h.ledger.IssueInvoice(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		message := "internal error"
		outcome := "error"
		if errors.Is(err, domain.ErrInvalidOrder) {
			status, message, outcome = http.StatusBadRequest, err.Error(), "invalid"
		} else {
			h.logger.Error("invoice issuance failed", "error", err)
		}
		h.metrics.ObserveRequest("buy-stock", outcome, started)
		writeJSON(w, status, domain.OrderResultBody{Success: false, Message: message})
		return
	}

	h.metrics.ObserveRequest("buy-stock", "payment_required", started)
	h.metrics.InvoiceIssued()
	writeJSON(w, http.StatusPaymentRequired, domain.PaymentRequiredBody{
		Error:          "Payment Required",
		Message:        "You must pay to restock this item.",
		PaymentDetails: inv,
	})
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.Summary(r.Context())
	if err != nil {
		h.logger.Error("list orders failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, domain.OrderResultBody{Message: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *HTTPHandler) Discovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.discovery)
}

func (h *HTTPHandler) Negotiate(w http.ResponseWriter, r *http.Request) {
	var req domain.NegotiationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	resp, err := h.ledger.Negotiate(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// DirectOrder accepts an order over the fallback channel. It carries no
// payment proof, so nothing is appended to the ledger.
func (h *HTTPHandler) DirectOrder(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req domain.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.ObserveRequest("orders-direct", "invalid", started)
		writeJSON(w, http.StatusBadRequest, domain.DirectOrderResult{Message: "invalid request body", ProtocolUsed: ProtocolDirect})
		return
	}
	if err := req.Validate(); err != nil {
		h.metrics.ObserveRequest("orders-direct", "invalid", started)
		writeJSON(w, http.StatusBadRequest, domain.DirectOrderResult{Message: err.Error(), ProtocolUsed: ProtocolDirect})
		return
	}

	h.logger.Info("direct order accepted", "item", req.Item, "quantity", req.Quantity)
	h.metrics.ObserveRequest("orders-direct", "ok", started)
	writeJSON(w, http.StatusOK, domain.DirectOrderResult{
		Success:      true,
		Message:      fmt.Sprintf("%d %s scheduled for delivery.", req.Quantity, req.Item),
		ProtocolUsed: ProtocolDirect,
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
