package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/restock-agent/internal/adapter/storage"
	"github.com/rl1809/restock-agent/internal/core/domain"
	"github.com/rl1809/restock-agent/internal/core/service"
	"github.com/rl1809/restock-agent/internal/metrics"
)

const supplierWallet = "0x1111111111111111111111111111111111111111"

func rejectReplays(cfg *service.LedgerConfig) { cfg.RejectReplayedProofs = true }

func newTestSupplier(t *testing.T, opts ...func(*service.LedgerConfig)) (*httptest.Server, *storage.MemoryLedger) {
	t.Helper()
	cfg := service.LedgerConfig{
		Destination: supplierWallet,
		Chain:       "Base Sepolia",
		Pricing:     service.DefaultPricing(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	ledger := storage.NewMemoryLedger()
	svc := service.NewLedgerService(storage.NewMemoryCache(), ledger, cfg, service.WithClock(func() time.Time {
		return time.Date(2025, 3, 1, 10, 0, 0, 0, time.Local)
	}))

	reg := prometheus.NewRegistry()
	h := NewHTTPHandler(svc, domain.DiscoveryDocument{
		Name:         "Test Supplier",
		Capabilities: []string{"restock", "negotiate"},
		PaymentTypes: []string{"eth"},
	}, metrics.NewSupplier(reg), nil)

	srv := httptest.NewServer(h.Router(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	t.Cleanup(srv.Close)
	return srv, ledger
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestBuyStock_NoProofReturns402(t *testing.T) {
	srv, ledger := newTestSupplier(t)

	resp := postJSON(t, srv.URL+"/buy-stock", domain.OrderRequest{Item: "Rice", Quantity: 50}, nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	var body domain.PaymentRequiredBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Payment Required", body.Error)
	assert.Equal(t, "0.0001", body.PaymentDetails.Amount.String())
	assert.Equal(t, "ETH", body.PaymentDetails.Currency)
	assert.Equal(t, supplierWallet, body.PaymentDetails.Destination)
	assert.NotEmpty(t, body.PaymentDetails.InvoiceID)

	orders, _ := ledger.ListOrders(t.Context())
	assert.Empty(t, orders, "402 must not record an order")
}

func TestBuyStock_WithProofRecordsOrder(t *testing.T) {
	srv, ledger := newTestSupplier(t)

	resp := postJSON(t, srv.URL+"/buy-stock", domain.OrderRequest{Item: "Rice", Quantity: 50},
		map[string]string{domain.HeaderPaymentHash: "0xABC"})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body domain.OrderResultBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.TrackingID)

	orders, _ := ledger.ListOrders(t.Context())
	require.Len(t, orders, 1)
	assert.Equal(t, "0xABC", orders[0].ProofReference)
	assert.Equal(t, "0.0001", orders[0].TotalPaid.String())
}

func TestBuyStock_ReusedProofAccepted(t *testing.T) {
	srv, ledger := newTestSupplier(t)
	headers := map[string]string{domain.HeaderPaymentHash: "0xREUSED"}

	for i := 0; i < 2; i++ {
		resp := postJSON(t, srv.URL+"/buy-stock", domain.OrderRequest{Item: "Rice", Quantity: 50}, headers)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, "submission %d", i+1)
	}

	orders, _ := ledger.ListOrders(t.Context())
	require.Len(t, orders, 2)
	assert.Equal(t, orders[0].ProofReference, orders[1].ProofReference)
}

func TestBuyStock_DuplicateProofConflicts(t *testing.T) {
	srv, ledger := newTestSupplier(t, rejectReplays)
	headers := map[string]string{domain.HeaderPaymentHash: "0xDUP"}

	first := postJSON(t, srv.URL+"/buy-stock", domain.OrderRequest{Item: "Rice", Quantity: 50}, headers)
	first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	second := postJSON(t, srv.URL+"/buy-stock", domain.OrderRequest{Item: "Rice", Quantity: 50}, headers)
	second.Body.Close()
	assert.Equal(t, http.StatusConflict, second.StatusCode)

	orders, _ := ledger.ListOrders(t.Context())
	assert.Len(t, orders, 1)
}

func TestBuyStock_InvalidBody(t *testing.T) {
	srv, _ := newTestSupplier(t)

	tests := []struct {
		name string
		body any
	}{
		{"zero quantity", domain.OrderRequest{Item: "Rice", Quantity: 0}},
		{"missing item", domain.OrderRequest{Quantity: 5}},
		{"not an object", "rice please"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/buy-stock", tt.body, nil)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestListOrders_TotalRevenue(t *testing.T) {
	srv, _ := newTestSupplier(t)

	for _, proof := range []string{"0x1", "0x2", "0x3"} {
		resp := postJSON(t, srv.URL+"/buy-stock", domain.OrderRequest{Item: "Rice", Quantity: 50},
			map[string]string{domain.HeaderPaymentHash: proof})
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/orders")
	require.NoError(t, err)
	defer resp.Body.Close()

	var summary domain.LedgerSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Len(t, summary.Orders, 3)
	assert.Equal(t, "0.0003", summary.TotalRevenue.String())
}

func TestDiscoveryAndNegotiate(t *testing.T) {
	srv, _ := newTestSupplier(t)

	resp, err := http.Get(srv.URL + "/.well-known/supplier.json")
	require.NoError(t, err)
	var doc domain.DiscoveryDocument
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	resp.Body.Close()
	assert.True(t, doc.HasCapability("restock"))

	resp = postJSON(t, srv.URL+"/negotiate", domain.NegotiationRequest{Quantity: 50, ProposedPrice: "0.00008"}, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var offer domain.NegotiationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&offer))
	assert.Equal(t, "0.000090", offer.CounterOffer)
	assert.Equal(t, 300, offer.ValidFor)
}

func TestDirectOrder_DoesNotTouchLedger(t *testing.T) {
	srv, ledger := newTestSupplier(t)

	resp := postJSON(t, srv.URL+"/orders/direct", domain.OrderRequest{Item: "Rice", Quantity: 50}, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result domain.DirectOrderResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Success)
	assert.Equal(t, ProtocolDirect, result.ProtocolUsed)

	orders, _ := ledger.ListOrders(t.Context())
	assert.Empty(t, orders)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestSupplier(t)

	resp := postJSON(t, srv.URL+"/buy-stock", domain.OrderRequest{Item: "Rice", Quantity: 50}, nil)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), `supplier_requests_total{endpoint="buy-stock",outcome="payment_required"} 1`)
}

func TestHealthCheck_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestSupplier(t)

	resp := postJSON(t, srv.URL+"/health", map[string]string{}, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
