package fallback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/restock-agent/internal/core/domain"
	"github.com/rl1809/restock-agent/internal/port"
)

var _ port.SupplierDirectory = (*Directory)(nil)

type fakeSupplier struct {
	doc       domain.DiscoveryDocument
	reject    bool
	discovery atomic.Int32
	orders    atomic.Int32
}

func (f *fakeSupplier) start(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(DiscoveryPath, func(w http.ResponseWriter, r *http.Request) {
		f.discovery.Add(1)
		json.NewEncoder(w).Encode(f.doc)
	})
	mux.HandleFunc("/negotiate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.NegotiationResponse{CounterOffer: "0.000090", ValidFor: 300})
	})
	mux.HandleFunc("/orders/direct", func(w http.ResponseWriter, r *http.Request) {
		f.orders.Add(1)
		var req domain.OrderRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(domain.DirectOrderResult{
			Success:      !f.reject,
			Message:      "ok",
			ProtocolUsed: "direct",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func drain(t *testing.T, c port.SupplierCursor) []domain.Supplier {
	t.Helper()
	var out []domain.Supplier
	for c.Next(context.Background()) {
		out = append(out, c.Supplier())
	}
	require.NoError(t, c.Err())
	return out
}

func TestDiscover_SkipsUnsuitableSuppliers(t *testing.T) {
	restocker := &fakeSupplier{doc: domain.DiscoveryDocument{
		Name:              "Green Valley",
		Capabilities:      []string{"restock", "negotiate"},
		EstimatedDelivery: "2 days",
	}}
	catalogOnly := &fakeSupplier{doc: domain.DiscoveryDocument{Name: "Catalog", Capabilities: []string{"browse"}}}

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	dir := NewDirectory(Config{Endpoints: []string{deadURL, catalogOnly.start(t), restocker.start(t) + "/"}}, nil)
	suppliers := drain(t, dir.Discover(context.Background(), "Rice", 50))

	require.Len(t, suppliers, 1)
	assert.Equal(t, "Green Valley", suppliers[0].Name)
	assert.Equal(t, "0.000090", suppliers[0].Price)
	assert.Equal(t, "2 days", suppliers[0].EstimatedDelivery)
	assert.NotEmpty(t, suppliers[0].ID)
}

func TestDiscover_IsLazy(t *testing.T) {
	a := &fakeSupplier{doc: domain.DiscoveryDocument{Name: "A", Capabilities: []string{"restock"}}}
	b := &fakeSupplier{doc: domain.DiscoveryDocument{Name: "B", Capabilities: []string{"restock"}}}

	dir := NewDirectory(Config{Endpoints: []string{a.start(t), b.start(t)}}, nil)
	cursor := dir.Discover(context.Background(), "Rice", 50)
	assert.Equal(t, int32(0), a.discovery.Load())

	require.True(t, cursor.Next(context.Background()))
	assert.Equal(t, "A", cursor.Supplier().Name)
	assert.Equal(t, int32(0), b.discovery.Load(), "second supplier must not be probed yet")

	require.True(t, cursor.Next(context.Background()))
	assert.False(t, cursor.Next(context.Background()))
	assert.False(t, cursor.Next(context.Background()), "an exhausted cursor stays exhausted")
}

func TestDiscover_Empty(t *testing.T) {
	dir := NewDirectory(Config{}, nil)
	assert.Empty(t, drain(t, dir.Discover(context.Background(), "Rice", 50)))
}

func TestDiscover_Cancelled(t *testing.T) {
	a := &fakeSupplier{doc: domain.DiscoveryDocument{Name: "A", Capabilities: []string{"restock"}}}
	dir := NewDirectory(Config{Endpoints: []string{a.start(t)}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cursor := dir.Discover(ctx, "Rice", 50)
	assert.False(t, cursor.Next(ctx))
	assert.ErrorIs(t, cursor.Err(), context.Canceled)
}

func TestPlaceOrder(t *testing.T) {
	ok := &fakeSupplier{}
	rejecting := &fakeSupplier{reject: true}
	dir := NewDirectory(Config{}, nil)
	req := domain.OrderRequest{Item: "Rice", Quantity: 50}

	result, err := dir.PlaceOrder(context.Background(), domain.Supplier{Name: "ok", Endpoint: ok.start(t)}, req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "direct", result.ProtocolUsed)

	_, err = dir.PlaceOrder(context.Background(), domain.Supplier{Name: "no", Endpoint: rejecting.start(t)}, req)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
}
