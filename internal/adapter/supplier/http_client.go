package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rl1809/restock-agent/internal/core/domain"
)

const defaultTimeout = 10 * time.Second

// HTTPClient speaks the payment-challenge exchange over plain HTTP.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (c *HTTPClient) RequestOrder(ctx context.Context, req domain.OrderRequest, proof, invoiceID string) (domain.OrderResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return domain.OrderResponse{}, fmt.Errorf("encode order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/buy-stock", bytes.NewReader(payload))
	if err != nil {
		return domain.OrderResponse{}, fmt.Errorf("%w: build request: %v", domain.ErrBackend, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if proof != "" {
		httpReq.Header.Set(domain.HeaderPaymentHash, proof)
	}
	if invoiceID != "" {
		httpReq.Header.Set(domain.HeaderInvoiceID, invoiceID)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.OrderResponse{}, fmt.Errorf("%w: %v", domain.ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.OrderResponse{}, fmt.Errorf("%w: read response: %v", domain.ErrNetworkUnreachable, err)
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		var challenge domain.PaymentRequiredBody
		if err := json.Unmarshal(body, &challenge); err != nil {
			return domain.OrderResponse{}, fmt.Errorf("%w: malformed payment details: %v", domain.ErrBackend, err)
		}
		return domain.OrderResponse{Invoice: &challenge.PaymentDetails, Message: challenge.Message}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var result domain.OrderResultBody
		if err := json.Unmarshal(body, &result); err != nil {
			return domain.OrderResponse{}, fmt.Errorf("%w: malformed order result: %v", domain.ErrBackend, err)
		}
		if !result.Success {
			return domain.OrderResponse{}, fmt.Errorf("%w: %s", domain.ErrOrderRejected, result.Message)
		}
		return domain.OrderResponse{Success: true, Message: result.Message, TrackingID: result.TrackingID}, nil

	default:
		return domain.OrderResponse{}, fmt.Errorf("%w: supplier returned %d: %s",
			domain.ErrBackend, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func (c *HTTPClient) ListOrders(ctx context.Context) (domain.LedgerSummary, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/orders", nil)
	if err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("%w: build request: %v", domain.ErrBackend, err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("%w: %v", domain.ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.LedgerSummary{}, fmt.Errorf("%w: supplier returned %d", domain.ErrBackend, resp.StatusCode)
	}

	var summary domain.LedgerSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("%w: malformed ledger: %v", domain.ErrBackend, err)
	}
	return summary, nil
}
