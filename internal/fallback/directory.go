// Package fallback finds alternate suppliers when settlement with the
// primary supplier fails, and places orders with them directly.
package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/restock-agent/internal/core/domain"
	"github.com/rl1809/restock-agent/internal/port"
)

const (
	DiscoveryPath = "/.well-known/supplier.json"

	CapabilityRestock   = "restock"
	CapabilityNegotiate = "negotiate"
)

type Config struct {
	Endpoints     []string
	ProposedPrice string
	Timeout       time.Duration
}

type Directory struct {
	endpoints []string
	proposed  string
	client    *http.Client
	logger    *slog.Logger
}

func NewDirectory(cfg Config, logger *slog.Logger) *Directory {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ProposedPrice == "" {
		cfg.ProposedPrice = "0.0001"
	}
	if logger == nil {
		logger = slog.Default()
	}
	endpoints := make([]string, 0, len(cfg.Endpoints))
	for _, e := range cfg.Endpoints {
		if e = strings.TrimRight(strings.TrimSpace(e), "/"); e != "" {
			endpoints = append(endpoints, e)
		}
	}
	return &Directory{
		endpoints: endpoints,
		proposed:  cfg.ProposedPrice,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}
}

// Discover returns a cursor over the configured suppliers that advertise
// the restock capability. Nothing is fetched until Next is called.
func (d *Directory) Discover(_ context.Context, item string, quantity int) port.SupplierCursor {
	return &Candidates{dir: d, item: item, quantity: quantity, pending: d.endpoints}
}

// Candidates walks discovered suppliers once. Unreachable or unsuitable
// endpoints are skipped; Err reports only why iteration was cut short.
type Candidates struct {
	dir      *Directory
	item     string
	quantity int
	pending  []string
	current  domain.Supplier
	err      error
}

func (c *Candidates) Next(ctx context.Context) bool {
	for c.err == nil && len(c.pending) > 0 {
		if err := ctx.Err(); err != nil {
			c.err = err
			return false
		}

		endpoint := c.pending[0]
		c.pending = c.pending[1:]

		s, ok := c.dir.probe(ctx, endpoint, c.quantity)
		if ok {
			c.current = s
			return true
		}
	}
	return false
}

func (c *Candidates) Supplier() domain.Supplier {
	return c.current
}

func (c *Candidates) Err() error {
	return c.err
}

func (d *Directory) probe(ctx context.Context, endpoint string, quantity int) (domain.Supplier, bool) {
	var doc domain.DiscoveryDocument
	if err := d.getJSON(ctx, endpoint+DiscoveryPath, &doc); err != nil {
		d.logger.Warn("supplier discovery failed", "endpoint", endpoint, "error", err)
		return domain.Supplier{}, false
	}
	if !doc.HasCapability(CapabilityRestock) {
		d.logger.Debug("supplier cannot restock", "endpoint", endpoint, "name", doc.Name)
		return domain.Supplier{}, false
	}

	s := domain.Supplier{
		ID:                uuid.NewSHA1(uuid.NameSpaceURL, []byte(endpoint)).String(),
		Name:              doc.Name,
		Endpoint:          endpoint,
		EstimatedDelivery: doc.EstimatedDelivery,
	}

	if doc.HasCapability(CapabilityNegotiate) {
		var offer domain.NegotiationResponse
		err := d.postJSON(ctx, endpoint+"/negotiate",
			domain.NegotiationRequest{Quantity: quantity, ProposedPrice: d.proposed}, &offer)
		if err != nil {
			d.logger.Warn("price negotiation failed", "endpoint", endpoint, "error", err)
		} else {
			s.Price = offer.CounterOffer
		}
	}
	return s, true
}

// PlaceOrder orders over the supplier's direct channel.
func (d *Directory) PlaceOrder(ctx context.Context, s domain.Supplier, req domain.OrderRequest) (domain.DirectOrderResult, error) {
	var result domain.DirectOrderResult
	if err := d.postJSON(ctx, s.Endpoint+"/orders/direct", req, &result); err != nil {
		return domain.DirectOrderResult{}, err
	}
	if !result.Success {
		return result, fmt.Errorf("%w: %s: %s", domain.ErrOrderRejected, s.Name, result.Message)
	}
	return result, nil
}

func (d *Directory) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackend, err)
	}
	return d.do(req, out)
}

func (d *Directory) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackend, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return d.do(req, out)
}

func (d *Directory) do(req *http.Request, out any) error {
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned %d", domain.ErrBackend, req.URL.Path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrBackend, req.URL.Path, err)
	}
	return nil
}
