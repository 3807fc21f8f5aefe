package domain

import (
	"fmt"
	"math"
)

// MaxOrderQuantity is the largest quantity the gRPC wire format can carry.
const MaxOrderQuantity = math.MaxInt32

// OrderRequest is the body of both phases of the order exchange.
type OrderRequest struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

func (r OrderRequest) Validate() error {
	if r.Item == "" {
		return fmt.Errorf("%w: item is required", ErrInvalidOrder)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOrder, r.Quantity)
	}
	if r.Quantity > MaxOrderQuantity {
		return fmt.Errorf("%w: quantity %d exceeds %d", ErrInvalidOrder, r.Quantity, MaxOrderQuantity)
	}
	return nil
}

// OrderResponse is the client-side view of one exchange. Invoice is set
// when the supplier demands payment; otherwise the success fields apply.
type OrderResponse struct {
	Invoice    *Invoice
	Success    bool
	Message    string
	TrackingID string
}

// PaymentRequiredBody is the 402 response body.
type PaymentRequiredBody struct {
	Error          string  `json:"error"`
	Message        string  `json:"message"`
	PaymentDetails Invoice `json:"paymentDetails"`
}

// OrderResultBody is the non-402 response body.
type OrderResultBody struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	TrackingID string `json:"trackingId,omitempty"`
}

// DiscoveryDocument is served at the supplier's well-known path.
type DiscoveryDocument struct {
	Name              string   `json:"name"`
	Capabilities      []string `json:"capabilities"`
	PaymentTypes      []string `json:"payment_types"`
	EstimatedDelivery string   `json:"estimated_delivery,omitempty"`
}

// HasCapability reports whether the document advertises c.
func (d DiscoveryDocument) HasCapability(c string) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

type NegotiationRequest struct {
	Quantity      int    `json:"quantity"`
	ProposedPrice string `json:"proposedPrice"`
}

type NegotiationResponse struct {
	CounterOffer string `json:"counterOffer"`
	ValidFor     int    `json:"validFor"`
}

// DirectOrderResult is the outcome of an order placed over the fallback channel.
type DirectOrderResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	ProtocolUsed string `json:"protocolUsed"`
}
