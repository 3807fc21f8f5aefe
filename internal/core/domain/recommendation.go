package domain

// MaxUrgency is the top of the 0..10 urgency scale.
const MaxUrgency = 10

// Recommendation is one decision cycle's advice.
type Recommendation struct {
	ShouldRestock bool   `json:"shouldRestock"`
	Quantity      int    `json:"recommendedQuantity"`
	Urgency       int    `json:"urgencyScore"`
	Reason        string `json:"reason"`
	Source        string `json:"source,omitempty"`
}

// ClampUrgency bounds u to 0..MaxUrgency.
func ClampUrgency(u int) int {
	if u < 0 {
		return 0
	}
	if u > MaxUrgency {
		return MaxUrgency
	}
	return u
}

// Supplier is an alternate supplier produced by fallback discovery.
type Supplier struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Endpoint          string `json:"endpoint"`
	EstimatedDelivery string `json:"estimatedDelivery"`
	Price             string `json:"price"`
}
