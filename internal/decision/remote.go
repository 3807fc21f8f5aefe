package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rl1809/restock-agent/internal/core/domain"
)

var ErrInvalidRecommendation = errors.New("invalid recommendation")

// Remote asks an external advisor service. The service receives Inputs as
// JSON and answers with a domain.Recommendation.
type Remote struct {
	url    string
	client *http.Client
}

func NewRemote(url string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Remote{url: url, client: &http.Client{Timeout: timeout}}
}

func (r *Remote) Recommend(ctx context.Context, in Inputs) (domain.Recommendation, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return domain.Recommendation{}, fmt.Errorf("encode inputs: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return domain.Recommendation{}, fmt.Errorf("build advisor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.Recommendation{}, fmt.Errorf("%w: advisor: %v", domain.ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Recommendation{}, fmt.Errorf("%w: advisor returned %d", domain.ErrBackend, resp.StatusCode)
	}

	var rec domain.Recommendation
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return domain.Recommendation{}, fmt.Errorf("%w: decode: %v", ErrInvalidRecommendation, err)
	}
	if rec.Quantity <= 0 || rec.Quantity > domain.MaxOrderQuantity {
		return domain.Recommendation{}, fmt.Errorf("%w: quantity %d", ErrInvalidRecommendation, rec.Quantity)
	}
	rec.Urgency = domain.ClampUrgency(rec.Urgency)
	rec.Source = SourceRemote
	return rec, nil
}
