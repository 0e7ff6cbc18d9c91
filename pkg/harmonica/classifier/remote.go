package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/cognicore/harmonica/pkg/harmonica/internalerr"
)

// Remote scores sequences through a TensorFlow-Serving style REST predict
// endpoint: it posts {"instances": [[ids...], ...]} and expects
// {"predictions": [p, ...]} where each p is a number or a one-element array.
type Remote struct {
	URL    string
	APIKey string

	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Breaker    *gobreaker.CircuitBreaker
}

// NewRemote returns a client limited to rps requests per second with a
// breaker that opens after three consecutive failures.
func NewRemote(url string, rps float64) *Remote {
	r := &Remote{URL: url}
	if rps > 0 {
		r.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	r.Breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "classifier",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return r
}

type predictRequest struct {
	Instances [][]int `json:"instances"`
}

type predictResponse struct {
	Predictions []prediction `json:"predictions"`
	Error       string       `json:"error"`
}

// prediction accepts both 0.93 and [0.93].
type prediction float64

func (p *prediction) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*p = prediction(v)
		return nil
	}
	var arr []float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 1 {
		return fmt.Errorf("prediction has %d outputs, want 1", len(arr))
	}
	*p = prediction(arr[0])
	return nil
}

// Score implements Scorer.
func (r *Remote) Score(ctx context.Context, batch [][]int) ([]float64, error) {
	if r.URL == "" {
		return nil, fmt.Errorf("remote classifier: URL required: %w", internalerr.ErrInvalidConfig)
	}
	if r.Limiter != nil {
		if err := r.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if r.Breaker == nil {
		return r.send(ctx, batch)
	}
	out, err := r.Breaker.Execute(func() (interface{}, error) {
		return r.send(ctx, batch)
	})
	if err != nil {
		return nil, err
	}
	return out.([]float64), nil
}

func (r *Remote) send(ctx context.Context, batch [][]int) ([]float64, error) {
	body, err := json.Marshal(predictRequest{Instances: batch})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("remote classifier: status %d: %s: %w", resp.StatusCode, bytes.TrimSpace(msg), internalerr.ErrScorer)
	}

	var payload predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("remote classifier: decode: %w", err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("remote classifier: %s: %w", payload.Error, internalerr.ErrScorer)
	}
	if len(payload.Predictions) != len(batch) {
		return nil, fmt.Errorf("remote classifier: %d predictions for %d instances: %w", len(payload.Predictions), len(batch), internalerr.ErrScorer)
	}

	out := make([]float64, len(payload.Predictions))
	for i, p := range payload.Predictions {
		out[i] = float64(p)
	}
	return out, nil
}

func (r *Remote) httpClient() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}
