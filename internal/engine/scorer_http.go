package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPScorer calls an external risk scoring model over HTTP. The model
// receives the feature vector and answers with a score and confidence; the
// predictor's timeout and fallback policy apply on top.
type HTTPScorer struct {
	url    string
	client *http.Client
}

// HTTPScorerOption configures an HTTPScorer.
type HTTPScorerOption func(*HTTPScorer)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPScorerOption {
	return func(s *HTTPScorer) {
		s.client = client
	}
}

// NewHTTPScorer creates a scorer client for the given endpoint.
func NewHTTPScorer(url string, opts ...HTTPScorerOption) *HTTPScorer {
	s := &HTTPScorer{
		url:    url,
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type scoreRequest struct {
	Features map[string]float64 `json:"features"`
}

type scoreResponse struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// Predict implements Scorer.
func (s *HTTPScorer) Predict(ctx context.Context, features map[string]float64) (float64, float64, error) {
	body, err := json.Marshal(scoreRequest{Features: features})
	if err != nil {
		return 0, 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("scorer api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var sr scoreResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return 0, 0, fmt.Errorf("unmarshal response: %w", err)
	}
	return sr.Score, sr.Confidence, nil
}
