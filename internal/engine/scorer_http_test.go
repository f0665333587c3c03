package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPScorerPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Features["avg_correctness"] != 0.25 {
			t.Errorf("avg_correctness = %v, want 0.25", req.Features["avg_correctness"])
		}
		json.NewEncoder(w).Encode(scoreResponse{Score: 0.8, Confidence: 0.9})
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL)
	score, confidence, err := s.Predict(context.Background(), map[string]float64{"avg_correctness": 0.25})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if score != 0.8 || confidence != 0.9 {
		t.Errorf("Predict() = (%v, %v), want (0.8, 0.9)", score, confidence)
	}
}

func TestHTTPScorerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL)
	if _, _, err := s.Predict(context.Background(), nil); err == nil {
		t.Fatal("Predict() error = nil, want api error")
	}
}

func TestHTTPScorerFeedsThePredictor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(scoreResponse{Score: 0.92, Confidence: 0.8})
	}))
	defer srv.Close()

	p := NewRiskPredictor(NewHTTPScorer(srv.URL), Config{})
	ra := p.Assess(context.Background(), NeutralProfile("s1"), nil)
	if ra.Degraded {
		t.Fatalf("Degraded = true (%s)", ra.DegradedReason)
	}
	if ra.Band != RiskCritical {
		t.Errorf("Band = %s, want %s", ra.Band, RiskCritical)
	}
}
