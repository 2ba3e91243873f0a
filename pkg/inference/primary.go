package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Scorer is the primary backend: a classifier that maps an engineered
// feature vector to a coarse risk bucket (0 low .. 3 critical).
type Scorer interface {
	Score(ctx context.Context, features []float64) (int, error)
}

// ScoreRequest is the request for a risk classification.
type ScoreRequest struct {
	Features []float64 `json:"features"`
}

// ScoreResponse is the classifier's reply.
type ScoreResponse struct {
	RiskLevel *int `json:"risk_level"`
}

// RiskBuckets is the number of classes the scorer emits (0..RiskBuckets-1).
const RiskBuckets = 4

// ScoringClient is the HTTP client for the scoring service.
type ScoringClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewScoringClient creates a scoring service client.
func NewScoringClient(baseURL string, timeout time.Duration) *ScoringClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ScoringClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Score posts the feature vector and validates the returned bucket. Any
// failure is wrapped as a BackendError; the orchestrator does not retry this
// tier, so the transient flag only informs logging.
func (c *ScoringClient) Score(ctx context.Context, features []float64) (int, error) {
	body, err := json.Marshal(ScoreRequest{Features: features})
	if err != nil {
		return 0, &BackendError{Backend: "scoring", Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/score", bytes.NewReader(body))
	if err != nil {
		return 0, &BackendError{Backend: "scoring", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &BackendError{Backend: "scoring", Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return 0, &BackendError{
			Backend:   "scoring",
			Transient: transientStatus(resp.StatusCode),
			Err:       fmt.Errorf("score failed with status %d: %s", resp.StatusCode, string(raw)),
		}
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, &BackendError{Backend: "scoring", Err: fmt.Errorf("decode score response: %w", err)}
	}
	if result.RiskLevel == nil {
		return 0, &BackendError{Backend: "scoring", Err: fmt.Errorf("score response missing risk_level")}
	}
	if *result.RiskLevel < 0 || *result.RiskLevel >= RiskBuckets {
		return 0, &BackendError{Backend: "scoring", Err: fmt.Errorf("risk_level %d out of range", *result.RiskLevel)}
	}
	return *result.RiskLevel, nil
}
