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

// Generator is the secondary backend: a generative model prompted for a
// structured risk assessment. The reply is free text expected to contain one
// JSON object.
type Generator interface {
	Generate(ctx context.Context, prompt string, params GenParams) (string, error)
}

// GenParams are the generation parameters sent with every prompt.
type GenParams struct {
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// GenerateRequest is the wire request for the generative service.
type GenerateRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// GenerateResponse is the generative service's reply.
type GenerateResponse struct {
	Text string `json:"text"`
}

// GenerativeClient is the HTTP client for the generative text service.
type GenerativeClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGenerativeClient creates a generative service client.
func NewGenerativeClient(baseURL string, timeout time.Duration) *GenerativeClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GenerativeClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Generate posts the prompt and returns the raw reply text. Throttling and
// availability failures are marked transient so the orchestrator's backoff
// loop retries them; malformed requests are permanent.
func (c *GenerativeClient) Generate(ctx context.Context, prompt string, params GenParams) (string, error) {
	body, err := json.Marshal(GenerateRequest{
		Prompt:      prompt,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	})
	if err != nil {
		return "", &BackendError{Backend: "generative", Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return "", &BackendError{Backend: "generative", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &BackendError{Backend: "generative", Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", &BackendError{
			Backend:   "generative",
			Transient: transientStatus(resp.StatusCode),
			Err:       fmt.Errorf("generate failed with status %d: %s", resp.StatusCode, string(raw)),
		}
	}

	var result GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &BackendError{Backend: "generative", Err: fmt.Errorf("decode generate response: %w", err)}
	}
	if result.Text == "" {
		return "", &BackendError{Backend: "generative", Err: fmt.Errorf("generate response has empty text")}
	}
	return result.Text, nil
}
