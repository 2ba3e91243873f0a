package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoringClientSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/score", r.URL.Path)
		var req ScoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Features, FeatureWidth)
		level := 2
		json.NewEncoder(w).Encode(ScoreResponse{RiskLevel: &level})
	}))
	defer srv.Close()

	client := NewScoringClient(srv.URL, 5*time.Second)
	bucket, err := client.Score(context.Background(), make([]float64, FeatureWidth))
	require.NoError(t, err)
	assert.Equal(t, 2, bucket)
}

func TestScoringClientRejectsBadBucket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		level := 7
		json.NewEncoder(w).Encode(ScoreResponse{RiskLevel: &level})
	}))
	defer srv.Close()

	client := NewScoringClient(srv.URL, 5*time.Second)
	_, err := client.Score(context.Background(), make([]float64, FeatureWidth))
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestScoringClientMissingRiskLevel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewScoringClient(srv.URL, 5*time.Second)
	_, err := client.Score(context.Background(), make([]float64, FeatureWidth))
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestScoringClientServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewScoringClient(srv.URL, 5*time.Second)
	_, err := client.Score(context.Background(), make([]float64, FeatureWidth))
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestGenerativeClientSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/generate", r.URL.Path)
		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Prompt)
		assert.Equal(t, 1000, req.MaxTokens)
		json.NewEncoder(w).Encode(GenerateResponse{Text: `{"risk_score": 40, "explanation": "ok", "recommendations": ["x"]}`})
	}))
	defer srv.Close()

	client := NewGenerativeClient(srv.URL, 5*time.Second)
	text, err := client.Generate(context.Background(), "analyze this", GenParams{MaxTokens: 1000, Temperature: 0.3})
	require.NoError(t, err)
	assert.Contains(t, text, "risk_score")
}

func TestGenerativeClientStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		client := NewGenerativeClient(srv.URL, 5*time.Second)
		_, err := client.Generate(context.Background(), "p", GenParams{})
		srv.Close()
		require.Error(t, err, tc.status)
		assert.Equal(t, tc.transient, IsTransient(err), "status %d", tc.status)
	}
}

func TestGenerativeClientEmptyTextIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": ""}`))
	}))
	defer srv.Close()

	client := NewGenerativeClient(srv.URL, 5*time.Second)
	_, err := client.Generate(context.Background(), "p", GenParams{})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}
