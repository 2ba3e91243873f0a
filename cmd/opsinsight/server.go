package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"opsinsight/pkg/event"
	"opsinsight/pkg/insight"
	"opsinsight/pkg/pipeline"
	"opsinsight/pkg/storage"
	"opsinsight/pkg/structlog"
)

// maxBatchBytes bounds the ingest request body.
const maxBatchBytes = 4 << 20

type apiServer struct {
	pipeline *pipeline.Pipeline
	store    *insight.Store
	log      *structlog.Logger
}

func newAPIServer(p *pipeline.Pipeline, s *insight.Store, log *structlog.Logger) *apiServer {
	if log == nil {
		log = structlog.NewLogger("api", structlog.LevelInfo, nil)
	}
	return &apiServer{pipeline: p, store: s, log: log}
}

type eventsRequest struct {
	Events []event.RawEvent `json:"events"`
}

type eventsResponse struct {
	Outcomes []pipeline.Outcome `json:"outcomes"`
	Accepted int                `json:"accepted"`
	Dropped  int                `json:"dropped"`
	Failed   int                `json:"failed"`
}

// handleEvents ingests a batch of raw telemetry events.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req eventsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "events must not be empty")
		return
	}

	outcomes := s.pipeline.Apply(r.Context(), req.Events)

	resp := eventsResponse{Outcomes: outcomes}
	for _, out := range outcomes {
		switch out.Status {
		case pipeline.StatusOK:
			resp.Accepted++
		case pipeline.StatusDropped:
			resp.Dropped++
		default:
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleInsight serves GET /v1/insights/{id}.
func (s *apiServer) handleInsight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/insights/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "missing insight id")
		return
	}

	ins, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "insight not found")
			return
		}
		s.log.WithContext(r.Context()).Error("load insight", structlog.Fields{"insight_id": id, "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, ins)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
