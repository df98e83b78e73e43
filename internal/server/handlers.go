package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hyperjump/primr/internal/models"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   ServiceName,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, CollectStatus(r.Context(), s.engine.Knowledge(), s.catalog, s.config, s.logger))
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := s.answerer.AnswerDetailed(r.Context(), req.Question, req.K)
	s.logger.Info("query answered",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("sources", len(res.Sources)),
		zap.Int64("duration_ms", res.DurationMS))
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	start := time.Now()
	matches := s.engine.Search(r.Context(), req.Query, req.K)
	s.respondJSON(w, http.StatusOK, models.SearchResponse{
		Query:     req.Query,
		Matches:   matches,
		Total:     len(matches),
		QueryTime: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		s.respondError(w, http.StatusServiceUnavailable, "ingestion is not configured")
		return
	}
	report, err := s.Reindex(r.Context())
	if errors.Is(err, ErrReindexRunning) {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.respondJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "reindex failed: " + err.Error(),
			"report": report,
		})
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
