package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/tickerhub/internal/modules/ai"
)

func (s *Server) handleAISearch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "invalid request body", map[string]string{"body": "must be JSON with a query field"})
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		s.badRequest(w, "query is required", map[string]string{"query": "must be a non-empty string"})
		return
	}

	// Always succeeds: the keyword fallback covers every LLM failure mode.
	filters := s.deps.AI.ParseSearchQuery(r.Context(), body.Query)
	s.respondJSON(w, http.StatusOK, filters)
}

func (s *Server) handleAISummary(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if !validSymbol(symbol) {
		s.badRequest(w, "invalid symbol", map[string]string{"symbol": "must be 1-10 characters: letters, digits, dot, dash"})
		return
	}

	summary, err := s.deps.AI.SummarizeStock(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, ai.ErrNotConfigured) {
			s.notConfigured(w, "LLM provider is not configured")
			return
		}
		s.unavailable(w, "LLM provider is unavailable")
		return
	}
	if summary == nil {
		s.notFound(w, "stock not found")
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAIMarket(w http.ResponseWriter, r *http.Request) {
	overview, err := s.deps.AI.MarketOverview(r.Context())
	if err != nil {
		if errors.Is(err, ai.ErrNotConfigured) {
			s.notConfigured(w, "LLM provider is not configured")
			return
		}
		s.unavailable(w, "LLM provider is unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, overview)
}

func (s *Server) handleAIStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.deps.AI.Status())
}
