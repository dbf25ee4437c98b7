package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/tickerhub/internal/domain"
)

const maxBatchCoins = 50

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	quotes, err := s.deps.Crypto.TopCoins(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, quotes)
}

func (s *Server) handlePricesBatch(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if strings.TrimSpace(raw) == "" {
		s.badRequest(w, "ids parameter is required", map[string]string{"ids": "must be a comma-separated list of coin ids"})
		return
	}

	ids := splitList(raw)
	if len(ids) == 0 {
		s.badRequest(w, "ids parameter is empty", map[string]string{"ids": "must contain at least one coin id"})
		return
	}
	if len(ids) > maxBatchCoins {
		s.badRequest(w, "too many ids", map[string]string{"ids": "at most 50 coin ids per request"})
		return
	}
	for _, id := range ids {
		if !domain.ValidCoinID(id) {
			s.badRequest(w, "invalid coin id", map[string]string{"ids": "coin ids match ^[a-z0-9-]+$: " + id})
			return
		}
	}

	quotes, err := s.deps.Crypto.BatchCoins(r.Context(), ids)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, quotes)
}

func (s *Server) handleCoinChart(w http.ResponseWriter, r *http.Request) {
	coinID := chi.URLParam(r, "coinId")
	rng := chi.URLParam(r, "range")

	details := map[string]string{}
	if !domain.ValidCoinID(coinID) {
		details["coinId"] = "must match ^[a-z0-9-]+$"
	}
	if _, ok := domain.CoinRanges[rng]; !ok {
		details["range"] = "must be one of 1D, 7D, 30D, 90D, 1Y"
	}
	if len(details) > 0 {
		s.badRequest(w, "invalid chart parameters", details)
		return
	}

	points, err := s.deps.Crypto.Chart(r.Context(), coinID, rng)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, points)
}

// splitList splits a comma-separated query value, dropping empty segments.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
