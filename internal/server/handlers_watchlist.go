package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/tickerhub/internal/modules/watchlist"
)

func (s *Server) handleWatchlistList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Watchlist.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleWatchlistAdd(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type    string `json:"type"`
		AssetID string `json:"assetId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "invalid request body", map[string]string{"body": "must be JSON with type and assetId fields"})
		return
	}

	entry, err := s.deps.Watchlist.Add(r.Context(), body.Type, body.AssetID)
	switch {
	case errors.Is(err, watchlist.ErrInvalidType):
		s.badRequest(w, err.Error(), map[string]string{"type": "must be stock or crypto"})
	case errors.Is(err, watchlist.ErrEmptyAssetID):
		s.badRequest(w, err.Error(), map[string]string{"assetId": "must be a non-empty string"})
	case errors.Is(err, watchlist.ErrAlreadySaved):
		s.respondJSON(w, http.StatusConflict, errorBody{
			Error:   "Conflict",
			Message: err.Error(),
		})
	case err != nil:
		s.internalError(w, err)
	default:
		s.respondJSON(w, http.StatusCreated, entry)
	}
}

func (s *Server) handleWatchlistRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.deps.Watchlist.Remove(r.Context(), id)
	switch {
	case errors.Is(err, watchlist.ErrNotFound):
		s.notFound(w, "watchlist entry not found")
	case err != nil:
		s.internalError(w, err)
	default:
		s.respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
	}
}
