package server

import (
	"encoding/json"
	"net/http"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	Error      string            `json:"error"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Configured *bool             `json:"configured,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondRaw writes an upstream passthrough payload without re-encoding.
func (s *Server) respondRaw(w http.ResponseWriter, payload json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		s.log.Error().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) badRequest(w http.ResponseWriter, message string, details map[string]string) {
	s.respondJSON(w, http.StatusBadRequest, errorBody{
		Error:   "Bad Request",
		Message: message,
		Details: details,
	})
}

func (s *Server) notFound(w http.ResponseWriter, message string) {
	s.respondJSON(w, http.StatusNotFound, errorBody{
		Error:   "Not Found",
		Message: message,
	})
}

// notConfigured reports a 503 caused by absent provider credentials,
// distinguished from transient unavailability by configured:false.
func (s *Server) notConfigured(w http.ResponseWriter, message string) {
	configured := false
	s.respondJSON(w, http.StatusServiceUnavailable, errorBody{
		Error:      "Service Unavailable",
		Message:    message,
		Configured: &configured,
	})
}

func (s *Server) unavailable(w http.ResponseWriter, message string) {
	s.respondJSON(w, http.StatusServiceUnavailable, errorBody{
		Error:   "Service Unavailable",
		Message: message,
	})
}

// internalError hides the underlying message in production.
func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("Request failed")

	message := "Internal server error"
	if !s.deps.Config.IsProduction() && err != nil {
		message = err.Error()
	}
	s.respondJSON(w, http.StatusInternalServerError, errorBody{
		Error:   "Internal Server Error",
		Message: message,
	})
}
