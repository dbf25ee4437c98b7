package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/tickerhub/internal/metrics"
)

// securityHeaders marks every /api response as uncacheable and opts out of
// MIME sniffing. Market data is too short-lived for intermediary caches.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

// rateLimit enforces the per-IP fixed window and emits the X-RateLimit
// headers on every response, plus Retry-After on rejection.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		allowed, remaining, resetAt := s.limiter.Allow(ip)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.deps.Config.ClientRequestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			metrics.ClientRejections.Inc()
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			s.respondJSON(w, http.StatusTooManyRequests, errorBody{
				Error:   "Too Many Requests",
				Message: "Rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitBody caps request bodies to deflect payload bombs; only POST routes
// read bodies and none of them needs more than a few hundred bytes.
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// requireToken guards the watchlist routes with the static API token that
// stands in for the external identity service.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.deps.Config.APIToken
		if token == "" {
			s.notConfigured(w, "Watchlist is not configured")
			return
		}

		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
			s.respondJSON(w, http.StatusUnauthorized, errorBody{
				Error:   "Unauthorized",
				Message: "Missing or invalid bearer token",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
