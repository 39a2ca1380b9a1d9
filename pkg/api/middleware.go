package api

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odvcencio/leadsplit/pkg/auth"
	"github.com/odvcencio/leadsplit/pkg/logging"
)

const requestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// requestMiddleware assigns a request id, attaches a request logger,
// recovers panics and records one log line and metric per request.
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		log := s.logger.WithRequest(requestID, r.Method, r.URL.Path)
		r = r.WithContext(logging.IntoContext(r.Context(), log))
		rec := &statusRecorder{ResponseWriter: w}

		defer func() {
			if p := recover(); p != nil {
				log.Error("panic serving request", "panic", p)
				if rec.status == 0 {
					writeError(rec, http.StatusInternalServerError, "Server error")
				}
			}
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			metricRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metricRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
			log.Info("request",
				"route", route,
				"status", status,
				"duration_ms", elapsed.Milliseconds(),
			)
		}()

		next.ServeHTTP(rec, r)
	})
}

// securityHeadersMiddleware adds standard security headers to responses.
func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers based on allowed origins configuration.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if allowed, wildcard := s.isOriginAllowed(origin); allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				if !wildcard {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+requestIDHeader)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isOriginAllowed checks if the provided origin is in the allowed origins list.
func (s *Server) isOriginAllowed(origin string) (allowed bool, wildcard bool) {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false, false
	}
	normalized := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)

	wildcardPresent := false
	for _, allowedOrigin := range s.allowedOrigins {
		allowedOrigin = strings.TrimSpace(allowedOrigin)
		switch {
		case allowedOrigin == "":
		case allowedOrigin == "*":
			wildcardPresent = true
		case strings.EqualFold(strings.TrimSuffix(allowedOrigin, "/"), normalized):
			return true, false
		}
	}
	if wildcardPresent {
		return true, true
	}

	// Local development front ends are allowed when nothing is configured.
	if len(s.allowedOrigins) == 0 {
		host := parsed.Hostname()
		if strings.EqualFold(host, "localhost") {
			return true, false
		}
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			return true, false
		}
	}
	return false, false
}

// authMiddleware requires a valid bearer token and attaches its principal.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "No token, authorization denied")
			return
		}
		claims, err := s.tokens.Validate(token)
		if err != nil {
			logging.FromContext(r.Context(), s.logger).Debug("token rejected", "reason", err.Error())
			writeError(w, http.StatusUnauthorized, "Token is not valid")
			return
		}
		ctx := auth.WithPrincipal(r.Context(), claims.Principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
