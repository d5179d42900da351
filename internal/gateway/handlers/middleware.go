package handlers

import (
	"net/http"
	"strings"
)

type Middleware struct {
	allowedOrigins []string
}

func NewMiddleware(allowedOrigins []string) *Middleware {
	return &Middleware{allowedOrigins: allowedOrigins}
}

// allowed reports whether an Origin header value may call the gateway.
// Requests without an Origin header (same-origin, curl) are allowed.
func (m *Middleware) allowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, prefix := range m.allowedOrigins {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// OriginMiddleware enforces the origin allow-list and handles CORS
func (m *Middleware) OriginMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if !m.allowed(origin) {
			writeError(w, http.StatusForbidden, ErrorBody{
				Message: "Unauthorized origin",
				Code:    "origin_not_allowed",
			})
			return
		}

		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Fingerprint-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
