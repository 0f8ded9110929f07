package middleware

import (
	"net/http"
	"os"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	// Last-Event-ID lets browsers resume an SSE stream after a reconnect
	corsAllowHeaders = "Content-Type, Authorization, Last-Event-ID"
	corsMaxAge       = "600"
)

type corsPolicy struct {
	anyOrigin bool
	origins   map[string]struct{}
}

// loadCORSPolicy reads ALLOWED_ORIGINS, a comma-separated list. Unset means any origin.
func loadCORSPolicy() corsPolicy {
	raw := os.Getenv("ALLOWED_ORIGINS")
	if raw == "" {
		return corsPolicy{anyOrigin: true}
	}
	policy := corsPolicy{origins: make(map[string]struct{})}
	for _, origin := range strings.Split(raw, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			policy.anyOrigin = true
			continue
		}
		if origin != "" {
			policy.origins[origin] = struct{}{}
		}
	}
	return policy
}

func (p corsPolicy) allowOrigin(h http.Header, origin string) bool {
	if p.anyOrigin {
		h.Set("Access-Control-Allow-Origin", "*")
		return true
	}
	if _, ok := p.origins[origin]; ok {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		return true
	}
	return false
}

// CORSMiddleware lets browser dashboards call the queue API and open streams
func CORSMiddleware(next http.Handler) http.Handler {
	policy := loadCORSPolicy()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := origin != "" && policy.allowOrigin(w.Header(), origin)

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
				w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
				w.Header().Set("Access-Control-Max-Age", corsMaxAge)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
