// Package middleware provides HTTP middleware for the TerraMind API.
package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// preflightMaxAge is how long browsers may cache a preflight response.
const preflightMaxAge = 10 * time.Minute

// CORS returns middleware that handles cross-origin requests from the
// dashboard and the voice gateway. The API only ever serves GET and
// POST; responses vary by Origin so caches keyed on the URL alone do
// not leak one origin's headers to another.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	explicit := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			continue
		}
		explicit[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || explicit[origin]) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				// Credentials only for origins listed by name. Echoing a
				// wildcard-matched origin with credentials enables CSRF.
				if explicit[origin] {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(int(preflightMaxAge.Seconds())))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
