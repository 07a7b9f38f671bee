package middleware

import (
	"fmt"
	"net/http"
)

// CacheControl marks GET responses as cacheable by shared caches for maxAge
// seconds. Autocomplete results tolerate that much staleness.
func CacheControl(maxAge int) func(http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d", maxAge)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet && maxAge > 0 {
				w.Header().Set("Cache-Control", value)
				w.Header().Add("Vary", "Accept-Encoding")
			}
			next.ServeHTTP(w, r)
		})
	}
}
