package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// routeTTL holds per-route cache durations in seconds for GET
// responses; everything else falls back to the configured default.
var routeTTL = map[string]int{
	"/api/stats":          300,
	"/api/monitored-tags": 600,
	"/api/entries":        300,
}

// cacheControl stamps GET responses with Cache-Control and Expires
// headers so a fronting proxy can absorb repeated dashboard polls.
func (s *Server) cacheControl(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		ttl := s.ttlFor(r.URL.Path)
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", ttl))
		w.Header().Set("Expires", time.Now().UTC().Add(time.Duration(ttl)*time.Second).Format(http.TimeFormat))
		w.Header().Set("Vary", "Accept-Encoding")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) ttlFor(path string) int {
	path = "/" + strings.Trim(path, "/")
	for route, ttl := range routeTTL {
		if path == route || strings.HasPrefix(path, route+"/") {
			return ttl
		}
	}
	return s.defaultTTL
}
