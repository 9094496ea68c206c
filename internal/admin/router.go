// Package admin serves the operator endpoints: Prometheus metrics, cache
// statistics and a liveness probe.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fwdproxy/internal/cache"
	"fwdproxy/internal/metrics"
)

type cacheReport struct {
	cache.Stats
	Keys []string `json:"keys"`
}

// NewRouter builds the admin handler. c may be nil when caching is disabled.
func NewRouter(c *cache.LRU) http.Handler {
	r := chi.NewRouter()

	r.Handle("/metrics", metrics.Handler())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/cache", func(w http.ResponseWriter, _ *http.Request) {
		if c == nil {
			http.Error(w, "cache disabled", http.StatusNotFound)
			return
		}
		report := cacheReport{Stats: c.Stats(), Keys: c.Keys()}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	})

	return r
}
