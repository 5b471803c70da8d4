package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a backing store is reachable. The file ledger has
// no external store, so readiness may run without one.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles GET /healthz: process liveness.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyHandler handles GET /readyz: readiness including the delivery log
// store when one is configured.
func ReadyHandler(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"reason": "delivery log store unreachable",
				})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
