package api

import (
	"net/http"

	"github.com/kidconnect/broadcast/internal/ledger"
)

// LogHandler handles GET /api/v1/log: returns every delivery attempt in
// append order.
func LogHandler(led ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attempts, err := led.ReadAll(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to read delivery log")
			return
		}
		if attempts == nil {
			attempts = []ledger.Attempt{}
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"count":    len(attempts),
			"attempts": attempts,
		})
	}
}
