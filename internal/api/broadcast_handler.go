package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kidconnect/broadcast/internal/engine"
	"github.com/kidconnect/broadcast/internal/ledger"
)

// broadcastRequest is the POST /api/v1/broadcasts body.
type broadcastRequest struct {
	GroupFilter string `json:"group_filter"`
	Body        string `json:"body"`
}

// BroadcastHandler handles POST /api/v1/broadcasts: runs one dispatch and
// returns the batch accounting. The request context carries the operator's
// cancellation signal; a cancelled batch returns its partial result marked
// incomplete.
func BroadcastHandler(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req broadcastRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.GroupFilter == "" {
			respondError(w, http.StatusBadRequest, "group_filter is required")
			return
		}

		res, err := e.Dispatch(r.Context(), engine.Request{
			GroupFilter: req.GroupFilter,
			Body:        req.Body,
		})
		if err != nil {
			switch {
			case errors.Is(err, engine.ErrEmptyBody):
				respondError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, engine.ErrQuotaExceeded):
				respondError(w, http.StatusTooManyRequests, err.Error())
			default:
				var perr *ledger.PersistenceError
				if errors.As(err, &perr) {
					// The partial accounting is still returned so the
					// operator can see which recipients were reached.
					respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
						"error":  "delivery log write failed, batch aborted",
						"result": res,
					})
					return
				}
				respondError(w, http.StatusInternalServerError, "broadcast failed")
			}
			return
		}

		respondJSON(w, http.StatusOK, res)
	}
}
