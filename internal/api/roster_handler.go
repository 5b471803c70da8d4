package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/kidconnect/broadcast/internal/directory"
	"github.com/kidconnect/broadcast/internal/metrics"
)

const maxUploadBytes = 1 << 20

// RosterHandler handles PUT /api/v1/roster: replaces the entire roster from
// an uploaded CSV. The previous roster is kept untouched when any row fails
// validation.
func RosterHandler(dir *directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := directory.ParseRosterCSV(io.LimitReader(r.Body, maxUploadBytes))
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := dir.ReplaceRoster(rows); err != nil {
			var verr *directory.ValidationError
			if errors.As(err, &verr) {
				respondError(w, http.StatusUnprocessableEntity, verr.Error())
				return
			}
			respondError(w, http.StatusInternalServerError, "roster replacement failed")
			return
		}

		metrics.RosterSize.Set(float64(dir.Size()))
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"recipients": dir.Size(),
		})
	}
}

// AllowListHandler handles PUT /api/v1/allowlist: replaces the opt-in
// allow list from an uploaded CSV of contact identifiers.
func AllowListHandler(dir *directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identifiers, err := directory.ParseAllowListCSV(io.LimitReader(r.Body, maxUploadBytes))
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		dir.ReplaceAllowList(identifiers)
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"allowed": dir.AllowListSize(),
		})
	}
}
