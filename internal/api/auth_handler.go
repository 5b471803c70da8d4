package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kidconnect/broadcast/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// LoginHandler handles POST /api/v1/login: verifies operator credentials and
// issues a bearer token.
func LoginHandler(authorizer auth.Authorizer, jwtSvc *auth.JWTService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Username == "" || req.Password == "" {
			respondError(w, http.StatusBadRequest, "username and password are required")
			return
		}

		role, err := authorizer.Authenticate(req.Username, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				respondError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			respondError(w, http.StatusInternalServerError, "authentication failed")
			return
		}

		token, err := jwtSvc.GenerateToken(req.Username, role)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to issue token")
			return
		}

		respondJSON(w, http.StatusOK, loginResponse{Token: token, Role: string(role)})
	}
}
