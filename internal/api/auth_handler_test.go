package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kidconnect/broadcast/internal/auth"
)

func testAuthorizer(t *testing.T) *auth.StaticAuthorizer {
	t.Helper()
	hash, err := auth.HashPassword("letmein")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	a, err := auth.NewStaticAuthorizer([]auth.Credential{
		{Username: "principal", PasswordHash: hash, Role: auth.RolePrincipal},
	})
	if err != nil {
		t.Fatalf("failed to build authorizer: %v", err)
	}
	return a
}

func testJWT() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey:  "test-signing-key",
		TokenExpiry: time.Hour,
		Issuer:      "broadcast-test",
	})
}

func TestLoginHandler_Valid(t *testing.T) {
	jwtSvc := testJWT()
	handler := LoginHandler(testAuthorizer(t), jwtSvc)

	body := `{"username":"principal","password":"letmein"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d; body: %s", rec.Code, rec.Body.String())
	}

	var resp loginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Role != "principal" {
		t.Errorf("expected role principal, got %s", resp.Role)
	}

	claims, err := jwtSvc.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("issued token failed validation: %v", err)
	}
	if claims.Role != string(auth.RolePrincipal) {
		t.Errorf("expected principal claim, got %s", claims.Role)
	}
}

func TestLoginHandler_WrongPassword(t *testing.T) {
	handler := LoginHandler(testAuthorizer(t), testJWT())

	body := `{"username":"principal","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestLoginHandler_MissingFields(t *testing.T) {
	handler := LoginHandler(testAuthorizer(t), testJWT())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(`{"username":"principal"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}
