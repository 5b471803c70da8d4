package auth

import (
	"errors"
	"testing"
)

func testAuthorizer(t *testing.T) *StaticAuthorizer {
	t.Helper()
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	a, err := NewStaticAuthorizer([]Credential{
		{Username: "principal", PasswordHash: hash, Role: RolePrincipal},
		{Username: "staff", PasswordHash: hash, Role: RoleStaff},
	})
	if err != nil {
		t.Fatalf("new authorizer: %v", err)
	}
	return a
}

func TestAuthenticate_Success(t *testing.T) {
	a := testAuthorizer(t)

	role, err := a.Authenticate("principal", "secret")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if role != RolePrincipal {
		t.Errorf("expected role principal, got %s", role)
	}

	role, err = a.Authenticate("staff", "secret")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if role != RoleStaff {
		t.Errorf("expected role staff, got %s", role)
	}
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	a := testAuthorizer(t)

	_, err := a.Authenticate("principal", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	a := testAuthorizer(t)

	_, err := a.Authenticate("nobody", "secret")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestNewStaticAuthorizer_RejectsDuplicates(t *testing.T) {
	_, err := NewStaticAuthorizer([]Credential{
		{Username: "principal", PasswordHash: "x", Role: RolePrincipal},
		{Username: "principal", PasswordHash: "y", Role: RoleStaff},
	})
	if err == nil {
		t.Error("expected error for duplicate username, got nil")
	}
}

func TestNewStaticAuthorizer_RejectsUnknownRole(t *testing.T) {
	_, err := NewStaticAuthorizer([]Credential{
		{Username: "x", PasswordHash: "h", Role: "superuser"},
	})
	if err == nil {
		t.Error("expected error for unknown role, got nil")
	}
}
