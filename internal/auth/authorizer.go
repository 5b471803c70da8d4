package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Role gates which parts of the operator surface a login may use.
type Role string

const (
	// RolePrincipal may manage the roster and allow list and broadcast.
	RolePrincipal Role = "principal"
	// RoleStaff may broadcast and read the message log.
	RoleStaff Role = "staff"
)

// ErrInvalidCredentials is returned for an unknown user or wrong password.
// The two cases are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authorizer authenticates operator logins.
type Authorizer interface {
	Authenticate(username, password string) (Role, error)
}

// Credential is one operator login entry with a bcrypt password hash.
type Credential struct {
	Username     string
	PasswordHash string
	Role         Role
}

// StaticAuthorizer authenticates against a fixed credential list, typically
// loaded from configuration.
type StaticAuthorizer struct {
	byUsername map[string]Credential
}

// NewStaticAuthorizer creates a StaticAuthorizer from the given credentials.
// Duplicate usernames are rejected.
func NewStaticAuthorizer(creds []Credential) (*StaticAuthorizer, error) {
	byUsername := make(map[string]Credential, len(creds))
	for _, c := range creds {
		if c.Username == "" {
			return nil, fmt.Errorf("credential with empty username")
		}
		if _, dup := byUsername[c.Username]; dup {
			return nil, fmt.Errorf("duplicate credential for %q", c.Username)
		}
		switch c.Role {
		case RolePrincipal, RoleStaff:
		default:
			return nil, fmt.Errorf("credential for %q has unknown role %q", c.Username, c.Role)
		}
		byUsername[c.Username] = c
	}
	return &StaticAuthorizer{byUsername: byUsername}, nil
}

// Authenticate verifies the password against the stored bcrypt hash and
// returns the operator's role.
func (a *StaticAuthorizer) Authenticate(username, password string) (Role, error) {
	cred, ok := a.byUsername[username]
	if !ok {
		// Unknown users cost the same as wrong passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$12$000000000000000000000u00000000000000000000000000000000"), []byte(password))
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return cred.Role, nil
}

const bcryptCost = 12

// HashPassword hashes a plaintext password using bcrypt with cost factor 12.
// Used by provisioning tooling, never at request time.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
