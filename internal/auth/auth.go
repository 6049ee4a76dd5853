// Package auth verifies the bearer credential a client presents at
// connection establishment and binds the resulting principal to the
// connection. Credential issuance (login/signup) lives in a separate
// service; this package only verifies.
package auth

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Principal is the authenticated identity bound to a connection for its
// whole lifetime. It is snapshotted into room occupant records at join time
// and never re-fetched.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Verifier turns a bearer credential into a Principal, or fails.
type Verifier interface {
	Verify(credential string) (Principal, error)
}

// CredentialFromRequest extracts the bearer credential from handshake
// metadata: the Authorization header when present, otherwise the `token`
// query parameter (browser WebSocket clients cannot set headers).
func CredentialFromRequest(r *http.Request) (string, error) {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", ErrInvalidCredentials
		}
		return strings.TrimSpace(token), nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", ErrMissingCredentials
}
