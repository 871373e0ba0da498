// Package auth provides the authorization gate applied by every transport
// before per-request work. Token validation against the Hub is modeled as an
// opaque Validator so transports never see Hub API details.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnauthorized is returned by a Validator when the Hub definitively
// rejected the token. Any other validator error is treated as a transient
// failure and must not be conflated with an auth failure.
var ErrUnauthorized = errors.New("unauthorized")

// Identity represents a caller validated against the Hub.
type Identity struct {
	// Username is the Hub account name.
	Username string

	// FullName is the human-readable name, if the Hub reports one.
	FullName string

	// Token is the original bearer token (for forwarding to private spaces).
	// Redacted in String() and MarshalJSON() to prevent leakage.
	Token string
}

// String returns a representation with the token redacted.
func (i *Identity) String() string {
	if i == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Identity{Username:%q}", i.Username)
}

// MarshalJSON redacts the token during JSON serialization so identities are
// safe to include in logs and API responses.
func (i *Identity) MarshalJSON() ([]byte, error) {
	if i == nil {
		return []byte("null"), nil
	}
	token := i.Token
	if token != "" {
		token = "REDACTED"
	}
	return json.Marshal(&struct {
		Username string `json:"username"`
		FullName string `json:"fullName"`
		Token    string `json:"token"`
	}{
		Username: i.Username,
		FullName: i.FullName,
		Token:    token,
	})
}

// Validator validates a bearer token against the Hub.
type Validator interface {
	// Validate returns the caller's identity for a valid token, or an error
	// wrapping ErrUnauthorized when the Hub rejected it. Other errors mean
	// the validation itself failed (network, 5xx) and the caller stays
	// unauthenticated without being rejected.
	Validate(ctx context.Context, token string) (*Identity, error)
}

// identityContextKey keys the Identity in a request context.
// An empty struct type avoids collisions with other packages' keys.
type identityContextKey struct{}

// WithIdentity stores an Identity in the context.
// If identity is nil, the original context is returned unchanged.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves an Identity from the context.
// Returns the identity and true if present, nil and false otherwise.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	return identity, ok
}
