package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/spacegate/spacegate/pkg/logger"
)

// Result is the outcome of the authorization gate for one request.
type Result struct {
	// Identity is non-nil only when the token validated successfully.
	Identity *Identity

	// Authenticated reports whether the caller presented a valid token.
	Authenticated bool

	// Reject means the transport must answer 401 before any per-request work.
	Reject bool
}

// BearerToken extracts the token from an "Authorization: Bearer ..." value.
// Returns the empty string when no bearer token is present.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// Check runs the authorization gate.
//
// Outcomes:
//   - no token, forceAuth set: reject with 401
//   - no token otherwise: continue anonymously
//   - valid token: authenticated with the caller's identity
//   - definitively invalid token: reject with 401
//   - any other validator error: continue unauthenticated; a network error
//     is not an auth failure
func Check(ctx context.Context, validator Validator, token string, forceAuth bool) Result {
	if token == "" {
		if forceAuth {
			return Result{Reject: true}
		}
		return Result{}
	}

	identity, err := validator.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return Result{Reject: true}
		}
		logger.Warnf("Token validation failed transiently, continuing unauthenticated: %v", err)
		return Result{}
	}

	return Result{Identity: identity, Authenticated: true}
}

// WriteUnauthorized answers a rejected request with 401 and the
// OAuth protected-resource hint so MCP clients can start an auth flow.
func WriteUnauthorized(w http.ResponseWriter, hubBaseURL string) {
	w.Header().Set("WWW-Authenticate",
		`Bearer resource_metadata="`+hubBaseURL+`/.well-known/oauth-protected-resource"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
