package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeValidator returns a canned identity or error.
type fakeValidator struct {
	identity *Identity
	err      error
}

func (f *fakeValidator) Validate(_ context.Context, _ string) (*Identity, error) {
	return f.identity, f.err
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hf_abc", BearerToken("Bearer hf_abc"))
	assert.Equal(t, "hf_abc", BearerToken("bearer hf_abc"))
	assert.Equal(t, "", BearerToken(""))
	assert.Equal(t, "", BearerToken("Basic dXNlcjpwYXNz"))
	assert.Equal(t, "", BearerToken("Bearer "))
}

func TestCheck(t *testing.T) {
	t.Parallel()

	valid := &fakeValidator{identity: &Identity{Username: "alice", Token: "tok"}}
	invalid := &fakeValidator{err: ErrUnauthorized}
	flaky := &fakeValidator{err: errors.New("connection refused")}

	tests := []struct {
		name      string
		validator Validator
		token     string
		forceAuth bool
		want      Result
	}{
		{"no token anonymous", valid, "", false, Result{}},
		{"no token force auth", valid, "", true, Result{Reject: true}},
		{"valid token", valid, "tok", false, Result{Identity: valid.identity, Authenticated: true}},
		{"invalid token", invalid, "tok", false, Result{Reject: true}},
		{"transient validator error", flaky, "tok", false, Result{}},
		{"transient error with force auth", flaky, "tok", true, Result{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Check(context.Background(), tt.validator, tt.token, tt.forceAuth)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteUnauthorized(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteUnauthorized(rec, "https://hub.example.com")

	assert.Equal(t, 401, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "oauth-protected-resource")
}

func TestIdentityRedaction(t *testing.T) {
	t.Parallel()

	id := &Identity{Username: "alice", Token: "hf_secret"}
	assert.NotContains(t, id.String(), "hf_secret")

	data, err := id.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hf_secret")
	assert.Contains(t, string(data), "REDACTED")
}

func TestIdentityContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, ok := IdentityFromContext(ctx)
	assert.False(t, ok)

	id := &Identity{Username: "alice"}
	ctx = WithIdentity(ctx, id)
	got, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, id, got)

	// nil identity leaves the context unchanged
	assert.Equal(t, ctx, WithIdentity(ctx, nil))
}
