package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacegate/spacegate/pkg/auth"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, WithHTTPClient(srv.Client()))
}

func TestSpaceInfo(t *testing.T) {
	t.Parallel()

	var gotIfNoneMatch string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/spaces/acme/foo", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		gotIfNoneMatch = r.Header.Get("If-None-Match")

		w.Header().Set("ETag", `"W1"`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"subdomain": "acme-foo",
			"private": false,
			"sdk": "gradio",
			"cardData": {"emoji": "🚀"},
			"runtime": {"stage": "RUNNING", "hardware": {"current": "cpu-basic"}}
		}`))
	})

	result, err := client.SpaceInfo(context.Background(), "acme/foo", "tok", "")
	require.NoError(t, err)
	require.NotNil(t, result.Info)
	assert.False(t, result.NotModified)
	assert.Empty(t, gotIfNoneMatch)

	info := result.Info
	assert.Equal(t, "acme/foo", info.Name)
	assert.Equal(t, "acme-foo", info.Subdomain)
	assert.Equal(t, "gradio", info.SDK)
	assert.Equal(t, "🚀", info.Emoji)
	assert.Equal(t, `"W1"`, info.ETag)
	require.NotNil(t, info.Runtime)
	assert.Equal(t, "RUNNING", info.Runtime.Stage)
	assert.Equal(t, "cpu-basic", info.Runtime.Hardware)
	assert.True(t, info.IsGradio())
}

func TestSpaceInfoNotModified(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"W1"`, r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusNotModified)
	})

	result, err := client.SpaceInfo(context.Background(), "acme/foo", "", `"W1"`)
	require.NoError(t, err)
	assert.True(t, result.NotModified)
	assert.Nil(t, result.Info)
}

func TestSpaceInfoNotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	_, err := client.SpaceInfo(context.Background(), "acme/missing", "", "")
	require.ErrorIs(t, err, ErrSpaceNotFound)
}

func TestSpaceInfoErrorBodyCapped(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", 4000)))
	})

	_, err := client.SpaceInfo(context.Background(), "acme/foo", "", "")
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 700)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid token", func(t *testing.T) {
		t.Parallel()
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/whoami-v2", r.URL.Path)
			assert.Equal(t, "Bearer hf_good", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"name": "alice", "fullname": "Alice Doe"}`))
		})

		identity, err := client.Validate(context.Background(), "hf_good")
		require.NoError(t, err)
		assert.Equal(t, "alice", identity.Username)
		assert.Equal(t, "Alice Doe", identity.FullName)
		assert.Equal(t, "hf_good", identity.Token)
	})

	t.Run("rejected token", func(t *testing.T) {
		t.Parallel()
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "invalid token", http.StatusUnauthorized)
		})

		_, err := client.Validate(context.Background(), "hf_bad")
		require.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("hub outage is not an auth failure", func(t *testing.T) {
		t.Parallel()
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "oops", http.StatusBadGateway)
		})

		_, err := client.Validate(context.Background(), "hf_good")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrUnauthorized)
	})
}

func TestUserSettings(t *testing.T) {
	t.Parallel()

	t.Run("settings present", func(t *testing.T) {
		t.Parallel()
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/settings/mcp", r.URL.Path)
			_, _ = w.Write([]byte(`{"builtInTools": ["hf_doc_search"], "gradioSpaces": ["acme/foo"]}`))
		})

		settings, err := client.UserSettings(context.Background(), "tok")
		require.NoError(t, err)
		require.NotNil(t, settings)
		assert.Equal(t, []string{"hf_doc_search"}, settings.BuiltInTools)
		assert.Equal(t, []string{"acme/foo"}, settings.GradioSpaces)
	})

	t.Run("anonymous has no settings", func(t *testing.T) {
		t.Parallel()
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			t.Error("no request expected for empty token")
			w.WriteHeader(http.StatusInternalServerError)
		})

		settings, err := client.UserSettings(context.Background(), "")
		require.NoError(t, err)
		assert.Nil(t, settings)
	})

	t.Run("no stored settings", func(t *testing.T) {
		t.Parallel()
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "none", http.StatusNotFound)
		})

		settings, err := client.UserSettings(context.Background(), "tok")
		require.NoError(t, err)
		assert.Nil(t, settings)
	})
}
