package gradio

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacegate/spacegate/pkg/hub"
)

// fakeHub is a canned SpaceInfoProvider that records conditional headers and
// per-space call counts.
type fakeHub struct {
	mu          sync.Mutex
	calls       map[string]int
	ifNoneMatch map[string]string
	respond     func(name, ifNoneMatch string) (*hub.SpaceInfoResult, error)
}

func newFakeHub(respond func(name, ifNoneMatch string) (*hub.SpaceInfoResult, error)) *fakeHub {
	return &fakeHub{
		calls:       make(map[string]int),
		ifNoneMatch: make(map[string]string),
		respond:     respond,
	}
}

func (f *fakeHub) SpaceInfo(_ context.Context, name, _, ifNoneMatch string) (*hub.SpaceInfoResult, error) {
	f.mu.Lock()
	f.calls[name]++
	f.ifNoneMatch[name] = ifNoneMatch
	f.mu.Unlock()
	return f.respond(name, ifNoneMatch)
}

func (f *fakeHub) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeHub) lastIfNoneMatch(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ifNoneMatch[name]
}

func publicSpace(name, etag string) *hub.SpaceInfo {
	return &hub.SpaceInfo{Name: name, Subdomain: subdomainFor(name), SDK: hub.SDKGradio, ETag: etag}
}

func privateSpace(name string) *hub.SpaceInfo {
	return &hub.SpaceInfo{Name: name, Subdomain: subdomainFor(name), SDK: hub.SDKGradio, Private: true}
}

func subdomainFor(name string) string {
	return map[string]string{"a/x": "a-x", "b/y": "b-y", "c/z": "c-z"}[name]
}

// schemaServer answers every subdomain with a single-tool array schema.
func schemaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"name":"predict","inputSchema":{"type":"object"}}]`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		MetadataTTL:      time.Minute,
		SchemaTTL:        time.Minute,
		Concurrency:      10,
		SpaceInfoTimeout: 2 * time.Second,
		SchemaTimeout:    2 * time.Second,
	}
}

func TestDiscoveryColdRun(t *testing.T) {
	t.Parallel()
	provider := newFakeHub(func(name, _ string) (*hub.SpaceInfoResult, error) {
		if name == "c/z" {
			return &hub.SpaceInfoResult{Info: privateSpace(name)}, nil
		}
		return &hub.SpaceInfoResult{Info: publicSpace(name, "")}, nil
	})
	schemas := schemaServer(t)
	d := NewDiscoverer(provider, testDiscoveryConfig(),
		WithSchemaURL(func(sub string) string { return schemas.URL + "/" + sub }))

	spaces := d.GetGradioSpaces(context.Background(), []string{"a/x", "b/y", "c/z"}, "tok", DiscoverOptions{})

	require.Len(t, spaces, 3)
	assert.Equal(t, "a/x", spaces[0].Info.Name)
	require.Len(t, spaces[0].Tools, 1)
	assert.Equal(t, "predict", spaces[0].Tools[0].Name)

	// Privacy invariant: the private space is in neither cache level.
	assert.Equal(t, 2, d.MetadataCache().Size())
	assert.Equal(t, 2, d.SchemaCache().Size())
	_, cached := d.MetadataCache().GetForRevalidation("c/z")
	assert.False(t, cached)
}

func TestDiscoveryWarmRunServesPublicFromCache(t *testing.T) {
	t.Parallel()
	provider := newFakeHub(func(name, _ string) (*hub.SpaceInfoResult, error) {
		if name == "c/z" {
			return &hub.SpaceInfoResult{Info: privateSpace(name)}, nil
		}
		return &hub.SpaceInfoResult{Info: publicSpace(name, "")}, nil
	})
	schemas := schemaServer(t)
	d := NewDiscoverer(provider, testDiscoveryConfig(),
		WithSchemaURL(func(sub string) string { return schemas.URL + "/" + sub }))

	names := []string{"a/x", "b/y", "c/z"}
	first := d.GetGradioSpaces(context.Background(), names, "tok", DiscoverOptions{})
	second := d.GetGradioSpaces(context.Background(), names, "tok", DiscoverOptions{})
	assert.Equal(t, first, second)

	// Public spaces: exactly one outbound metadata request across both runs.
	assert.Equal(t, 1, provider.callCount("a/x"))
	assert.Equal(t, 1, provider.callCount("b/y"))
	// The private space is refetched every time.
	assert.Equal(t, 2, provider.callCount("c/z"))

	stats := d.MetadataCache().Stats()
	assert.GreaterOrEqual(t, stats.Hits, int64(2))
}

func TestDiscoveryRevalidation(t *testing.T) {
	t.Parallel()
	provider := newFakeHub(func(name, ifNoneMatch string) (*hub.SpaceInfoResult, error) {
		if ifNoneMatch == "W1" {
			return &hub.SpaceInfoResult{NotModified: true}, nil
		}
		return &hub.SpaceInfoResult{Info: publicSpace(name, "W1")}, nil
	})
	schemas := schemaServer(t)
	cfg := testDiscoveryConfig()
	cfg.MetadataTTL = 20 * time.Millisecond
	d := NewDiscoverer(provider, cfg,
		WithSchemaURL(func(sub string) string { return schemas.URL + "/" + sub }))

	d.GetGradioSpaces(context.Background(), []string{"a/x"}, "", DiscoverOptions{})
	before, ok := d.MetadataCache().FetchedAt("a/x")
	require.True(t, ok)

	time.Sleep(25 * time.Millisecond)
	spaces := d.GetGradioSpaces(context.Background(), []string{"a/x"}, "", DiscoverOptions{})
	require.Len(t, spaces, 1)

	assert.Equal(t, "W1", provider.lastIfNoneMatch("a/x"), "expired entry must revalidate with its ETag")
	assert.Equal(t, 1, d.MetadataCache().Size())
	assert.Equal(t, int64(1), d.MetadataCache().Stats().ETagRevalidations)
	after, _ := d.MetadataCache().FetchedAt("a/x")
	assert.True(t, after.After(before))
}

func TestDiscoveryFailureIsolation(t *testing.T) {
	t.Parallel()
	provider := newFakeHub(func(name, _ string) (*hub.SpaceInfoResult, error) {
		if name == "b/y" {
			return nil, fmt.Errorf("metadata backend down")
		}
		return &hub.SpaceInfoResult{Info: publicSpace(name, "")}, nil
	})
	schemas := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/c-z" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[{"name":"predict","inputSchema":{"type":"object"}}]`)
	}))
	defer schemas.Close()
	d := NewDiscoverer(provider, testDiscoveryConfig(),
		WithSchemaURL(func(sub string) string { return schemas.URL + "/" + sub }))

	spaces := d.GetGradioSpaces(context.Background(), []string{"a/x", "b/y", "c/z"}, "", DiscoverOptions{})

	// One metadata failure and one schema failure leave the healthy space.
	require.Len(t, spaces, 1)
	assert.Equal(t, "a/x", spaces[0].Info.Name)
}

func TestDiscoverySkipSchemas(t *testing.T) {
	t.Parallel()
	provider := newFakeHub(func(name, _ string) (*hub.SpaceInfoResult, error) {
		return &hub.SpaceInfoResult{Info: publicSpace(name, "")}, nil
	})
	d := NewDiscoverer(provider, testDiscoveryConfig(),
		WithSchemaURL(func(string) string { return "http://unused.invalid" }))

	spaces := d.GetGradioSpaces(context.Background(), []string{"a/x"}, "", DiscoverOptions{SkipSchemas: true})
	require.Len(t, spaces, 1)
	assert.Empty(t, spaces[0].Tools)
	assert.Equal(t, 0, d.SchemaCache().Size())
}

func TestDiscoveryFiltersNonGradio(t *testing.T) {
	t.Parallel()
	provider := newFakeHub(func(name, _ string) (*hub.SpaceInfoResult, error) {
		return &hub.SpaceInfoResult{Info: &hub.SpaceInfo{Name: name, Subdomain: "s", SDK: "static"}}, nil
	})
	d := NewDiscoverer(provider, testDiscoveryConfig())

	spaces := d.GetGradioSpaces(context.Background(), []string{"a/x"}, "", DiscoverOptions{})
	assert.Empty(t, spaces)
}
