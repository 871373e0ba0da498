package gradio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spacegate/spacegate/pkg/hub"
	"github.com/spacegate/spacegate/pkg/logger"
)

// TokenForwardHeader carries the caller's token to private spaces, separate
// from the Authorization header the upstream may use for its own purposes.
const TokenForwardHeader = "X-HF-Authorization"

// SpaceInfoProvider resolves space metadata, optionally conditionally.
type SpaceInfoProvider interface {
	SpaceInfo(ctx context.Context, name, token, ifNoneMatch string) (*hub.SpaceInfoResult, error)
}

// DiscoveryConfig carries the discovery tunables. GetGradioSpaces copies the
// config at entry, so runtime reconfiguration never requires locking.
type DiscoveryConfig struct {
	// MetadataTTL and SchemaTTL size the two cache levels.
	MetadataTTL time.Duration
	SchemaTTL   time.Duration

	// Concurrency is the metadata fetch batch size.
	Concurrency int

	// SpaceInfoTimeout bounds each metadata fetch.
	SpaceInfoTimeout time.Duration

	// SchemaTimeout bounds each schema fetch.
	SchemaTimeout time.Duration
}

// Space is one discovered Gradio space with its normalized tools.
type Space struct {
	Info  *hub.SpaceInfo
	Tools []ToolDescriptor
}

// DiscoverOptions tunes a single discovery pass.
type DiscoverOptions struct {
	// SkipSchemas stops after the metadata phase. Spaces then carry no
	// tools; used when only metadata is needed.
	SkipSchemas bool
}

// Discoverer resolves space metadata and tool schemas through the two-level
// cache. One instance is shared process-wide; all methods are safe for
// concurrent use.
type Discoverer struct {
	hub         SpaceInfoProvider
	metaCache   *Cache[*hub.SpaceInfo]
	schemaCache *Cache[[]ToolDescriptor]
	httpClient  *http.Client
	cfg         DiscoveryConfig

	// schemaURL builds the schema endpoint for a subdomain. Overridable in
	// tests to point at a local server.
	schemaURL func(subdomain string) string
}

// DiscovererOption configures a Discoverer.
type DiscovererOption func(*Discoverer)

// WithSchemaURL overrides the schema endpoint builder.
func WithSchemaURL(f func(subdomain string) string) DiscovererOption {
	return func(d *Discoverer) {
		d.schemaURL = f
	}
}

// WithDiscoveryHTTPClient overrides the HTTP client used for schema fetches.
func WithDiscoveryHTTPClient(hc *http.Client) DiscovererOption {
	return func(d *Discoverer) {
		d.httpClient = hc
	}
}

// NewDiscoverer creates the shared discoverer with empty caches.
func NewDiscoverer(provider SpaceInfoProvider, cfg DiscoveryConfig, opts ...DiscovererOption) *Discoverer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	d := &Discoverer{
		hub:         provider,
		metaCache:   NewCache[*hub.SpaceInfo](cfg.MetadataTTL),
		schemaCache: NewCache[[]ToolDescriptor](cfg.SchemaTTL),
		httpClient:  &http.Client{},
		cfg:         cfg,
		schemaURL: func(subdomain string) string {
			return fmt.Sprintf("https://%s.hf.space/gradio_api/mcp/schema", subdomain)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MetadataCache exposes the metadata cache for statistics and tests.
func (d *Discoverer) MetadataCache() *Cache[*hub.SpaceInfo] {
	return d.metaCache
}

// SchemaCache exposes the schema cache for statistics and tests.
func (d *Discoverer) SchemaCache() *Cache[[]ToolDescriptor] {
	return d.schemaCache
}

// ClearCaches drops both cache levels and resets their statistics.
func (d *Discoverer) ClearCaches() {
	d.metaCache.Clear()
	d.schemaCache.Clear()
}

// GetGradioSpaces resolves metadata and (unless skipped) tool schemas for
// the named spaces. Partial success is the norm: a slow or broken space is
// logged and dropped, never failing the others. The returned slice preserves
// input order.
func (d *Discoverer) GetGradioSpaces(ctx context.Context, spaceNames []string, token string, opts DiscoverOptions) []Space {
	cfg := d.cfg // copy tunables once at entry

	// Metadata phase: batched, parallel within each batch.
	infos := make([]*hub.SpaceInfo, len(spaceNames))
	for start := 0; start < len(spaceNames); start += cfg.Concurrency {
		end := min(start+cfg.Concurrency, len(spaceNames))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				info, err := d.fetchMetadata(gctx, spaceNames[i], token, cfg)
				if err != nil {
					logger.Warnf("Space metadata fetch failed for %s: %v", spaceNames[i], err)
					return nil // per-space failures never fail the batch
				}
				infos[i] = info
				return nil
			})
		}
		_ = g.Wait()
	}

	// Filter to proxyable spaces: gradio SDK with a subdomain.
	filtered := make([]*hub.SpaceInfo, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		if !info.IsGradio() {
			logger.Debugf("Skipping space %s: sdk=%q subdomain=%q", info.Name, info.SDK, info.Subdomain)
			continue
		}
		filtered = append(filtered, info)
	}

	if opts.SkipSchemas {
		spaces := make([]Space, len(filtered))
		for i, info := range filtered {
			spaces[i] = Space{Info: info}
		}
		return spaces
	}

	// Schema phase: every filtered space in parallel, no batching.
	tools := make([][]ToolDescriptor, len(filtered))
	var wg sync.WaitGroup
	for i, info := range filtered {
		wg.Add(1)
		go func() {
			defer wg.Done()
			descriptors, err := d.fetchSchema(ctx, info, token, cfg)
			if err != nil {
				logger.Warnf("Schema fetch failed for %s: %v", info.Name, err)
				return
			}
			tools[i] = descriptors
		}()
	}
	wg.Wait()

	// Combine: a space without a schema is dropped when schemas are required.
	spaces := make([]Space, 0, len(filtered))
	for i, info := range filtered {
		if tools[i] == nil {
			continue
		}
		spaces = append(spaces, Space{Info: info, Tools: tools[i]})
	}
	return spaces
}

// fetchMetadata resolves one space's metadata through the cache, with
// conditional revalidation for expired entries that carry an ETag.
// Private spaces are never cached so authorization-sensitive state cannot
// go stale.
func (d *Discoverer) fetchMetadata(ctx context.Context, name, token string, cfg DiscoveryConfig) (*hub.SpaceInfo, error) {
	if cached, ok := d.metaCache.Get(name); ok {
		return cached, nil
	}

	var ifNoneMatch string
	stale, hasStale := d.metaCache.GetForRevalidation(name)
	if hasStale {
		ifNoneMatch = stale.ETag
	}

	fetchCtx, cancel := context.WithTimeout(ctx, cfg.SpaceInfoTimeout)
	defer cancel()

	result, err := d.hub.SpaceInfo(fetchCtx, name, token, ifNoneMatch)
	if err != nil {
		return nil, err
	}

	if result.NotModified {
		if !hasStale {
			return nil, fmt.Errorf("hub answered 304 for %s without a cached entry", name)
		}
		d.metaCache.Revalidate(name)
		return stale, nil
	}

	info := result.Info
	if !info.Private {
		d.metaCache.Set(name, info)
	}
	return info, nil
}

// fetchSchema resolves one space's tool schema through the cache. The
// caller's token is forwarded to private spaces via a dedicated header.
func (d *Discoverer) fetchSchema(ctx context.Context, info *hub.SpaceInfo, token string, cfg DiscoveryConfig) ([]ToolDescriptor, error) {
	if cached, ok := d.schemaCache.Get(info.Name); ok {
		return cached, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, cfg.SchemaTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, d.schemaURL(info.Subdomain), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema request: %w", err)
	}
	if info.Private && token != "" {
		req.Header.Set(TokenForwardHeader, "Bearer "+token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("schema fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return nil, fmt.Errorf("schema endpoint returned %d: %s", resp.StatusCode, snippet)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema response: %w", err)
	}

	descriptors, err := ParseSchemaResponse(body)
	if err != nil {
		return nil, err
	}

	if !info.Private {
		d.schemaCache.Set(info.Name, descriptors)
	}
	return descriptors, nil
}
