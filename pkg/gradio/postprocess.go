package gradio

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/spacegate/spacegate/pkg/logger"
)

// imageOmittedText replaces a result that consisted only of images when the
// image-content filter is active.
const imageOmittedText = "The tool returned image content, which was omitted because image " +
	"responses are disabled for this connection. Re-enable them to receive the image data."

// uiMarker in a tool name requests the UI-resource special case for
// URL-only results.
const uiMarker = "_mcpui"

// urlPattern matches a bare URL text block, optionally prefixed the way
// Gradio labels image outputs.
var urlPattern = regexp.MustCompile(`^(?:Image URL:\s*)?(https?://\S+)$`)

// FilterImageContent drops all image blocks from a tool result's content.
// If that empties the result, a single explanatory text block is inserted.
func FilterImageContent(content []mcp.Content) []mcp.Content {
	filtered := make([]mcp.Content, 0, len(content))
	for _, block := range content {
		if _, isImage := mcp.AsImageContent(block); isImage {
			continue
		}
		filtered = append(filtered, block)
	}
	if len(filtered) == 0 && len(content) > 0 {
		filtered = append(filtered, mcp.NewTextContent(imageOmittedText))
	}
	return filtered
}

// FirstURL scans content blocks for the first URL: an embedded resource URI
// with an http(s) scheme, or a text block that is a bare URL (optionally
// labeled "Image URL:"). Returns the empty string when none is found.
func FirstURL(content []mcp.Content) string {
	for _, block := range content {
		if resource, ok := mcp.AsEmbeddedResource(block); ok {
			if text, ok := mcp.AsTextResourceContents(resource.Resource); ok &&
				strings.HasPrefix(text.URI, "http") {
				return text.URI
			}
			if blob, ok := mcp.AsBlobResourceContents(resource.Resource); ok &&
				strings.HasPrefix(blob.URI, "http") {
				return blob.URI
			}
			continue
		}
		if text, ok := mcp.AsTextContent(block); ok {
			if m := urlPattern.FindStringSubmatch(strings.TrimSpace(text.Text)); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

// URLStructuredContent is the structured result attached for callers that
// consume extracted URLs.
type URLStructuredContent struct {
	URL       string `json:"url"`
	SpaceName string `json:"spaceName"`
}

// AttachStructuredURL sets the result's structured content to the first URL
// found in its blocks, if any. Applied only for specific caller identities.
func AttachStructuredURL(result *mcp.CallToolResult, spaceName string) {
	url := FirstURL(result.Content)
	if url == "" {
		return
	}
	result.StructuredContent = URLStructuredContent{URL: url, SpaceName: spaceName}
}

// uiFetchTimeout bounds the fetch of a UI resource target.
const uiFetchTimeout = 10 * time.Second

// maxUIResourceBytes caps embedded UI resource payloads.
const maxUIResourceBytes = 4 * 1024 * 1024

// EmbedUIResource handles the UI special case: when the tool name carries
// the UI marker and the sole result block is a URL string, the target is
// fetched and embedded as an audio-player UI resource under a synthetic
// ui:// URI. When the fetch fails the result falls back to referencing the
// URL directly.
func EmbedUIResource(ctx context.Context, httpClient *http.Client, result *mcp.CallToolResult, toolName string) {
	if !strings.Contains(toolName, uiMarker) || len(result.Content) != 1 {
		return
	}
	url := FirstURL(result.Content)
	if url == "" {
		return
	}

	uri := "ui://" + clientName + "/" + sanitizeToolName(toolName)

	resource, err := fetchUIResource(ctx, httpClient, url, uri)
	if err != nil {
		logger.Warnf("UI resource fetch failed for %s, falling back to URL reference: %v", toolName, err)
		result.Content = []mcp.Content{
			mcp.NewEmbeddedResource(mcp.TextResourceContents{
				URI:      uri,
				MIMEType: "text/html",
				Text:     audioPlayerHTML(url),
			}),
		}
		return
	}
	result.Content = []mcp.Content{resource}
}

func fetchUIResource(ctx context.Context, httpClient *http.Client, url, uri string) (mcp.Content, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, uiFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("UI resource fetch returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUIResourceBytes))
	if err != nil {
		return nil, err
	}

	mimeType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(mimeType, "text/") {
		return mcp.NewEmbeddedResource(mcp.TextResourceContents{
			URI:      uri,
			MIMEType: mimeType,
			Text:     string(body),
		}), nil
	}
	return mcp.NewEmbeddedResource(mcp.BlobResourceContents{
		URI:      uri,
		MIMEType: mimeType,
		Blob:     base64.StdEncoding.EncodeToString(body),
	}), nil
}

// audioPlayerHTML renders the fallback player referencing the URL in place.
func audioPlayerHTML(url string) string {
	return fmt.Sprintf(`<audio controls src=%q>Audio: %s</audio>`, url, url)
}
