package gradio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterImageContentDropsImages(t *testing.T) {
	t.Parallel()
	content := []mcp.Content{
		mcp.NewTextContent("caption"),
		mcp.NewImageContent("aGk=", "image/png"),
		mcp.NewTextContent("footer"),
	}

	filtered := FilterImageContent(content)
	require.Len(t, filtered, 2)
	for _, block := range filtered {
		_, isImage := mcp.AsImageContent(block)
		assert.False(t, isImage)
	}
}

func TestFilterImageContentAllImagesLeavesExplanation(t *testing.T) {
	t.Parallel()
	content := []mcp.Content{
		mcp.NewImageContent("aGk=", "image/png"),
		mcp.NewImageContent("aGk=", "image/jpeg"),
	}

	filtered := FilterImageContent(content)
	require.Len(t, filtered, 1)
	text, ok := mcp.AsTextContent(filtered[0])
	require.True(t, ok)
	assert.Contains(t, text.Text, "omitted")
}

func TestFilterImageContentEmptyStaysEmpty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, FilterImageContent(nil))
}

func TestFirstURL(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		content []mcp.Content
		want    string
	}{
		{
			"bare URL text",
			[]mcp.Content{mcp.NewTextContent("https://example.com/out.wav")},
			"https://example.com/out.wav",
		},
		{
			"labeled image URL",
			[]mcp.Content{mcp.NewTextContent("Image URL: https://example.com/img.png")},
			"https://example.com/img.png",
		},
		{
			"prose is not a URL",
			[]mcp.Content{mcp.NewTextContent("see https://example.com for details")},
			"",
		},
		{
			"embedded resource URI",
			[]mcp.Content{mcp.NewEmbeddedResource(mcp.TextResourceContents{
				URI: "https://example.com/res", MIMEType: "text/plain", Text: "x",
			})},
			"https://example.com/res",
		},
		{
			"non-http resource skipped",
			[]mcp.Content{mcp.NewEmbeddedResource(mcp.TextResourceContents{
				URI: "ui://player", MIMEType: "text/html", Text: "x",
			})},
			"",
		},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FirstURL(tc.content), tc.name)
	}
}

func TestAttachStructuredURL(t *testing.T) {
	t.Parallel()
	result := mcp.NewToolResultText("https://example.com/out.wav")
	AttachStructuredURL(result, "acme/tts")

	structured, ok := result.StructuredContent.(URLStructuredContent)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/out.wav", structured.URL)
	assert.Equal(t, "acme/tts", structured.SpaceName)

	plain := mcp.NewToolResultText("no url here")
	AttachStructuredURL(plain, "acme/tts")
	assert.Nil(t, plain.StructuredContent)
}

func TestEmbedUIResourceFetchesTarget(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>player</html>"))
	}))
	defer srv.Close()

	result := mcp.NewToolResultText(srv.URL + "/player")
	EmbedUIResource(context.Background(), srv.Client(), result, "gr1_tts_mcpui")

	require.Len(t, result.Content, 1)
	resource, ok := mcp.AsEmbeddedResource(result.Content[0])
	require.True(t, ok)
	text, ok := mcp.AsTextResourceContents(resource.Resource)
	require.True(t, ok)
	assert.Contains(t, text.URI, "ui://")
	assert.Contains(t, text.Text, "player")
}

func TestEmbedUIResourceFallsBackOnFetchFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	url := srv.URL + "/audio.wav"
	result := mcp.NewToolResultText(url)
	EmbedUIResource(context.Background(), srv.Client(), result, "gr1_tts_mcpui")

	require.Len(t, result.Content, 1)
	resource, ok := mcp.AsEmbeddedResource(result.Content[0])
	require.True(t, ok)
	text, ok := mcp.AsTextResourceContents(resource.Resource)
	require.True(t, ok)
	assert.Contains(t, text.Text, url)
	assert.Contains(t, text.Text, "audio")
}

func TestEmbedUIResourceIgnoresNonMarkedTools(t *testing.T) {
	t.Parallel()
	result := mcp.NewToolResultText("https://example.com/out.wav")
	EmbedUIResource(context.Background(), http.DefaultClient, result, "gr1_tts")

	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	assert.Equal(t, "https://example.com/out.wav", text.Text)
}

func TestEmbedUIResourceRequiresSoleURLBlock(t *testing.T) {
	t.Parallel()
	result := &mcp.CallToolResult{Content: []mcp.Content{
		mcp.NewTextContent("https://example.com/a"),
		mcp.NewTextContent("https://example.com/b"),
	}}
	EmbedUIResource(context.Background(), http.DefaultClient, result, "gr1_tts_mcpui")
	assert.Len(t, result.Content, 2)
}
