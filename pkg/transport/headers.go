package transport

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/spacegate/spacegate/pkg/auth"
	"github.com/spacegate/spacegate/pkg/logger"
)

// Recognised request headers.
const (
	HeaderSessionID      = "Mcp-Session-Id"
	HeaderBouquet        = "X-Mcp-Bouquet"
	HeaderMix            = "X-Mcp-Mix"
	HeaderGradio         = "X-Mcp-Gradio"
	HeaderNoImageContent = "X-Mcp-No-Image-Content"
	HeaderJobTimeout     = "X-Mcp-Job-Timeout"
	HeaderForceAuth      = "X-Mcp-Force-Auth"
)

// JobTimeoutUnset and JobTimeoutNone are sentinel values for the job-timeout
// override: unset means use the default, none means wait until complete.
const (
	JobTimeoutUnset = 0
	JobTimeoutNone  = -1
)

// promotable maps query parameter names to the headers they promote to.
var promotable = map[string]string{
	"bouquet":          HeaderBouquet,
	"mix":              HeaderMix,
	"gradio":           HeaderGradio,
	"no-image-content": HeaderNoImageContent,
	"job-timeout":      HeaderJobTimeout,
	"force-auth":       HeaderForceAuth,
}

// Options is the per-request behavior extracted from headers before any
// transport work begins.
type Options struct {
	Token             string
	SessionID         string
	Bouquet           string
	Mix               string
	Gradio            string
	NoImageContent    bool
	ForceAuth         bool
	JobTimeoutSeconds int
}

// PromoteQueryParams copies recognised query parameters onto their x-mcp-*
// headers. An explicit header always wins over the query form.
func PromoteQueryParams(r *http.Request) {
	query := r.URL.Query()
	for param, header := range promotable {
		value := query.Get(param)
		if value == "" || r.Header.Get(header) != "" {
			continue
		}
		r.Header.Set(header, value)
	}
}

// ParseOptions promotes query parameters and extracts the per-request options.
func ParseOptions(r *http.Request) Options {
	PromoteQueryParams(r)

	opts := Options{
		Token:          auth.BearerToken(r.Header.Get("Authorization")),
		SessionID:      r.Header.Get(HeaderSessionID),
		Bouquet:        strings.TrimSpace(r.Header.Get(HeaderBouquet)),
		Mix:            strings.TrimSpace(r.Header.Get(HeaderMix)),
		Gradio:         strings.TrimSpace(r.Header.Get(HeaderGradio)),
		NoImageContent: strings.EqualFold(r.Header.Get(HeaderNoImageContent), "true"),
		ForceAuth:      r.Header.Get(HeaderForceAuth) != "",
	}

	if raw := strings.TrimSpace(r.Header.Get(HeaderJobTimeout)); raw != "" {
		seconds, err := strconv.Atoi(raw)
		switch {
		case err != nil || (seconds <= 0 && seconds != JobTimeoutNone):
			logger.Debugf("ignoring invalid job-timeout header %q", raw)
		default:
			opts.JobTimeoutSeconds = seconds
		}
	}
	return opts
}
