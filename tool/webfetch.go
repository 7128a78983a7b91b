package tool

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/flowmesh/flowmesh/core"
)

const (
	// DefaultFetchTimeout is the default HTTP request timeout
	DefaultFetchTimeout = 30 * time.Second
	// DefaultUserAgent is the default User-Agent header value
	DefaultUserAgent = "flowmesh-webfetch-tool/1.0"
	// MaxBodySize is the maximum response body size (10MB)
	MaxBodySize = 10 * 1024 * 1024
	// DialTimeout is the maximum time to wait for a TCP connection
	DialTimeout = 10 * time.Second
	// TLSHandshakeTimeout is the maximum time to wait for TLS handshake
	TLSHandshakeTimeout = 10 * time.Second
	// ResponseHeaderTimeout is the maximum time to wait for response headers
	ResponseHeaderTimeout = 10 * time.Second
	// IdleConnTimeout is the maximum time an idle connection can be reused
	IdleConnTimeout = 90 * time.Second
	// maxRedirects caps redirect chains before aborting the request
	maxRedirects = 10
)

// WebFetchOptions configure the web fetch tool.
type WebFetchOptions struct {
	// Timeout is the overall request timeout. Zero means DefaultFetchTimeout.
	Timeout time.Duration
	// UserAgent overrides the User-Agent header sent with requests.
	UserAgent string
	// HTTPClient replaces the default client, mainly for tests.
	HTTPClient *http.Client
}

// WebFetchTool fetches a web page and converts its HTML content to Markdown.
// Partial URLs (e.g. "example.com") are normalized by prepending "https://".
// Up to ten redirects are followed and the response body is capped at
// MaxBodySize bytes.
type WebFetchTool struct {
	client    *http.Client
	userAgent string
}

// NewWebFetchTool creates a web fetch tool with sensible transport timeouts
// so slow or unresponsive servers cannot block a run indefinitely.
func NewWebFetchTool(optFns ...func(o *WebFetchOptions)) *WebFetchTool {
	opts := WebFetchOptions{
		Timeout:   DefaultFetchTimeout,
		UserAgent: DefaultUserAgent,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   DialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   TLSHandshakeTimeout,
				ResponseHeaderTimeout: ResponseHeaderTimeout,
				IdleConnTimeout:       IdleConnTimeout,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				ForceAttemptHTTP2:     true,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (>%d)", maxRedirects)
				}
				return nil
			},
		}
	}

	return &WebFetchTool{
		client:    client,
		userAgent: opts.UserAgent,
	}
}

// Name returns the unique tool name used in function call declarations.
func (t *WebFetchTool) Name() string { return "web_fetch" }

// Description returns the description exposed to models.
func (t *WebFetchTool) Description() string {
	return "Fetches a web page and converts its HTML content to Markdown format. " +
		"Supports HTTP and HTTPS protocols. Automatically handles partial URLs by adding " +
		"an https:// prefix. Follows redirects and returns the final URL and clean Markdown content."
}

// Parameters returns the JSON schema describing expected arguments.
func (t *WebFetchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL of the web page to fetch (partial URLs like 'example.com' are accepted)",
			},
		},
		"required": []string{"url"},
	}
}

// Call fetches the page named by args["url"] and returns a map with the final
// URL (after redirects) and the Markdown rendering of the page body.
func (t *WebFetchTool) Call(rc *core.RunContext, args map[string]any) (any, error) {
	rawURL, _ := args["url"].(string)
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return nil, NewToolError(t.Name(), "url cannot be empty", "VALIDATION_ERROR")
	}

	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	rc.LogDebug("webfetch.start", "url", url)

	markdown, finalURL, err := t.fetch(rc.Context, url)
	if err != nil {
		return nil, NewToolError(t.Name(), err.Error(), "EXECUTION_ERROR")
	}

	rc.LogInfo("webfetch.success", "url", finalURL, "markdown_bytes", len(markdown))

	return map[string]any{
		"url":      finalURL,
		"markdown": markdown,
	}, nil
}

func (t *WebFetchTool) fetch(ctx context.Context, url string) (markdown, finalURL string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", "", fmt.Errorf("request timeout or canceled: %w", err)
		}
		return "", "", fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status code: %d %s", resp.StatusCode, resp.Status)
	}

	// Read in a goroutine so cancellation is honored even during slow reads.
	type readResult struct {
		data []byte
		err  error
	}
	readCh := make(chan readResult, 1)
	go func() {
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
		readCh <- readResult{data: data, err: readErr}
	}()

	var htmlBytes []byte
	select {
	case <-ctx.Done():
		return "", "", fmt.Errorf("canceled while reading response body: %w", ctx.Err())
	case result := <-readCh:
		if result.err != nil {
			return "", "", fmt.Errorf("failed to read response body: %w", result.err)
		}
		htmlBytes = result.data
	}

	if len(htmlBytes) == MaxBodySize {
		return "", "", fmt.Errorf("response body exceeds maximum size of %d bytes", MaxBodySize)
	}

	md, err := htmltomarkdown.ConvertString(string(htmlBytes))
	if err != nil {
		return "", "", fmt.Errorf("failed to convert html to markdown: %w", err)
	}

	return md, resp.Request.URL.String(), nil
}
