package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nebula-labs/nebula/internal/bundle"
)

// CatalogFile is the document name fetched from an HTTP origin.
const CatalogFile = "catalog.json"

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "nebula-sync"

// HTTPClient fetches catalogs and payloads from an HTTP origin. Relative
// payload locators resolve against the origin base URL.
type HTTPClient struct {
	base       *url.URL
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(h *HTTPClient) {
		if ua != "" {
			h.userAgent = ua
		}
	}
}

// WithTimeout bounds each request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) {
		h.timeout = d
	}
}

// NewHTTPClient creates a client for the origin at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing origin URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("origin URL %q must use http or https", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	h := &HTTPClient{
		base:      u,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(h)
	}

	switch {
	case h.httpClient == nil:
		h.httpClient = &http.Client{Timeout: h.timeout}
	case h.timeout > 0:
		c := *h.httpClient
		c.Timeout = h.timeout
		h.httpClient = &c
	}
	return h, nil
}

// BaseURL returns the origin base URL.
func (h *HTTPClient) BaseURL() string {
	return h.base.String()
}

// FetchCatalog downloads and decodes <base>/catalog.json. Transport failures
// and non-200 responses match bundle.ErrCatalogUnavailable.
func (h *HTTPClient) FetchCatalog(ctx context.Context) (*Catalog, error) {
	data, err := h.get(ctx, h.base.ResolveReference(&url.URL{Path: CatalogFile}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bundle.ErrCatalogUnavailable, err)
	}
	return Decode(data)
}

// FetchPayload downloads the bytes addressed by locator.
func (h *HTTPClient) FetchPayload(ctx context.Context, locator string) ([]byte, error) {
	ref, err := url.Parse(locator)
	if err != nil {
		return nil, fmt.Errorf("parsing locator %q: %w", locator, err)
	}
	return h.get(ctx, h.base.ResolveReference(ref))
}

func (h *HTTPClient) get(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", u, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", u, err)
	}
	return data, nil
}
