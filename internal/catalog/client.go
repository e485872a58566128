package catalog

import (
	"fmt"
	"net/url"
	"strings"
)

// Open returns the client for origin: an HTTPClient for http(s) URLs and a
// DirClient for file:// URLs and plain paths. Options apply to HTTP origins.
func Open(origin string, opts ...Option) (Client, error) {
	if origin == "" {
		return nil, fmt.Errorf("no catalog origin configured")
	}
	if strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://") {
		return NewHTTPClient(origin, opts...)
	}
	if strings.HasPrefix(origin, "file://") {
		u, err := url.Parse(origin)
		if err != nil {
			return nil, fmt.Errorf("parsing origin %q: %w", origin, err)
		}
		return NewDirClient(u.Path), nil
	}
	return NewDirClient(origin), nil
}
