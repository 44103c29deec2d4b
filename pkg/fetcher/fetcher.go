// Package fetcher downloads pages for command-line scans.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

const (
	defaultUserAgent = "fcr/1.0 (+https://github.com/dtnitsch/factcheck-relay)"
	maxPageBytes     = 8 << 20
)

type Fetcher struct {
	client    *http.Client
	userAgent string
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}
}

// Page is a fetched HTML document. URL is the address after redirects.
type Page struct {
	URL  string
	HTML []byte
}

// GetHTML fetches pageURL and rejects non-HTML answers.
func (f *Fetcher) GetHTML(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch HTML, status code: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err == nil && mt != "text/html" && !strings.HasSuffix(mt, "+xml") {
			return nil, fmt.Errorf("not an HTML page: %s", mt)
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Page{URL: resp.Request.URL.String(), HTML: body}, nil
}
