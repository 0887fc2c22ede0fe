package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// httpDynamicFetcher is a stand-in for a headless-browser renderer. The
// retrieval pack carries no headless-Chrome/Playwright client, so this type
// implements the same DynamicFetcher seam with a plain HTTP GET: it cannot
// execute client-side JS, but it lets FailoverFetcher's state machine and
// its callers be written and tested against the real interface boundary. A
// production deployment swaps this for a chromedp- or Playwright-backed
// implementation without touching FailoverFetcher.
type httpDynamicFetcher struct {
	client *http.Client
	policy Policy
}

func NewHTTPDynamicFetcher(policy Policy) *httpDynamicFetcher {
	timeout := policy.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &httpDynamicFetcher{client: &http.Client{Timeout: timeout}, policy: policy}
}

func (d *httpDynamicFetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid url %q: %w", rawURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if d.policy.UserAgent != "" {
		req.Header.Set("User-Agent", d.policy.UserAgent)
	}
	req.Header.Set("Accept", acceptHeader)
	if d.policy.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", d.policy.AcceptLanguage)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: dynamic get %q: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: dynamic read body: %w", err)
	}
	return &Result{URL: u, HTML: string(body), StatusCode: resp.StatusCode, Headers: resp.Header, FetchedVia: "dynamic"}, nil
}
