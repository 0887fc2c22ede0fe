package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// CollyFetcher is the static, non-JS fetch path: fast, cheap, and the first
// rung of the failover ladder.
type CollyFetcher struct {
	collector *colly.Collector
	policy    Policy
	robots    *robotsCache
	stats     fetcherStats
}

type fetcherStats struct {
	completed int64
	failed    int64
	links     int64
}

// NewCollyFetcher builds a fetcher honoring policy.
func NewCollyFetcher(policy Policy) (*CollyFetcher, error) {
	if policy.Timeout <= 0 {
		return nil, fmt.Errorf("fetch: timeout must be positive")
	}
	c := colly.NewCollector()
	c.SetRequestTimeout(policy.Timeout)
	if policy.UserAgent != "" {
		c.UserAgent = policy.UserAgent
	}
	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 1, Delay: policy.RequestDelay}); err != nil {
		return nil, fmt.Errorf("fetch: set rate limit: %w", err)
	}
	f := &CollyFetcher{collector: c, policy: policy, robots: newRobotsCache()}
	f.collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHeader)
		if policy.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", policy.AcceptLanguage)
		}
	})
	f.collector.OnError(func(r *colly.Response, err error) { atomic.AddInt64(&f.stats.failed, 1) })
	return f, nil
}

// Fetch retrieves a single page and discovers its outbound links.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid url %q: %w", rawURL, err)
	}
	if !isAllowedURL(u, f.policy.AllowedDomains) {
		return nil, fmt.Errorf("fetch: url not in allowed domains: %s", rawURL)
	}
	if f.policy.RespectRobots && !f.allowedByRobots(u) {
		return nil, fmt.Errorf("fetch: disallowed by robots.txt: %s", rawURL)
	}

	result := &Result{URL: u, FetchedVia: "static"}
	f.collector.OnResponse(func(r *colly.Response) {
		atomic.AddInt64(&f.stats.completed, 1)
		result.HTML = string(r.Body)
		result.StatusCode = r.StatusCode
		if r.Headers != nil {
			result.Headers = *r.Headers
		}
	})

	if err := f.collector.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("fetch: visit %q: %w", rawURL, err)
	}
	links, _ := f.Discover(ctx, []byte(result.HTML), u)
	result.Links = links
	return result, nil
}

// Discover extracts and resolves outbound links from HTML, filtering to the
// allowed domains, ignoring mailto/tel/javascript pseudo-links.
func (f *CollyFetcher) Discover(_ context.Context, content []byte, baseURL *url.URL) ([]*url.URL, error) {
	if len(content) == 0 {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("fetch: parse html: %w", err)
	}
	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		if strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "tel:") {
			return
		}
		linkURL, err := url.Parse(href)
		if err != nil {
			return
		}
		if !linkURL.IsAbs() {
			linkURL = baseURL.ResolveReference(linkURL)
		}
		if isAllowedURL(linkURL, f.policy.AllowedDomains) {
			links = append(links, linkURL)
			atomic.AddInt64(&f.stats.links, 1)
		}
	})
	return links, nil
}

// DiscoverPagination finds "next page" links using a small set of common
// conventions: a rel=next link, the next/pagination-next classes, and a
// "Next" link inside a .pagination block. Query parameters such as ?page=
// are not inspected.
func (f *CollyFetcher) DiscoverPagination(content []byte, baseURL *url.URL) (*url.URL, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(content)))
	if err != nil {
		return nil, false
	}
	if href, ok := doc.Find(`link[rel="next"]`).Attr("href"); ok {
		if u, err := resolveHref(href, baseURL); err == nil {
			return u, true
		}
	}
	var next *url.URL
	doc.Find(`a[rel="next"], a.next, a.pagination-next, .pagination a:contains("Next")`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		if u, err := resolveHref(href, baseURL); err == nil {
			next = u
			return false
		}
		return true
	})
	return next, next != nil
}

func resolveHref(href string, base *url.URL) (*url.URL, error) {
	u, err := url.Parse(href)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	return u, nil
}

// Stats returns lightweight counters for telemetry.
func (f *CollyFetcher) Stats() (completed, failed, links int64) {
	return atomic.LoadInt64(&f.stats.completed), atomic.LoadInt64(&f.stats.failed), atomic.LoadInt64(&f.stats.links)
}
