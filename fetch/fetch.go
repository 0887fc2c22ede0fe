// Package fetch retrieves pages for the ingestion pipeline: a fast static
// fetcher backed by colly, a dynamic fallback for JS-rendered listings, and
// a failover state machine between the two, rate-limited per host.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eventuary/pipeline/models"
	"github.com/eventuary/pipeline/ratelimit"
)

// Result is what a Fetcher returns for one URL.
type Result struct {
	URL        *url.URL
	HTML       string
	StatusCode int
	Headers    http.Header
	Links      []*url.URL
	FetchedVia string // "static" or "dynamic"
}

// Policy configures fetch behavior for a source.
type Policy struct {
	UserAgent       string
	// AcceptLanguage biases content negotiation toward the source's declared
	// language; the default leads with English and keeps Dutch and German
	// close behind, matching the corpus of city sites this pipeline targets.
	AcceptLanguage  string
	Timeout         time.Duration
	RequestDelay    time.Duration
	MaxRetries      int
	RespectRobots   bool
	AllowedDomains  []string
	MaxDepth        int
}

// acceptHeader advertises HTML first with the XML variants syndication
// feeds respond with.
const acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,application/rss+xml;q=0.9,*/*;q=0.8"

func DefaultPolicy() Policy {
	return Policy{
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9,nl;q=0.8,de;q=0.7",
		Timeout:        15 * time.Second,
		MaxRetries:     2,
		RespectRobots:  true,
		MaxDepth:       3,
	}
}

// StaticFetcher is satisfied by the colly-backed fetcher.
type StaticFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Result, error)
}

// DynamicFetcher renders JS-heavy pages. httpDynamicFetcher stands in with
// a plain HTTP GET behind the same interface; it is the seam a real
// headless renderer would plug into.
type DynamicFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Result, error)
}

// ErrStaticInsufficient is returned by a static fetch when the page looks
// like an empty client-rendered shell (used to trigger dynamic failover).
var ErrStaticInsufficient = errors.New("fetch: static result looks like an empty SPA shell")

// ErrTransientStatus marks a response whose status code (5xx, 403, 429)
// counts as a transient failure for the failover state machine, even
// though the fetch itself completed and the status is reported to the
// caller rather than thrown.
var ErrTransientStatus = errors.New("fetch: transient http status")

// isTransientStatus reports whether a status code should count against the
// static fetcher's in-session failure budget: server errors, and the
// 403/429 responses bot-hostile sites answer static clients with.
func isTransientStatus(code int) bool {
	return code >= 500 || code == http.StatusForbidden || code == http.StatusTooManyRequests
}

// retryAfterDelay parses a Retry-After header (delta-seconds form) so a 429
// can stretch the next backoff instead of being retried on schedule.
func retryAfterDelay(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// isPermanentFetchErr reports whether a fetch error can never succeed on
// retry: a DNS name that does not exist.
func isPermanentFetchErr(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

// maxStaticAttempts is how many times, across a source's session, the
// static fetcher is retried (with backoff) before the session gives up on
// static fetches entirely and switches to dynamic for good.
const maxStaticAttempts = 3

// staticBackoff is the exponential delay schedule between static retries
// within one session: 1s, 2s, 4s, each capped at staticBackoffCap.
var staticBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

const staticBackoffCap = 10 * time.Second

// Clock abstracts time for deterministic backoff tests, mirroring the
// ratelimit package's seam.
type Clock interface {
	Now() time.Time
	Sleep(time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// sourceSession tracks one source's in-session failover state: how many
// times static has failed, and whether the session has already switched to
// dynamic for good. Once onDynamic is set it never reverts -- a source that
// needed dynamic once is assumed to still need it for the rest of the run.
type sourceSession struct {
	failures  int
	onDynamic bool
}

// FailoverFetcher tries the static fetcher first; on error, or on a result
// that looks like an empty hydration shell, it retries with backoff up to
// maxStaticAttempts times before switching the source's session to dynamic
// for every subsequent fetch. Outcomes are reported to the rate limiter so
// repeated failures on a host trip its breaker.
type FailoverFetcher struct {
	Static  StaticFetcher
	Dynamic DynamicFetcher
	Limiter *ratelimit.Limiter

	clock Clock

	mu       sync.Mutex
	sessions map[string]*sourceSession
}

func New(static StaticFetcher, dynamic DynamicFetcher, limiter *ratelimit.Limiter) *FailoverFetcher {
	return &FailoverFetcher{
		Static:   static,
		Dynamic:  dynamic,
		Limiter:  limiter,
		clock:    realClock{},
		sessions: make(map[string]*sourceSession),
	}
}

// WithClock overrides the clock, for tests.
func (f *FailoverFetcher) WithClock(c Clock) *FailoverFetcher {
	if c != nil {
		f.clock = c
	}
	return f
}

func (f *FailoverFetcher) sessionFor(sourceID string) *sourceSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sourceID]
	if !ok {
		s = &sourceSession{}
		f.sessions[sourceID] = s
	}
	return s
}

// Fetch acquires a per-host rate-limit permit and fetches sourceID's page.
// useProxy forces the dynamic fetcher regardless of session state (an
// operator override for sources known in advance to need it). Otherwise a
// session that has already failed over to dynamic skips straight to it;
// a fresh session tries static, retrying with backoff on a network error,
// an empty-shell result, or a transient status (5xx/403/429, honoring
// Retry-After), and only switches to dynamic for the rest of the session
// after maxStaticAttempts is exhausted. A dead DNS name aborts immediately
// as a permanent failure.
func (f *FailoverFetcher) Fetch(ctx context.Context, sourceID, rawURL string, useProxy bool) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid url %q: %w", rawURL, err)
	}
	host := u.Hostname()
	session := f.sessionFor(sourceID)

	if useProxy || session.onDynamic {
		return f.fetchDynamic(ctx, host, rawURL, nil)
	}

	var lastErr error
	var retryAfter time.Duration
	for attempt := 0; attempt < maxStaticAttempts; attempt++ {
		if attempt > 0 {
			delay := staticBackoff[attempt-1]
			if retryAfter > delay {
				delay = retryAfter
			}
			if delay > staticBackoffCap {
				delay = staticBackoffCap
			}
			if !sleepCtx(ctx, f.clock, delay) {
				return nil, ctx.Err()
			}
		}

		permit, err := f.Limiter.Acquire(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("fetch: rate limit: %w", err)
		}
		res, ferr := f.Static.Fetch(ctx, rawURL)
		if ferr == nil && looksLikeEmptyShell(res.HTML) {
			ferr = ErrStaticInsufficient
		}
		if ferr == nil && isTransientStatus(res.StatusCode) {
			retryAfter = retryAfterDelay(res.Headers)
			ferr = fmt.Errorf("%w: %d from %s", ErrTransientStatus, res.StatusCode, rawURL)
		}
		permit.Release()

		if ferr == nil {
			f.Limiter.Feedback(host, ratelimit.Feedback{StatusCode: res.StatusCode})
			f.mu.Lock()
			session.failures = 0
			f.mu.Unlock()
			return res, nil
		}

		f.Limiter.Feedback(host, ratelimit.Feedback{Err: ferr})
		if isPermanentFetchErr(ferr) {
			return nil, fmt.Errorf("fetch: %s: %v: %w", rawURL, ferr, models.ErrPermanentFailure)
		}
		lastErr = ferr
		f.mu.Lock()
		session.failures++
		f.mu.Unlock()
	}

	f.mu.Lock()
	session.onDynamic = true
	f.mu.Unlock()
	return f.fetchDynamic(ctx, host, rawURL, lastErr)
}

func (f *FailoverFetcher) fetchDynamic(ctx context.Context, host, rawURL string, staticErr error) (*Result, error) {
	if f.Dynamic == nil {
		if staticErr != nil {
			return nil, fmt.Errorf("fetch: static failed and no dynamic fetcher configured: %w", staticErr)
		}
		return nil, errors.New("fetch: no dynamic fetcher configured")
	}

	permit, err := f.Limiter.Acquire(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("fetch: rate limit on dynamic fetch: %w", err)
	}
	defer permit.Release()

	res, err := f.Dynamic.Fetch(ctx, rawURL)
	if err != nil {
		f.Limiter.Feedback(host, ratelimit.Feedback{Err: err})
		if isPermanentFetchErr(err) {
			return nil, fmt.Errorf("fetch: %s: %v: %w", rawURL, err, models.ErrPermanentFailure)
		}
		if staticErr != nil {
			return nil, fmt.Errorf("fetch: both static and dynamic failed for %s: static=%v dynamic=%w", rawURL, staticErr, err)
		}
		return nil, fmt.Errorf("fetch: dynamic failed for %s: %w", rawURL, err)
	}
	res.FetchedVia = "dynamic"
	f.Limiter.Feedback(host, ratelimit.Feedback{StatusCode: res.StatusCode})
	return res, nil
}

func sleepCtx(ctx context.Context, clock Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	done := make(chan struct{})
	go func() {
		clock.Sleep(d)
		close(done)
	}()
	select {
	case <-ctx.Done():
		return false
	case <-done:
		return true
	}
}

// looksLikeEmptyShell is a cheap heuristic for SPA pages that render nothing
// server-side: very little body text outside <script>/<style> tags. A page
// that carries JSON-LD structured data is never treated as an empty shell.
func looksLikeEmptyShell(html string) bool {
	if len(html) == 0 {
		return true
	}
	if strings.Contains(strings.ToLower(html), "application/ld+json") {
		return false
	}
	stripped := stripTags(html)
	return len(strings.TrimSpace(stripped)) < 120
}

func stripTags(html string) string {
	var b strings.Builder
	inTag := false
	inScript := false
	lower := strings.ToLower(html)
	for i, r := range html {
		switch {
		case strings.HasPrefix(lower[i:], "<script"):
			inScript = true
		case strings.HasPrefix(lower[i:], "</script>"):
			inScript = false
		}
		if r == '<' {
			inTag = true
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag && !inScript {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isAllowedURL reports whether u's host matches one of the allowed domains
// (exact match or subdomain).
func isAllowedURL(u *url.URL, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	host := u.Hostname()
	for _, a := range allowed {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

// IsAllowedURL is the exported form of isAllowedURL, used by the discover
// stage to reject a source's own queued URLs before ever spending a fetch
// attempt on them.
func IsAllowedURL(u *url.URL, allowed []string) bool {
	return isAllowedURL(u, allowed)
}
