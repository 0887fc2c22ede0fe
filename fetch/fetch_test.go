package fetch

import (
	"context"
	"net"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventuary/pipeline/models"
	"github.com/eventuary/pipeline/ratelimit"
)

type stubFetcher struct {
	result *Result
	err    error
}

func (s stubFetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	return s.result, s.err
}

// countingFetcher lets a test assert how many times the static fetcher was
// actually invoked across a session's retries.
type countingFetcher struct {
	result *Result
	err    error
	calls  int32
}

func (c *countingFetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.result, c.err
}

type fakeClock struct{}

func (fakeClock) Now() time.Time        { return time.Now() }
func (fakeClock) Sleep(time.Duration)    {}

func TestFailoverFetcherFallsBackToDynamicOnEmptyShell(t *testing.T) {
	u, _ := url.Parse("https://example.com/events")
	static := &countingFetcher{result: &Result{URL: u, HTML: "<html><body><div id=\"app\"></div></body></html>", StatusCode: 200}}
	dynamic := stubFetcher{result: &Result{URL: u, HTML: "<html><body>Plenty of real rendered event content here</body></html>", StatusCode: 200}}

	limiter := ratelimit.New(ratelimit.DefaultConfig())
	defer limiter.Close()

	f := New(static, dynamic, limiter).WithClock(fakeClock{})
	res, err := f.Fetch(context.Background(), "src-1", u.String(), false)
	require.NoError(t, err)
	assert.Equal(t, "dynamic", res.FetchedVia)
	assert.EqualValues(t, maxStaticAttempts, static.calls, "static is retried up to the attempt cap before falling over")
}

func TestFailoverFetcherFallsBackToDynamicOnForbiddenStatus(t *testing.T) {
	u, _ := url.Parse("https://example.com/events")
	body := "<html><body>" + stringsRepeat("Access denied to automated clients. ", 10) + "</body></html>"
	static := &countingFetcher{result: &Result{URL: u, HTML: body, StatusCode: 403}}
	dynamic := stubFetcher{result: &Result{URL: u, HTML: "<html><body>Plenty of real rendered event content here</body></html>", StatusCode: 200}}

	limiter := ratelimit.New(ratelimit.DefaultConfig())
	defer limiter.Close()

	f := New(static, dynamic, limiter).WithClock(fakeClock{})
	res, err := f.Fetch(context.Background(), "src-403", u.String(), false)
	require.NoError(t, err)
	assert.Equal(t, "dynamic", res.FetchedVia)
	assert.EqualValues(t, maxStaticAttempts, static.calls, "403 responses consume the static attempt budget before failover")

	// The switch is one-way for the rest of the session.
	_, err = f.Fetch(context.Background(), "src-403", u.String(), false)
	require.NoError(t, err)
	assert.EqualValues(t, maxStaticAttempts, static.calls, "session stays on dynamic after failover")
}

func TestFailoverFetcherPermanentOnDeadDNS(t *testing.T) {
	u, _ := url.Parse("https://no-such-host.example/events")
	static := stubFetcher{err: &net.DNSError{Err: "no such host", Name: u.Hostname(), IsNotFound: true}}

	limiter := ratelimit.New(ratelimit.DefaultConfig())
	defer limiter.Close()

	f := New(static, nil, limiter).WithClock(fakeClock{})
	_, err := f.Fetch(context.Background(), "src-dns", u.String(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPermanentFailure)
}

func TestFailoverFetcherUsesStaticWhenSubstantial(t *testing.T) {
	u, _ := url.Parse("https://example.com/events")
	static := stubFetcher{result: &Result{URL: u, HTML: "<html><body>" + stringsRepeat("Event listing content. ", 10) + "</body></html>", StatusCode: 200, FetchedVia: "static"}}

	limiter := ratelimit.New(ratelimit.DefaultConfig())
	defer limiter.Close()

	f := New(static, nil, limiter).WithClock(fakeClock{})
	res, err := f.Fetch(context.Background(), "src-1", u.String(), false)
	require.NoError(t, err)
	assert.Equal(t, "static", res.FetchedVia)
}

func TestFailoverFetcherStaysOnDynamicForRestOfSession(t *testing.T) {
	u, _ := url.Parse("https://example.com/events")
	static := &countingFetcher{result: &Result{URL: u, HTML: "<html><body><div id=\"app\"></div></body></html>", StatusCode: 200}}
	dynamic := stubFetcher{result: &Result{URL: u, HTML: "<html><body>Plenty of real rendered event content here</body></html>", StatusCode: 200}}

	limiter := ratelimit.New(ratelimit.DefaultConfig())
	defer limiter.Close()

	f := New(static, dynamic, limiter).WithClock(fakeClock{})

	res, err := f.Fetch(context.Background(), "src-1", u.String(), false)
	require.NoError(t, err)
	assert.Equal(t, "dynamic", res.FetchedVia)
	assert.EqualValues(t, maxStaticAttempts, static.calls)

	// The session already failed over: subsequent pages for this source skip
	// static entirely and go straight to dynamic.
	res2, err := f.Fetch(context.Background(), "src-1", u.String(), false)
	require.NoError(t, err)
	assert.Equal(t, "dynamic", res2.FetchedVia)
	assert.EqualValues(t, maxStaticAttempts, static.calls, "static must not be retried once the session is on dynamic")
}

func TestFailoverFetcherUseProxyOverrideSkipsStatic(t *testing.T) {
	u, _ := url.Parse("https://example.com/events")
	static := &countingFetcher{result: &Result{URL: u, HTML: "<html><body>" + stringsRepeat("Event listing content. ", 10) + "</body></html>", StatusCode: 200}}
	dynamic := stubFetcher{result: &Result{URL: u, HTML: "<html><body>Plenty of real rendered event content here</body></html>", StatusCode: 200}}

	limiter := ratelimit.New(ratelimit.DefaultConfig())
	defer limiter.Close()

	f := New(static, dynamic, limiter).WithClock(fakeClock{})
	res, err := f.Fetch(context.Background(), "src-1", u.String(), true)
	require.NoError(t, err)
	assert.Equal(t, "dynamic", res.FetchedVia)
	assert.EqualValues(t, 0, static.calls, "use_proxy bypasses static entirely")
}

func TestFailoverFetcherSessionsAreIndependentPerSource(t *testing.T) {
	u, _ := url.Parse("https://example.com/events")
	static := &countingFetcher{result: &Result{URL: u, HTML: "<html><body><div id=\"app\"></div></body></html>", StatusCode: 200}}
	dynamic := stubFetcher{result: &Result{URL: u, HTML: "<html><body>Plenty of real rendered event content here</body></html>", StatusCode: 200}}

	limiter := ratelimit.New(ratelimit.DefaultConfig())
	defer limiter.Close()

	f := New(static, dynamic, limiter).WithClock(fakeClock{})

	_, err := f.Fetch(context.Background(), "src-1", u.String(), false)
	require.NoError(t, err)
	assert.EqualValues(t, maxStaticAttempts, static.calls)

	_, err = f.Fetch(context.Background(), "src-2", u.String(), false)
	require.NoError(t, err)
	assert.EqualValues(t, maxStaticAttempts*2, static.calls, "a different source starts its own session and retries static again")
}

func stringsRepeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
