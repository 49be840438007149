package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
	"github.com/ratemyemployer/scrape-engine/internal/storage/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// rewriteTransport sends every request to the test server regardless of the
// https://{domain}/robots.txt URL the gate builds.
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestGate(t *testing.T, handler http.Handler, clock *fakeClock) (*Gate, *atomic.Int64) {
	t.Helper()
	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client := &http.Client{Transport: rewriteTransport{target: target}}
	return New(memory.NewRobotsCacheStore(), client, clock, zaptest.NewLogger(t)), &fetches
}

func robotsHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
}

func TestGateDisallowedPath(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	gate, _ := newTestGate(t, robotsHandler("User-agent: *\nDisallow: /private\n"), clock)

	ctx := context.Background()
	require.False(t, gate.Allowed(ctx, "https://example.com/private/data"))
	require.True(t, gate.Allowed(ctx, "https://example.com/public/page"))
	require.True(t, gate.Allowed(ctx, "https://example.com/"))
}

func TestGateDisallowWinsOverAllow(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	gate, _ := newTestGate(t, robotsHandler("Disallow: /jobs\nAllow: /jobs/open\n"), clock)

	ctx := context.Background()
	require.False(t, gate.Allowed(ctx, "https://example.com/jobs/internal"))
	require.False(t, gate.Allowed(ctx, "https://example.com/jobs/open/123"))
}

func TestGateAllowListRestrictsUncoveredPaths(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	gate, _ := newTestGate(t, robotsHandler("User-agent: *\nAllow: /public\n"), clock)

	ctx := context.Background()
	require.True(t, gate.Allowed(ctx, "https://example.com/public/page"))
	require.False(t, gate.Allowed(ctx, "https://example.com/private/x"))
}

func TestGateCachesUntilExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	gate, fetches := newTestGate(t, robotsHandler("Disallow: /private\n"), clock)

	ctx := context.Background()
	require.False(t, gate.Allowed(ctx, "https://example.com/private"))
	require.False(t, gate.Allowed(ctx, "https://example.com/private"))
	require.Equal(t, int64(1), fetches.Load())

	clock.now = clock.now.Add(25 * time.Hour)
	require.False(t, gate.Allowed(ctx, "https://example.com/private"))
	require.Equal(t, int64(2), fetches.Load())
}

func TestGateFailsOpen(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	client := &http.Client{
		Transport: rewriteTransport{target: &url.URL{Scheme: "http", Host: "127.0.0.1:1"}},
		Timeout:   time.Second,
	}
	gate := New(memory.NewRobotsCacheStore(), client, clock, zaptest.NewLogger(t))

	require.True(t, gate.Allowed(context.Background(), "https://unreachable.example/anything"))
}

func TestGateMissingRobotsAllowsAll(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	gate, fetches := newTestGate(t, http.NotFoundHandler(), clock)

	ctx := context.Background()
	require.True(t, gate.Allowed(ctx, "https://example.com/anything"))
	// 404 results are cached too.
	require.True(t, gate.Allowed(ctx, "https://example.com/else"))
	require.Equal(t, int64(1), fetches.Load())
}

func TestGateUnparseableURLAllowed(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	gate := New(memory.NewRobotsCacheStore(), nil, clock, zaptest.NewLogger(t))

	require.True(t, gate.Allowed(context.Background(), "://not a url"))
}

func TestGateCrawlDelay(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	gate, _ := newTestGate(t, robotsHandler("User-agent: *\nCrawl-delay: 5\n"), clock)

	delay := gate.CrawlDelay(context.Background(), "example.com")
	require.Equal(t, 5*time.Second, delay)
}

func TestPathAllowed(t *testing.T) {
	cases := []struct {
		name    string
		rules   scraping.RobotsRules
		path    string
		allowed bool
	}{
		{"empty rules", scraping.RobotsRules{}, "/anything", true},
		{"disallow prefix", scraping.RobotsRules{DisallowedPaths: []string{"/private"}}, "/private/data", false},
		{"outside disallow", scraping.RobotsRules{DisallowedPaths: []string{"/private"}}, "/other", true},
		{"allow list covers", scraping.RobotsRules{AllowedPaths: []string{"/public"}}, "/public/page", true},
		{"allow list excludes", scraping.RobotsRules{AllowedPaths: []string{"/public"}}, "/private/x", false},
		{
			"disallow beats longer allow",
			scraping.RobotsRules{DisallowedPaths: []string{"/private"}, AllowedPaths: []string{"/private/ok"}},
			"/private/ok/page",
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.allowed, pathAllowed(tc.rules, tc.path))
		})
	}
}

func TestParseDirectives(t *testing.T) {
	rules := parse("# comment\nUser-Agent: *\nDISALLOW: /a\ndisallow: /b\nAllow: /a/ok\nCrawl-Delay: 3\nDisallow:\n")
	require.Equal(t, []string{"/a", "/b"}, rules.DisallowedPaths)
	require.Equal(t, []string{"/a/ok"}, rules.AllowedPaths)
	require.Equal(t, 3, rules.CrawlDelay)
}

func TestRulesExpiredHelper(t *testing.T) {
	now := time.Now().UTC()
	rules := scraping.RobotsRules{ExpiresAt: now.Add(time.Hour)}
	require.False(t, rules.Expired(now))
	require.True(t, rules.Expired(now.Add(2*time.Hour)))
}
