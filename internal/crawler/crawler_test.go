package crawler_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlsearch/internal/clock"
	"github.com/JakeFAU/crawlsearch/internal/crawler"
	"github.com/JakeFAU/crawlsearch/internal/frontier"
	"github.com/JakeFAU/crawlsearch/internal/index"
	"github.com/JakeFAU/crawlsearch/internal/linkgraph"
	"github.com/JakeFAU/crawlsearch/internal/pagecodec"
	"github.com/JakeFAU/crawlsearch/internal/robots"
	"github.com/JakeFAU/crawlsearch/internal/storage/memory"
	"github.com/JakeFAU/crawlsearch/internal/store"
)

const testAgent = "crawlsearch-test"

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type stubFetcher struct {
	mu        sync.Mutex
	responses map[string]crawler.FetchResponse
	errs      map[string]error
	calls     []string
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		responses: map[string]crawler.FetchResponse{},
		errs:      map[string]error{},
	}
}

func (s *stubFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req.URL)
	if err, ok := s.errs[req.URL]; ok {
		return crawler.FetchResponse{}, err
	}
	if resp, ok := s.responses[req.URL]; ok {
		return resp, nil
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusNotFound, Headers: http.Header{}}, nil
}

func (s *stubFetcher) html(url, body string) {
	s.responses[url] = crawler.FetchResponse{
		URL:        url,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(body),
	}
}

type harness struct {
	st       *memory.Store
	frontier *frontier.Frontier
	fetcher  *stubFetcher
	crawler  *crawler.Crawler
}

func newHarness(t *testing.T, cfg crawler.Config) *harness {
	t.Helper()
	st := memory.New()
	clk := clock.NewManual(start)
	f := frontier.New(st, frontier.WithClock(clk))
	fetcher := newStubFetcher()
	cfg.UserAgent = testAgent
	c := crawler.New(cfg, crawler.Deps{
		Store:    st,
		Frontier: f,
		Robots:   robots.New(st, testAgent),
		Fetcher:  fetcher,
		Indexer:  index.New(st),
		Links:    linkgraph.NewIngester(f, clk, nil),
		Clock:    clk,
	})
	return &harness{st: st, frontier: f, fetcher: fetcher, crawler: c}
}

// seed queues url on an enabled domain whose robots policy is already known.
func (h *harness) seed(t *testing.T, rawURL, host, robotsText string) store.FrontierEntry {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.frontier.Enqueue(ctx, rawURL, 0))
	require.NoError(t, h.st.UpdateDomain(ctx, host, true, 0))
	d, err := h.st.GetDomainByHost(ctx, host)
	require.NoError(t, err)
	require.NoError(t, h.st.SetRobotsPolicy(ctx, d.ID, robotsText))
	entry, err := h.st.GetFrontierEntry(ctx, rawURL)
	require.NoError(t, err)
	return entry
}

func TestAttemptIdleWhenNothingClaimable(t *testing.T) {
	t.Parallel()

	h := newHarness(t, crawler.Config{})
	outcome, err := h.crawler.Attempt(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeIdle, outcome)
}

func TestSuccessfulCrawlWritesPageAndRemovesEntry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, crawler.Config{})
	ctx := context.Background()
	h.seed(t, "https://site.example/a", "site.example", store.NoRobotsPolicy)
	body := `<html><head><title>Fox page</title></head><body><p>The quick fox</p>` +
		`<a href="/b?ref=1">b</a><a href="/logo.png">logo</a></body></html>`
	h.fetcher.html("https://site.example/a", body)

	outcome, err := h.crawler.Attempt(ctx)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeIndexed, outcome)

	_, err = h.st.GetFrontierEntry(ctx, "https://site.example/a")
	require.ErrorIs(t, err, store.ErrNotFound)

	pageID, err := h.st.PageIDByURL(ctx, "https://site.example/a")
	require.NoError(t, err)
	page, err := h.st.GetPage(ctx, pageID)
	require.NoError(t, err)
	require.Equal(t, "Fox page", page.Title)
	require.Equal(t, pagecodec.FormatBrotli, page.RawFormat)
	require.True(t, page.UpdatedAt.Equal(start))
	raw, err := pagecodec.Decode(page.RawFormat, page.RawContent)
	require.NoError(t, err)
	require.Equal(t, body, string(raw))
	require.NotEmpty(t, h.st.TokenWeights(pageID))

	queued := h.st.FrontierEntries()
	require.Len(t, queued, 1)
	require.Equal(t, "https://site.example/b", queued[0].URL)
	require.Len(t, h.st.Links(), 2)
}

func TestFailedFetchUnlocksEntry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, crawler.Config{})
	ctx := context.Background()
	before := h.seed(t, "https://site.example/a", "site.example", store.NoRobotsPolicy)
	h.fetcher.errs["https://site.example/a"] = errors.New("connection reset")

	outcome, err := h.crawler.Attempt(ctx)
	require.Error(t, err)
	require.Equal(t, crawler.OutcomeFailed, outcome)

	after, err := h.st.GetFrontierEntry(ctx, "https://site.example/a")
	require.NoError(t, err)
	require.False(t, after.Locked())
	require.Equal(t, before, after)

	_, err = h.st.PageIDByURL(ctx, "https://site.example/a")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestErrorStatusIsTransient(t *testing.T) {
	t.Parallel()

	h := newHarness(t, crawler.Config{})
	ctx := context.Background()
	h.seed(t, "https://site.example/a", "site.example", store.NoRobotsPolicy)
	h.fetcher.responses["https://site.example/a"] = crawler.FetchResponse{StatusCode: http.StatusServiceUnavailable, Headers: http.Header{}}

	outcome, err := h.crawler.Attempt(ctx)
	require.Equal(t, crawler.OutcomeFailed, outcome)
	var statusErr *crawler.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.Code)

	entry, err := h.st.GetFrontierEntry(ctx, "https://site.example/a")
	require.NoError(t, err)
	require.False(t, entry.Locked())
}

func TestImageIsNeverStored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, crawler.Config{})
	ctx := context.Background()
	h.seed(t, "https://site.example/pic", "site.example", store.NoRobotsPolicy)
	h.fetcher.responses["https://site.example/pic"] = crawler.FetchResponse{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {"image/png"}},
		Body:       []byte("\x89PNG"),
	}

	outcome, err := h.crawler.Attempt(ctx)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeContentRejected, outcome)

	_, err = h.st.PageIDByURL(ctx, "https://site.example/pic")
	require.ErrorIs(t, err, store.ErrNotFound)
	entry, err := h.st.GetFrontierEntry(ctx, "https://site.example/pic")
	require.NoError(t, err)
	require.False(t, entry.Locked())
}

func TestDropUnindexableDeletesRejectedEntries(t *testing.T) {
	t.Parallel()

	h := newHarness(t, crawler.Config{DropUnindexable: true})
	ctx := context.Background()
	h.seed(t, "https://site.example/pic", "site.example", store.NoRobotsPolicy)
	h.fetcher.responses["https://site.example/pic"] = crawler.FetchResponse{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {"image/png"}},
	}

	outcome, err := h.crawler.Attempt(ctx)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeContentRejected, outcome)
	require.Empty(t, h.st.FrontierEntries())
}

func TestRobotsDenialSkipsFetch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, crawler.Config{})
	ctx := context.Background()
	h.seed(t, "https://site.example/private/x", "site.example", "User-agent: *\nDisallow: /private\n")

	outcome, err := h.crawler.Attempt(ctx)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeRobotsDenied, outcome)
	require.Empty(t, h.fetcher.calls)

	entry, err := h.st.GetFrontierEntry(ctx, "https://site.example/private/x")
	require.NoError(t, err)
	require.False(t, entry.Locked())
}

func TestRedirectQueuesTargetAtNextTier(t *testing.T) {
	t.Parallel()

	h := newHarness(t, crawler.Config{})
	ctx := context.Background()
	h.seed(t, "https://site.example/old", "site.example", store.NoRobotsPolicy)
	h.fetcher.responses["https://site.example/old"] = crawler.FetchResponse{
		StatusCode: http.StatusMovedPermanently,
		Headers:    http.Header{"Location": {"https://moved.example/new"}},
	}

	outcome, err := h.crawler.Attempt(ctx)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeRedirected, outcome)

	entries := h.st.FrontierEntries()
	require.Len(t, entries, 1)
	require.Equal(t, "https://moved.example/new", entries[0].URL)
	moved, err := h.st.GetDomainByHost(ctx, "moved.example")
	require.NoError(t, err)
	require.Equal(t, 1, moved.Tier)
}

func TestRelativeRedirectResolvesAgainstRequestURL(t *testing.T) {
	t.Parallel()

	h := newHarness(t, crawler.Config{})
	ctx := context.Background()
	h.seed(t, "https://site.example/a/old", "site.example", store.NoRobotsPolicy)
	h.fetcher.responses["https://site.example/a/old"] = crawler.FetchResponse{
		StatusCode: http.StatusFound,
		Headers:    http.Header{"Location": {"../new"}},
	}

	outcome, err := h.crawler.Attempt(ctx)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeRedirected, outcome)
	_, err = h.st.GetFrontierEntry(ctx, "https://site.example/new")
	require.NoError(t, err)
	_, err = h.st.GetFrontierEntry(ctx, "https://site.example/a/old")
	require.ErrorIs(t, err, store.ErrNotFound)
}
