package crawler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlsearch/internal/clock"
	"github.com/JakeFAU/crawlsearch/internal/crawler"
	collyfetcher "github.com/JakeFAU/crawlsearch/internal/fetcher/colly"
	"github.com/JakeFAU/crawlsearch/internal/frontier"
	"github.com/JakeFAU/crawlsearch/internal/index"
	"github.com/JakeFAU/crawlsearch/internal/linkgraph"
	"github.com/JakeFAU/crawlsearch/internal/query"
	"github.com/JakeFAU/crawlsearch/internal/robots"
	"github.com/JakeFAU/crawlsearch/internal/storage/memory"
	"github.com/JakeFAU/crawlsearch/internal/store"
)

func TestCrawlSiteEndToEnd(t *testing.T) {
	t.Parallel()

	var robotsHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		robotsHits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<title>Home</title><p>Welcome to the fox den</p><a href="/about">About</a>`))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Foxes live here"))
	})
	mux.HandleFunc("/go", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	host := mustHost(t, srv.URL)

	st := memory.New()
	clk := clock.NewManual(start)
	f := frontier.New(st, frontier.WithClock(clk))
	c := crawler.New(crawler.Config{UserAgent: testAgent, RawFormat: "zlib"}, crawler.Deps{
		Store:    st,
		Frontier: f,
		Robots:   robots.New(st, testAgent, robots.WithScheme("http")),
		Fetcher:  collyfetcher.New(collyfetcher.Config{UserAgent: testAgent}),
		Indexer:  index.New(st),
		Links:    linkgraph.NewIngester(f, clk, nil),
		Clock:    clk,
	})
	ctx := context.Background()

	require.NoError(t, f.Enqueue(ctx, srv.URL+"/go", 0))
	require.NoError(t, st.UpdateDomain(ctx, host, true, 0))

	outcomes := map[crawler.Outcome]int{}
	for range 10 {
		outcome, err := c.Attempt(ctx)
		require.NoError(t, err)
		outcomes[outcome]++
		if outcome == crawler.OutcomeIdle {
			break
		}
	}
	require.Equal(t, 1, outcomes[crawler.OutcomeRedirected])
	require.Equal(t, 2, outcomes[crawler.OutcomeIndexed])
	require.Empty(t, st.FrontierEntries())
	require.EqualValues(t, 1, robotsHits.Load())

	domain, err := st.GetDomainByHost(ctx, host)
	require.NoError(t, err)
	require.Equal(t, store.NoRobotsPolicy, *domain.RobotsPolicy)

	resp, err := query.New(st).Search(ctx, "foxes")
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	require.Equal(t, srv.URL+"/about", resp.Results[0].URL)
}

func mustHost(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Host
}
