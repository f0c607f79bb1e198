// Package linkgraph resolves a page's outbound links, records the link graph,
// and feeds crawlable targets back into the frontier.
package linkgraph

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlsearch/internal/clock"
	"github.com/JakeFAU/crawlsearch/internal/frontier"
	"github.com/JakeFAU/crawlsearch/internal/store"
)

// Normalize resolves raw links against base, strips query strings and
// fragments, drops non-http(s) and unparseable links, and deduplicates by the
// resulting absolute URL. Order of first appearance is kept.
func Normalize(base *url.URL, links []string) []*url.URL {
	seen := make(map[string]struct{}, len(links))
	out := make([]*url.URL, 0, len(links))
	for _, raw := range links {
		ref, err := url.Parse(raw)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		abs.RawFragment = ""
		abs.RawQuery = ""
		abs.ForceQuery = false
		canonical, err := frontier.Canonicalize(abs)
		if err != nil {
			continue
		}
		key := canonical.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

// Ingester writes link rows and enqueues newly discovered targets.
type Ingester struct {
	frontier *frontier.Frontier
	clock    clock.Clock
	logger   *zap.Logger
}

// NewIngester builds an Ingester.
func NewIngester(f *frontier.Frontier, clk clock.Clock, logger *zap.Logger) *Ingester {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{frontier: f, clock: clk, logger: logger}
}

// Ingest records every normalized link from pageID and enqueues the ones that
// look crawlable and have no Page yet at sourceTier+1. It returns the number
// of links queued.
//
// Links are written in host then URL order so concurrent crawls touch shared
// domain and frontier rows in the same sequence.
func (g *Ingester) Ingest(
	ctx context.Context,
	repo store.Repository,
	pageID int64,
	base *url.URL,
	links []string,
	sourceTier int,
) (int, error) {
	now := g.clock.Now()
	queued := 0
	for _, link := range ingestOrder(Normalize(base, links)) {
		target := link.String()
		if err := repo.UpsertLink(ctx, target, pageID, now); err != nil {
			return queued, fmt.Errorf("record link %s: %w", target, err)
		}
		if !ShouldCrawl(link.Path) {
			continue
		}
		_, err := repo.PageIDByURL(ctx, target)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return queued, fmt.Errorf("lookup page %s: %w", target, err)
		}
		if err := g.frontier.EnqueueWith(ctx, repo, link, sourceTier+1); err != nil {
			return queued, err
		}
		queued++
	}
	g.logger.Debug("Ingested links", zap.String("url", base.String()), zap.Int("queued", queued))
	return queued, nil
}

// ingestOrder sorts normalized links by host, then by full URL.
func ingestOrder(links []*url.URL) []*url.URL {
	slices.SortFunc(links, func(a, b *url.URL) int {
		return cmp.Or(cmp.Compare(a.Host, b.Host), cmp.Compare(a.String(), b.String()))
	})
	return links
}
