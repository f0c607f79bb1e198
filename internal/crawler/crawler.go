package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlsearch/internal/clock"
	"github.com/JakeFAU/crawlsearch/internal/extract"
	"github.com/JakeFAU/crawlsearch/internal/frontier"
	"github.com/JakeFAU/crawlsearch/internal/index"
	"github.com/JakeFAU/crawlsearch/internal/linkgraph"
	"github.com/JakeFAU/crawlsearch/internal/metrics"
	"github.com/JakeFAU/crawlsearch/internal/pagecodec"
	"github.com/JakeFAU/crawlsearch/internal/robots"
	"github.com/JakeFAU/crawlsearch/internal/store"
)

// Config tunes a Crawler.
type Config struct {
	UserAgent string
	// RawFormat is the pagecodec format used for stored page bodies.
	RawFormat string
	// DropUnindexable deletes robots-denied and content-rejected entries
	// instead of unlocking them for another attempt.
	DropUnindexable bool
}

// Crawler runs single crawl attempts.
type Crawler struct {
	cfg      Config
	store    store.Store
	frontier *frontier.Frontier
	robots   *robots.Cache
	fetcher  Fetcher
	indexer  *index.Indexer
	links    *linkgraph.Ingester
	clock    clock.Clock
	logger   *zap.Logger
}

// Deps are the collaborators of a Crawler.
type Deps struct {
	Store    store.Store
	Frontier *frontier.Frontier
	Robots   *robots.Cache
	Fetcher  Fetcher
	Indexer  *index.Indexer
	Links    *linkgraph.Ingester
	Clock    clock.Clock
	Logger   *zap.Logger
}

// New builds a Crawler.
func New(cfg Config, deps Deps) *Crawler {
	if cfg.RawFormat == "" {
		cfg.RawFormat = pagecodec.FormatBrotli
	}
	c := &Crawler{
		cfg:      cfg,
		store:    deps.Store,
		frontier: deps.Frontier,
		robots:   deps.Robots,
		fetcher:  deps.Fetcher,
		indexer:  deps.Indexer,
		links:    deps.Links,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Attempt claims one frontier entry and crawls it. Failures release the entry
// for a later attempt and are reported as OutcomeFailed together with the
// cause; Attempt never leaves a claimed entry locked unless the unlock itself
// fails.
func (c *Crawler) Attempt(ctx context.Context) (Outcome, error) {
	entry, ok, err := c.frontier.ClaimNext(ctx)
	if err != nil {
		metrics.ObserveCrawl(string(OutcomeFailed))
		return OutcomeFailed, err
	}
	if !ok {
		return OutcomeIdle, nil
	}

	metrics.IncInFlight()
	defer metrics.DecInFlight()

	logger := c.logger.With(zap.String("url", entry.URL), zap.Int64("entry_id", entry.ID))
	logger.Debug("Claimed frontier entry")

	outcome, err := c.crawl(ctx, entry, logger)
	metrics.ObserveCrawl(string(outcome))
	if err == nil {
		return outcome, nil
	}

	logger.Error("Crawl attempt failed", zap.String("outcome", string(outcome)), zap.Error(err))
	// The attempt context may be what failed; the unlock must still land.
	unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if uerr := c.frontier.Release(unlockCtx, entry.ID, false); uerr != nil && !errors.Is(uerr, store.ErrNotFound) {
		logger.Error("Failed to unlock frontier entry", zap.Error(uerr))
		return outcome, errors.Join(err, uerr)
	}
	return outcome, err
}

func (c *Crawler) crawl(ctx context.Context, entry store.FrontierEntry, logger *zap.Logger) (Outcome, error) {
	domain, err := c.store.GetDomain(ctx, entry.DomainID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("load domain %d: %w", entry.DomainID, err)
	}
	logger = logger.With(zap.String("domain", domain.Hostname))

	policy, err := c.robots.GetPolicy(ctx, domain)
	if err != nil {
		return OutcomeFailed, err
	}
	if !policy.IsAllowed(entry.URL, c.cfg.UserAgent) {
		logger.Warn("Access denied by robots policy", zap.String("outcome", string(OutcomeRobotsDenied)))
		return OutcomeRobotsDenied, c.finishUnindexable(ctx, entry)
	}

	pageURL, err := url.Parse(entry.URL)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("parse queued url: %w", err)
	}

	resp, err := c.fetcher.Fetch(ctx, FetchRequest{URL: entry.URL})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("fetch: %w", err)
	}
	metrics.ObserveFetch(len(resp.Body))

	switch {
	case resp.IsRedirect():
		return c.redirect(ctx, entry, domain, pageURL, resp, logger)
	case !resp.IsSuccess():
		return OutcomeFailed, &StatusError{Code: resp.StatusCode}
	}

	contentType := resp.Headers.Get("Content-Type")
	if !linkgraph.Acceptable(contentType) {
		logger.Warn("Content-Type is not acceptable; ignoring",
			zap.String("content_type", contentType),
			zap.String("outcome", string(OutcomeContentRejected)),
		)
		return OutcomeContentRejected, c.finishUnindexable(ctx, entry)
	}

	parsed := extract.Parse(resp.Body, pageURL)
	raw, err := pagecodec.Encode(c.cfg.RawFormat, resp.Body)
	if err != nil {
		return OutcomeFailed, err
	}

	var queued int
	err = c.store.InTx(ctx, func(repo store.Repository) error {
		pageID, err := repo.UpsertPage(ctx, store.Page{
			URL:        entry.URL,
			RawContent: raw,
			RawFormat:  c.cfg.RawFormat,
			UpdatedAt:  c.clock.Now(),
			DomainID:   domain.ID,
			Text:       parsed.Text,
			Title:      parsed.Title,
		})
		if err != nil {
			return fmt.Errorf("upsert page: %w", err)
		}
		if err := c.indexer.IndexWith(ctx, repo, pageID, parsed.Text); err != nil {
			return err
		}
		if queued, err = c.links.Ingest(ctx, repo, pageID, pageURL, parsed.Links, domain.Tier); err != nil {
			return err
		}
		return c.frontier.ReleaseWith(ctx, repo, entry.ID, true)
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("store crawled page: %w", err)
	}

	logger.Info("Indexed page",
		zap.String("outcome", string(OutcomeIndexed)),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.Int("links", len(parsed.Links)),
		zap.Int("queued", queued),
		zap.Duration("fetch_duration", resp.Duration),
	)
	return OutcomeIndexed, nil
}

func (c *Crawler) redirect(
	ctx context.Context,
	entry store.FrontierEntry,
	domain store.Domain,
	pageURL *url.URL,
	resp FetchResponse,
	logger *zap.Logger,
) (Outcome, error) {
	location := resp.Headers.Get("Location")
	if location == "" {
		return OutcomeFailed, fmt.Errorf("redirect status %d without location", resp.StatusCode)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("parse redirect location %q: %w", location, err)
	}
	target := pageURL.ResolveReference(ref)

	err = c.store.InTx(ctx, func(repo store.Repository) error {
		if err := c.frontier.EnqueueWith(ctx, repo, target, domain.Tier+1); err != nil && !errors.Is(err, frontier.ErrInvalidURL) {
			return err
		}
		return c.frontier.ReleaseWith(ctx, repo, entry.ID, true)
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("follow redirect: %w", err)
	}
	logger.Info("Redirected",
		zap.String("outcome", string(OutcomeRedirected)),
		zap.Int("status", resp.StatusCode),
		zap.String("location", target.String()),
	)
	return OutcomeRedirected, nil
}

// finishUnindexable releases an entry that can never be indexed as things
// stand: it is unlocked for another attempt, or deleted with DropUnindexable.
func (c *Crawler) finishUnindexable(ctx context.Context, entry store.FrontierEntry) error {
	if err := c.frontier.Release(ctx, entry.ID, c.cfg.DropUnindexable); err != nil {
		return fmt.Errorf("release unindexable entry: %w", err)
	}
	return nil
}
