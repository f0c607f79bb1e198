package app

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlsearch/internal/extract"
	"github.com/JakeFAU/crawlsearch/internal/pagecodec"
	"github.com/JakeFAU/crawlsearch/internal/store"
)

const reindexBatch = 100

// ReindexReport summarises a Reindex run.
type ReindexReport struct {
	Indexed int
	Skipped int
}

// Reindex decodes every stored page, extracts it again, and replaces its text,
// title, and token weights. Pages whose raw content cannot be decoded are
// skipped and logged.
func (a *App) Reindex(ctx context.Context) (ReindexReport, error) {
	var (
		report ReindexReport
		after  int64
	)
	for {
		pages, err := a.store.ListPages(ctx, after, reindexBatch)
		if err != nil {
			return report, fmt.Errorf("list pages after %d: %w", after, err)
		}
		if len(pages) == 0 {
			break
		}
		for _, page := range pages {
			after = page.ID
			ok, err := a.reindexPage(ctx, page)
			if err != nil {
				return report, err
			}
			if ok {
				report.Indexed++
			} else {
				report.Skipped++
			}
		}
	}
	a.logger.Info("Reindex finished", zap.Int("indexed", report.Indexed), zap.Int("skipped", report.Skipped))
	return report, nil
}

func (a *App) reindexPage(ctx context.Context, page store.Page) (bool, error) {
	logger := a.logger.With(zap.String("url", page.URL), zap.Int64("page_id", page.ID))
	body, err := pagecodec.Decode(page.RawFormat, page.RawContent)
	if err != nil {
		logger.Warn("Skipping page with undecodable content", zap.Error(err))
		return false, nil
	}
	pageURL, err := url.Parse(page.URL)
	if err != nil {
		logger.Warn("Skipping page with unparsable url", zap.Error(err))
		return false, nil
	}
	parsed := extract.Parse(body, pageURL)
	page.Text = parsed.Text
	page.Title = parsed.Title
	err = a.store.InTx(ctx, func(repo store.Repository) error {
		if _, err := repo.UpsertPage(ctx, page); err != nil {
			return fmt.Errorf("update page: %w", err)
		}
		return a.indexer.IndexWith(ctx, repo, page.ID, page.Text)
	})
	if err != nil {
		return false, fmt.Errorf("reindex %s: %w", page.URL, err)
	}
	return true, nil
}
