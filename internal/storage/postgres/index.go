package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/JakeFAU/crawlsearch/internal/store"
)

func (r *repo) ReplaceTokenWeights(ctx context.Context, pageID int64, weights map[string]float64) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM page_tokens WHERE page_id = $1`, pageID); err != nil {
		return fmt.Errorf("delete page tokens: %w", err)
	}
	if len(weights) == 0 {
		return nil
	}
	tokens := make([]string, 0, len(weights))
	for tok := range weights {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	values := make([]float64, len(tokens))
	for i, tok := range tokens {
		values[i] = weights[tok]
	}
	if _, err := r.q.Exec(ctx, `
INSERT INTO page_tokens (page_id, token, weight)
SELECT $1, t.token, t.weight FROM unnest($2::text[], $3::float8[]) AS t(token, weight)`,
		pageID, tokens, values); err != nil {
		return fmt.Errorf("insert page tokens: %w", notFound(err))
	}
	return nil
}

func (r *repo) TokenTotal(ctx context.Context, token string) (float64, error) {
	var total float64
	if err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(weight), 0) FROM page_tokens WHERE token = $1`, token).Scan(&total); err != nil {
		return 0, fmt.Errorf("token total: %w", err)
	}
	return total, nil
}

func (r *repo) TokenPostings(ctx context.Context, token string) ([]store.Posting, error) {
	rows, err := r.q.Query(ctx, `SELECT page_id, weight FROM page_tokens WHERE token = $1 ORDER BY page_id`, token)
	if err != nil {
		return nil, fmt.Errorf("token postings: %w", err)
	}
	defer rows.Close()
	var out []store.Posting
	for rows.Next() {
		var p store.Posting
		if err := rows.Scan(&p.PageID, &p.Weight); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("token postings: %w", err)
	}
	return out, nil
}

func (r *repo) RecordSearch(ctx context.Context, record store.SearchRecord) error {
	if _, err := r.q.Exec(ctx, `
INSERT INTO search_history (query, searched_at, result_count, elapsed_ms)
VALUES ($1, $2, $3, $4)`,
		record.Query, record.Timestamp, record.ResultCount, record.Elapsed.Milliseconds()); err != nil {
		return fmt.Errorf("record search: %w", err)
	}
	return nil
}

func (r *repo) Stats(ctx context.Context) (store.Stats, error) {
	var s store.Stats
	err := r.q.QueryRow(ctx, `
SELECT
	(SELECT count(*) FROM domains),
	(SELECT count(*) FROM domains WHERE enabled),
	(SELECT count(*) FROM frontier),
	(SELECT count(*) FROM frontier WHERE locked_at IS NOT NULL),
	(SELECT count(*) FROM pages)`).Scan(&s.Domains, &s.EnabledDomains, &s.FrontierEntries, &s.LockedEntries, &s.Pages)
	if err != nil {
		return store.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return s, nil
}
