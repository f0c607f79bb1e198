package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/crawlsearch/internal/store"
)

const frontierColumns = `id, url, domain_id, added_at, locked_at`

func scanFrontier(row pgx.Row) (store.FrontierEntry, error) {
	var e store.FrontierEntry
	if err := row.Scan(&e.ID, &e.URL, &e.DomainID, &e.AddedAt, &e.LockedAt); err != nil {
		return store.FrontierEntry{}, notFound(err)
	}
	return e, nil
}

// UpsertFrontierEntry never row-locks a claimed entry: ON CONFLICT DO UPDATE
// would lock it even with a WHERE clause, so the bump is a separate UPDATE that
// skips locked rows.
func (r *repo) UpsertFrontierEntry(ctx context.Context, url string, domainID int64, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
INSERT INTO frontier (url, domain_id, added_at)
VALUES ($1, $2, $3)
ON CONFLICT (url) DO NOTHING`, url, domainID, at)
	if err != nil {
		return fmt.Errorf("upsert frontier entry: %w", notFound(err))
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := r.q.Exec(ctx,
		`UPDATE frontier SET added_at = $2 WHERE url = $1 AND locked_at IS NULL`, url, at); err != nil {
		return fmt.Errorf("bump frontier entry: %w", err)
	}
	return nil
}

// claimQuery samples the most recently added eligible rows, skipping rows
// another transaction is claiming, and locks one of them at random.
const claimQuery = `
UPDATE frontier SET locked_at = $2
WHERE id = (
	SELECT id FROM (
		SELECT f.id FROM frontier f
		JOIN domains d ON d.id = f.domain_id
		WHERE f.locked_at IS NULL AND d.enabled
		ORDER BY f.added_at DESC
		LIMIT $1
		FOR UPDATE OF f SKIP LOCKED
	) sample
	ORDER BY random()
	LIMIT 1
) AND locked_at IS NULL
RETURNING ` + frontierColumns

func (r *repo) ClaimFrontierEntry(ctx context.Context, sampleSize int, at time.Time) (store.FrontierEntry, error) {
	e, err := scanFrontier(r.q.QueryRow(ctx, claimQuery, sampleSize, at))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.FrontierEntry{}, err
		}
		return store.FrontierEntry{}, fmt.Errorf("claim frontier entry: %w", err)
	}
	return e, nil
}

func (r *repo) GetFrontierEntry(ctx context.Context, url string) (store.FrontierEntry, error) {
	return scanFrontier(r.q.QueryRow(ctx, `SELECT `+frontierColumns+` FROM frontier WHERE url = $1`, url))
}

func (r *repo) DeleteFrontierEntry(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM frontier WHERE id = $1`, id)
	return expectOne(tag, err, "delete frontier entry")
}

func (r *repo) UnlockFrontierEntry(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `UPDATE frontier SET locked_at = NULL WHERE id = $1`, id)
	return expectOne(tag, err, "unlock frontier entry")
}

func (r *repo) ReleaseStaleLocks(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `UPDATE frontier SET locked_at = NULL WHERE locked_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("release stale locks: %w", err)
	}
	return tag.RowsAffected(), nil
}

const pageColumns = `id, url, raw_content, raw_format, updated_at, domain_id, page_text, page_title`

func scanPage(row pgx.Row) (store.Page, error) {
	var p store.Page
	if err := row.Scan(&p.ID, &p.URL, &p.RawContent, &p.RawFormat, &p.UpdatedAt, &p.DomainID, &p.Text, &p.Title); err != nil {
		return store.Page{}, notFound(err)
	}
	return p, nil
}

func (r *repo) UpsertPage(ctx context.Context, page store.Page) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
INSERT INTO pages (url, raw_content, raw_format, updated_at, domain_id, page_text, page_title)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (url) DO UPDATE SET
	raw_content = EXCLUDED.raw_content,
	raw_format = EXCLUDED.raw_format,
	updated_at = EXCLUDED.updated_at,
	domain_id = EXCLUDED.domain_id,
	page_text = EXCLUDED.page_text,
	page_title = EXCLUDED.page_title
RETURNING id`,
		page.URL, page.RawContent, page.RawFormat, page.UpdatedAt, page.DomainID, page.Text, page.Title,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert page: %w", notFound(err))
	}
	return id, nil
}

func (r *repo) GetPage(ctx context.Context, id int64) (store.Page, error) {
	return scanPage(r.q.QueryRow(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = $1`, id))
}

func (r *repo) PageIDByURL(ctx context.Context, url string) (int64, error) {
	var id int64
	if err := r.q.QueryRow(ctx, `SELECT id FROM pages WHERE url = $1`, url).Scan(&id); err != nil {
		return 0, notFound(err)
	}
	return id, nil
}

func (r *repo) ListPages(ctx context.Context, afterID int64, limit int) ([]store.Page, error) {
	rows, err := r.q.Query(ctx, `SELECT `+pageColumns+` FROM pages WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()
	var out []store.Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	return out, nil
}

func (r *repo) UpsertLink(ctx context.Context, toURL string, fromPageID int64, at time.Time) error {
	if _, err := r.q.Exec(ctx, `
INSERT INTO links (to_url, from_page_id, last_seen)
VALUES ($1, $2, $3)
ON CONFLICT (to_url, from_page_id) DO UPDATE SET last_seen = EXCLUDED.last_seen`, toURL, fromPageID, at); err != nil {
		return fmt.Errorf("upsert link: %w", notFound(err))
	}
	return nil
}
