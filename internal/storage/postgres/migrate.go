package postgres

import (
	"context"
	"fmt"
)

type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS domains (
	id BIGSERIAL PRIMARY KEY,
	hostname TEXT NOT NULL UNIQUE,
	enabled BOOLEAN NOT NULL DEFAULT FALSE,
	tier INTEGER NOT NULL DEFAULT 0,
	robots_policy TEXT
)`,
			`CREATE TABLE IF NOT EXISTS frontier (
	id BIGSERIAL PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	domain_id BIGINT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
	added_at TIMESTAMPTZ NOT NULL,
	locked_at TIMESTAMPTZ
)`,
			`CREATE TABLE IF NOT EXISTS pages (
	id BIGSERIAL PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	raw_content BYTEA,
	raw_format TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	domain_id BIGINT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
	page_text TEXT NOT NULL DEFAULT '',
	page_title TEXT NOT NULL DEFAULT ''
)`,
			`CREATE TABLE IF NOT EXISTS links (
	to_url TEXT NOT NULL,
	from_page_id BIGINT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
	last_seen TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (to_url, from_page_id)
)`,
			`CREATE TABLE IF NOT EXISTS page_tokens (
	page_id BIGINT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
	token TEXT NOT NULL,
	weight DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (page_id, token)
)`,
			`CREATE TABLE IF NOT EXISTS search_history (
	id BIGSERIAL PRIMARY KEY,
	query TEXT NOT NULL,
	searched_at TIMESTAMPTZ NOT NULL,
	result_count INTEGER NOT NULL,
	elapsed_ms BIGINT NOT NULL
)`,
		},
	},
	{
		version: 2,
		statements: []string{
			`CREATE INDEX IF NOT EXISTS frontier_unlocked_added_at_idx ON frontier (added_at DESC) WHERE locked_at IS NULL`,
			`CREATE INDEX IF NOT EXISTS page_tokens_token_idx ON page_tokens (token)`,
		},
	},
}

// Migrate creates the schema, applying each pending version in its own
// transaction. It returns the number of versions applied.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}
	var current int
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := s.withTx(ctx, func(q querier) error {
			for _, stmt := range m.statements {
				if _, err := q.Exec(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := q.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		applied++
	}
	return applied, nil
}
