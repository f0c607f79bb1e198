// Package postgres implements store.Store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/crawlsearch/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the statement surface shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txBeginner interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store is a store.Store backed by a pgx pool.
type Store struct {
	*repo
	pool txBeginner
}

var _ store.Store = (*Store)(nil)

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{repo: &repo{q: pool}, pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool txBeginner) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{repo: &repo{q: pool}, pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// InTx runs fn inside a transaction, committing only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(store.Repository) error) error {
	return s.withTx(ctx, func(q querier) error {
		return fn(&repo{q: q})
	})
}

func (s *Store) withTx(ctx context.Context, fn func(querier) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ReplaceTokenWeights runs the delete-and-insert in its own transaction.
func (s *Store) ReplaceTokenWeights(ctx context.Context, pageID int64, weights map[string]float64) error {
	return s.InTx(ctx, func(r store.Repository) error {
		return r.ReplaceTokenWeights(ctx, pageID, weights)
	})
}

// repo implements store.Repository over any querier.
type repo struct {
	q querier
}

// foreignKeyViolation is the SQLSTATE for a missing referenced row.
const foreignKeyViolation = "23503"

// notFound maps missing rows and dangling references to store.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return store.ErrNotFound
	}
	return err
}

func expectOne(tag pgconn.CommandTag, err error, what string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const domainColumns = `id, hostname, enabled, tier, robots_policy`

func scanDomain(row pgx.Row) (store.Domain, error) {
	var d store.Domain
	if err := row.Scan(&d.ID, &d.Hostname, &d.Enabled, &d.Tier, &d.RobotsPolicy); err != nil {
		return store.Domain{}, notFound(err)
	}
	return d, nil
}

// EnsureDomain inserts without touching an existing row, then falls back to a
// plain read, so linking a shared host takes no row lock.
func (r *repo) EnsureDomain(ctx context.Context, hostname string, tier int) (store.Domain, error) {
	d, err := scanDomain(r.q.QueryRow(ctx, `
INSERT INTO domains (hostname, enabled, tier)
VALUES ($1, FALSE, $2)
ON CONFLICT (hostname) DO NOTHING
RETURNING `+domainColumns, hostname, tier))
	if errors.Is(err, store.ErrNotFound) {
		d, err = r.GetDomainByHost(ctx, hostname)
	}
	if err != nil {
		return store.Domain{}, fmt.Errorf("ensure domain: %w", err)
	}
	return d, nil
}

func (r *repo) GetDomain(ctx context.Context, id int64) (store.Domain, error) {
	return scanDomain(r.q.QueryRow(ctx, `SELECT `+domainColumns+` FROM domains WHERE id = $1`, id))
}

func (r *repo) GetDomainByHost(ctx context.Context, hostname string) (store.Domain, error) {
	return scanDomain(r.q.QueryRow(ctx, `SELECT `+domainColumns+` FROM domains WHERE hostname = $1`, hostname))
}

func (r *repo) ListDomains(ctx context.Context) ([]store.Domain, error) {
	rows, err := r.q.Query(ctx, `SELECT `+domainColumns+` FROM domains ORDER BY tier, hostname`)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()
	var out []store.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	return out, nil
}

func (r *repo) UpdateDomain(ctx context.Context, hostname string, enabled bool, tier int) error {
	tag, err := r.q.Exec(ctx, `UPDATE domains SET enabled = $2, tier = $3 WHERE hostname = $1`, hostname, enabled, tier)
	return expectOne(tag, err, "update domain")
}

func (r *repo) SetRobotsPolicy(ctx context.Context, domainID int64, policy string) error {
	tag, err := r.q.Exec(ctx, `UPDATE domains SET robots_policy = $2 WHERE id = $1`, domainID, policy)
	return expectOne(tag, err, "set robots policy")
}
