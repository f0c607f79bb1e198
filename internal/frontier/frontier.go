// Package frontier is the durable queue of discovered but unfetched URLs.
package frontier

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlsearch/internal/clock"
	"github.com/JakeFAU/crawlsearch/internal/store"
)

// DefaultSampleSize bounds how many recent entries a claim chooses from.
const DefaultSampleSize = 100

// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("frontier: url must be absolute http or https")

// Frontier enqueues, claims, and releases crawl targets.
type Frontier struct {
	store      store.Store
	clock      clock.Clock
	sampleSize int
	logger     *zap.Logger
}

// Option customizes a Frontier.
type Option func(*Frontier)

// WithClock overrides the time source used for addedAt and lockedAt.
func WithClock(c clock.Clock) Option {
	return func(f *Frontier) {
		if c != nil {
			f.clock = c
		}
	}
}

// WithSampleSize sets the number of recent eligible entries a claim picks from.
func WithSampleSize(n int) Option {
	return func(f *Frontier) {
		if n > 0 {
			f.sampleSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Frontier) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New builds a Frontier over st.
func New(st store.Store, opts ...Option) *Frontier {
	f := &Frontier{
		store:      st,
		clock:      clock.New(),
		sampleSize: DefaultSampleSize,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Canonicalize lowercases the scheme and host, drops default ports and the
// fragment, and rejects anything that is not an absolute http(s) URL.
func Canonicalize(u *url.URL) (*url.URL, error) {
	if u == nil {
		return nil, ErrInvalidURL
	}
	out := *u
	out.Scheme = strings.ToLower(out.Scheme)
	if out.Scheme != "http" && out.Scheme != "https" || out.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, u.String())
	}
	out.Host = HostKey(&out)
	out.Fragment = ""
	out.RawFragment = ""
	out.User = nil
	return &out, nil
}

// HostKey is the domain identity of u: the lowercased host with any default
// port removed. Non-default ports make a distinct domain.
func HostKey(u *url.URL) string {
	host := strings.ToLower(u.Host)
	switch {
	case strings.EqualFold(u.Scheme, "http") && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case strings.EqualFold(u.Scheme, "https") && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	return host
}

// Enqueue adds rawURL at tier, creating its domain when first seen.
func (f *Frontier) Enqueue(ctx context.Context, rawURL string, tier int) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return f.store.InTx(ctx, func(repo store.Repository) error {
		return f.EnqueueWith(ctx, repo, u, tier)
	})
}

// EnqueueWith is Enqueue inside an existing unit of work. If the URL is
// already queued only its addedAt moves.
func (f *Frontier) EnqueueWith(ctx context.Context, repo store.Repository, u *url.URL, tier int) error {
	target, err := Canonicalize(u)
	if err != nil {
		return err
	}
	domain, err := repo.EnsureDomain(ctx, target.Host, tier)
	if err != nil {
		return fmt.Errorf("ensure domain %s: %w", target.Host, err)
	}
	if err := repo.UpsertFrontierEntry(ctx, target.String(), domain.ID, f.clock.Now()); err != nil {
		return fmt.Errorf("queue %s: %w", target, err)
	}
	f.logger.Debug("Queued url", zap.String("url", target.String()), zap.Int("tier", tier))
	return nil
}

// ClaimNext locks one eligible entry. The boolean is false when nothing is
// eligible.
func (f *Frontier) ClaimNext(ctx context.Context) (store.FrontierEntry, bool, error) {
	entry, err := f.store.ClaimFrontierEntry(ctx, f.sampleSize, f.clock.Now())
	if errors.Is(err, store.ErrNotFound) {
		return store.FrontierEntry{}, false, nil
	}
	if err != nil {
		return store.FrontierEntry{}, false, fmt.Errorf("claim frontier entry: %w", err)
	}
	return entry, true, nil
}

// Release deletes the entry on success and unlocks it otherwise.
func (f *Frontier) Release(ctx context.Context, id int64, success bool) error {
	return f.ReleaseWith(ctx, f.store, id, success)
}

// ReleaseWith is Release inside an existing unit of work.
func (f *Frontier) ReleaseWith(ctx context.Context, repo store.Repository, id int64, success bool) error {
	if success {
		if err := repo.DeleteFrontierEntry(ctx, id); err != nil {
			return fmt.Errorf("delete frontier entry %d: %w", id, err)
		}
		return nil
	}
	if err := repo.UnlockFrontierEntry(ctx, id); err != nil {
		return fmt.Errorf("unlock frontier entry %d: %w", id, err)
	}
	return nil
}

// ReapStale unlocks entries locked for longer than olderThan, recovering
// targets held by workers that died mid-crawl.
func (f *Frontier) ReapStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := f.store.ReleaseStaleLocks(ctx, f.clock.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("release stale locks: %w", err)
	}
	if n > 0 {
		f.logger.Warn("Released stale frontier locks", zap.Int64("count", n))
	}
	return n, nil
}
