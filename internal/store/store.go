package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist. ClaimFrontierEntry
// also returns it when no entry is eligible.
var ErrNotFound = errors.New("record not found")

// NoRobotsPolicy is persisted on a Domain whose robots.txt could not be
// retrieved. It is distinct from a nil policy, which means "not yet checked".
const NoRobotsPolicy = "none"

// Domain is a crawlable host.
type Domain struct {
	ID       int64
	Hostname string
	Enabled  bool
	Tier     int
	// RobotsPolicy is nil until the first crawl attempt, then either the raw
	// robots.txt text or NoRobotsPolicy.
	RobotsPolicy *string
}

// RobotsChecked reports whether a robots.txt lookup has been recorded.
func (d Domain) RobotsChecked() bool {
	return d.RobotsPolicy != nil
}

// Page is a fetched and parsed document, unique by URL.
type Page struct {
	ID         int64
	URL        string
	RawContent []byte
	RawFormat  string
	UpdatedAt  time.Time
	DomainID   int64
	Text       string
	Title      string
}

// FrontierEntry is a discovered URL that has not been fetched yet.
type FrontierEntry struct {
	ID       int64
	URL      string
	DomainID int64
	AddedAt  time.Time
	// LockedAt is set while a worker owns the entry.
	LockedAt *time.Time
}

// Locked reports whether a worker currently owns the entry.
func (e FrontierEntry) Locked() bool {
	return e.LockedAt != nil
}

// Link is an edge from a page to an absolute URL.
type Link struct {
	ToURL      string
	FromPageID int64
	LastSeen   time.Time
}

// Posting is one page's weight for a token.
type Posting struct {
	PageID int64
	Weight float64
}

// SearchRecord is an append-only audit row for one executed query.
type SearchRecord struct {
	Query       string
	Timestamp   time.Time
	ResultCount int
	Elapsed     time.Duration
}

// Stats summarises the crawl state for operators.
type Stats struct {
	Domains         int64 `json:"domains"`
	EnabledDomains  int64 `json:"enabled_domains"`
	FrontierEntries int64 `json:"frontier_entries"`
	LockedEntries   int64 `json:"locked_entries"`
	Pages           int64 `json:"pages"`
}

// Repository is the CRUD surface over the crawl and index entities.
type Repository interface {
	// EnsureDomain returns the domain for hostname, creating it disabled with
	// the given tier and an unknown robots policy when absent.
	EnsureDomain(ctx context.Context, hostname string, tier int) (Domain, error)
	GetDomain(ctx context.Context, id int64) (Domain, error)
	GetDomainByHost(ctx context.Context, hostname string) (Domain, error)
	ListDomains(ctx context.Context) ([]Domain, error)
	// UpdateDomain sets the operator-controlled fields of a domain.
	UpdateDomain(ctx context.Context, hostname string, enabled bool, tier int) error
	SetRobotsPolicy(ctx context.Context, domainID int64, policy string) error

	// UpsertFrontierEntry inserts url or, when already queued and unlocked,
	// bumps AddedAt. A claimed entry is left alone.
	UpsertFrontierEntry(ctx context.Context, url string, domainID int64, at time.Time) error
	// ClaimFrontierEntry atomically locks one unlocked entry of an enabled
	// domain, picked at random among the sampleSize most recently added
	// eligible entries.
	ClaimFrontierEntry(ctx context.Context, sampleSize int, at time.Time) (FrontierEntry, error)
	GetFrontierEntry(ctx context.Context, url string) (FrontierEntry, error)
	DeleteFrontierEntry(ctx context.Context, id int64) error
	UnlockFrontierEntry(ctx context.Context, id int64) error
	// ReleaseStaleLocks clears locks taken before the given time.
	ReleaseStaleLocks(ctx context.Context, before time.Time) (int64, error)

	// UpsertPage writes a page by URL and returns its id.
	UpsertPage(ctx context.Context, page Page) (int64, error)
	GetPage(ctx context.Context, id int64) (Page, error)
	PageIDByURL(ctx context.Context, url string) (int64, error)
	// ListPages pages through stored pages in id order.
	ListPages(ctx context.Context, afterID int64, limit int) ([]Page, error)

	// UpsertLink records an edge or bumps its LastSeen.
	UpsertLink(ctx context.Context, toURL string, fromPageID int64, at time.Time) error

	// ReplaceTokenWeights atomically swaps the full token set of a page.
	ReplaceTokenWeights(ctx context.Context, pageID int64, weights map[string]float64) error
	// TokenTotal sums a token's weight over every page.
	TokenTotal(ctx context.Context, token string) (float64, error)
	TokenPostings(ctx context.Context, token string) ([]Posting, error)

	RecordSearch(ctx context.Context, record SearchRecord) error

	Stats(ctx context.Context) (Stats, error)
}

// Store is a Repository that can group operations into one unit of work.
type Store interface {
	Repository
	// InTx runs fn against a transactional Repository. Any error returned by
	// fn rolls back every write made through that Repository.
	InTx(ctx context.Context, fn func(Repository) error) error
	Close()
}
