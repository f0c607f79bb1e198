// Package robots fetches, persists, and evaluates per-domain robots.txt policies.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/crawlsearch/internal/metrics"
	"github.com/JakeFAU/crawlsearch/internal/store"
)

const maxRobotsBytes = 1 << 20

// ParseCache memoizes parsed policies keyed by the exact robots.txt text, so
// domains that serve identical files share one parsed value. Safe for
// concurrent use; entries are never mutated after insertion.
type ParseCache struct {
	entries sync.Map
}

// NewParseCache returns an empty ParseCache.
func NewParseCache() *ParseCache {
	return &ParseCache{}
}

// Parse returns the parsed form of text, parsing it at most once per process.
func (c *ParseCache) Parse(text string) (*robotstxt.RobotsData, error) {
	if data, ok := c.entries.Load(text); ok {
		cached, assertOK := data.(*robotstxt.RobotsData)
		if !assertOK {
			return nil, fmt.Errorf("robots cache type mismatch: %T", data)
		}
		return cached, nil
	}
	data, err := robotstxt.FromString(text)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	actual, _ := c.entries.LoadOrStore(text, data)
	return actual.(*robotstxt.RobotsData), nil
}

// Len reports the number of distinct cached policies.
func (c *ParseCache) Len() int {
	n := 0
	c.entries.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// Policy is an evaluated robots policy. The zero value allows everything.
type Policy struct {
	data *robotstxt.RobotsData
}

// IsAllowed reports whether userAgent may fetch rawURL. Rules match against
// the path and query.
func (p Policy) IsAllowed(rawURL, userAgent string) bool {
	if p.data == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return p.data.TestAgent(u.RequestURI(), userAgent)
}

// PolicyWriter persists the robots text of a domain.
type PolicyWriter interface {
	SetRobotsPolicy(ctx context.Context, domainID int64, policy string) error
}

// Cache resolves a Domain's policy, fetching robots.txt the first time the
// domain is crawled and persisting the result on the domain row.
type Cache struct {
	repo      PolicyWriter
	client    *http.Client
	parsed    *ParseCache
	userAgent string
	scheme    string
	timeout   time.Duration
	logger    *zap.Logger

	// probes collapses concurrent first fetches for one hostname.
	probes singleflight.Group
}

// Option customizes a Cache.
type Option func(*Cache)

// WithHTTPClient overrides the client used for robots.txt requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) {
		if client != nil {
			c.client = client
		}
	}
}

// WithScheme overrides the scheme used to build robots.txt URLs.
func WithScheme(scheme string) Option {
	return func(c *Cache) {
		if scheme != "" {
			c.scheme = scheme
		}
	}
}

// WithTimeout bounds each robots.txt request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Cache) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithParseCache shares a parse cache between Cache instances.
func WithParseCache(parsed *ParseCache) Option {
	return func(c *Cache) {
		if parsed != nil {
			c.parsed = parsed
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a Cache that persists through repo.
func New(repo PolicyWriter, userAgent string, opts ...Option) *Cache {
	c := &Cache{
		repo:      repo,
		client:    &http.Client{},
		parsed:    NewParseCache(),
		userAgent: userAgent,
		scheme:    "https",
		timeout:   5 * time.Second,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetPolicy returns the policy for domain. Only a persistence failure is
// returned as an error; fetch and parse problems degrade to allow-all.
func (c *Cache) GetPolicy(ctx context.Context, domain store.Domain) (Policy, error) {
	if domain.RobotsPolicy != nil {
		return c.policyFromText(domain.Hostname, *domain.RobotsPolicy), nil
	}

	v, err, _ := c.probes.Do(domain.Hostname, func() (any, error) {
		text := c.fetch(ctx, domain.Hostname)
		if err := c.repo.SetRobotsPolicy(ctx, domain.ID, text); err != nil {
			return nil, fmt.Errorf("persist robots policy for %s: %w", domain.Hostname, err)
		}
		return text, nil
	})
	if err != nil {
		return Policy{}, err
	}
	text, _ := v.(string)
	return c.policyFromText(domain.Hostname, text), nil
}

// fetch returns the robots.txt body, or store.NoRobotsPolicy for anything
// other than a readable 200 response.
func (c *Cache) fetch(ctx context.Context, hostname string) string {
	robotsURL := (&url.URL{Scheme: c.scheme, Host: hostname, Path: "/robots.txt"}).String()
	logger := c.logger.With(zap.String("url", robotsURL))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		logger.Warn("Failed to build robots request", zap.Error(err))
		metrics.ObserveRobots("none")
		return store.NoRobotsPolicy
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		logger.Info("robots.txt unavailable", zap.Error(err))
		metrics.ObserveRobots("none")
		return store.NoRobotsPolicy
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Debug("Failed to close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		logger.Info("robots.txt not served", zap.Int("status", resp.StatusCode))
		metrics.ObserveRobots("none")
		return store.NoRobotsPolicy
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		logger.Info("Failed to read robots.txt", zap.Error(err))
		metrics.ObserveRobots("none")
		return store.NoRobotsPolicy
	}
	metrics.ObserveRobots("found")
	return string(body)
}

func (c *Cache) policyFromText(hostname, text string) Policy {
	if text == store.NoRobotsPolicy {
		return Policy{}
	}
	data, err := c.parsed.Parse(text)
	if err != nil {
		c.logger.Warn("Unparseable robots.txt; allowing access", zap.String("domain", hostname), zap.Error(err))
		return Policy{}
	}
	return Policy{data: data}
}
