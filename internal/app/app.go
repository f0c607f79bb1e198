// Package app builds the long-lived crawlsearch services from configuration and
// owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlsearch/internal/api"
	"github.com/JakeFAU/crawlsearch/internal/clock"
	"github.com/JakeFAU/crawlsearch/internal/config"
	"github.com/JakeFAU/crawlsearch/internal/crawler"
	collyfetcher "github.com/JakeFAU/crawlsearch/internal/fetcher/colly"
	"github.com/JakeFAU/crawlsearch/internal/frontier"
	"github.com/JakeFAU/crawlsearch/internal/index"
	"github.com/JakeFAU/crawlsearch/internal/linkgraph"
	"github.com/JakeFAU/crawlsearch/internal/logging"
	"github.com/JakeFAU/crawlsearch/internal/query"
	"github.com/JakeFAU/crawlsearch/internal/robots"
	"github.com/JakeFAU/crawlsearch/internal/scheduler"
	"github.com/JakeFAU/crawlsearch/internal/storage/memory"
	pgstore "github.com/JakeFAU/crawlsearch/internal/storage/postgres"
	"github.com/JakeFAU/crawlsearch/internal/store"
)

// App holds the wired services.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     clock.Clock
	store     store.Store
	frontier  *frontier.Frontier
	indexer   *index.Indexer
	crawler   *crawler.Crawler
	scheduler *scheduler.Scheduler
	query     *query.Engine
	api       *api.Server
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	store   store.Store
	clock   clock.Clock
	fetcher crawler.Fetcher
	robots  []robots.Option
}

// WithStore uses st instead of opening one from cfg.DB.
func WithStore(st store.Store) Option {
	return func(o *buildOptions) { o.store = st }
}

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(o *buildOptions) { o.clock = c }
}

// WithFetcher overrides the page fetcher.
func WithFetcher(f crawler.Fetcher) Option {
	return func(o *buildOptions) { o.fetcher = f }
}

// WithRobotsOptions passes extra options to the robots cache.
func WithRobotsOptions(opts ...robots.Option) Option {
	return func(o *buildOptions) { o.robots = append(o.robots, opts...) }
}

// Build wires every component from cfg.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := buildOptions{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}

	st := o.store
	if st == nil {
		var err error
		if st, err = openStore(ctx, cfg.DB, logger); err != nil {
			return nil, err
		}
	}

	a := &App{cfg: cfg, logger: logger, clock: o.clock, store: st}
	a.frontier = frontier.New(st,
		frontier.WithClock(o.clock),
		frontier.WithSampleSize(cfg.Crawler.SampleSize),
		frontier.WithLogger(logging.Component(logger, "frontier")),
	)
	a.indexer = index.New(st)

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:   cfg.Crawler.UserAgent,
			Timeout:     cfg.Crawler.FetchTimeout,
			MaxBodySize: cfg.Crawler.MaxBodyBytes,
		})
	}
	robotsOpts := append([]robots.Option{
		robots.WithTimeout(cfg.Crawler.RobotsTimeout),
		robots.WithLogger(logging.Component(logger, "robots")),
	}, o.robots...)

	a.crawler = crawler.New(crawler.Config{
		UserAgent:       cfg.Crawler.UserAgent,
		RawFormat:       cfg.Crawler.RawFormat,
		DropUnindexable: cfg.Crawler.DropUnindexable,
	}, crawler.Deps{
		Store:    st,
		Frontier: a.frontier,
		Robots:   robots.New(st, cfg.Crawler.UserAgent, robotsOpts...),
		Fetcher:  fetcher,
		Indexer:  a.indexer,
		Links:    linkgraph.NewIngester(a.frontier, o.clock, logging.Component(logger, "linkgraph")),
		Clock:    o.clock,
		Logger:   logging.Component(logger, "crawler"),
	})

	var reaper scheduler.Reaper
	if cfg.Crawler.StaleLockAfter > 0 {
		reaper = a.frontier
	}
	a.scheduler = scheduler.New(a.crawler, reaper, scheduler.Config{
		TickInterval:   cfg.Crawler.TickInterval,
		MaxInFlight:    cfg.Crawler.MaxInFlight,
		StaleLockAfter: cfg.Crawler.StaleLockAfter,
	}, logging.Component(logger, "scheduler"))

	a.query = query.New(st,
		query.WithMaxResults(cfg.Search.MaxResults),
		query.WithSnippetWords(cfg.Search.SnippetWords),
		query.WithClock(o.clock),
		query.WithLogger(logging.Component(logger, "query")),
	)
	a.api = api.NewServer(api.Deps{
		Search:   a.query,
		Frontier: a.frontier,
		Repo:     st,
	}, cfg.Auth, logging.Component(logger, "api"))

	return a, nil
}

func openStore(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (store.Store, error) {
	if cfg.DSN == "" {
		logger.Warn("db.dsn is empty; using in-memory store, state is lost on exit")
		return memory.New(), nil
	}
	st, err := pgstore.New(ctx, pgstore.Config{
		DSN:             cfg.DSN,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	logger.Info("Connected to Postgres")
	return st, nil
}

// Store exposes the configured store.
func (a *App) Store() store.Store { return a.store }

// Frontier exposes the crawl queue.
func (a *App) Frontier() *frontier.Frontier { return a.frontier }

// Query exposes the search engine.
func (a *App) Query() *query.Engine { return a.query }

// Enqueue seeds rawURL into the frontier at tier.
func (a *App) Enqueue(ctx context.Context, rawURL string, tier int) error {
	return a.frontier.Enqueue(ctx, rawURL, tier)
}

// Search runs a query against the index.
func (a *App) Search(ctx context.Context, text string) (query.Response, error) {
	return a.query.Search(ctx, text)
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.api.Handler() }

// Serve runs the scheduler and the HTTP server until ctx is canceled or a
// termination signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		a.logger.Info("Scheduler started", zap.Duration("tick", a.cfg.Crawler.TickInterval))
		a.scheduler.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	<-schedDone

	select {
	case err := <-srvErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Crawl runs attempts back to back until the frontier has nothing claimable
// or limit attempts have run (limit <= 0 means no limit).
func (a *App) Crawl(ctx context.Context, limit int) map[crawler.Outcome]int {
	counts := scheduler.Drain(ctx, a.crawler, limit)
	a.logger.Info("Crawl finished", zap.Any("outcomes", counts))
	return counts
}

// Migrate applies pending schema migrations. The in-memory store has none.
func (a *App) Migrate(ctx context.Context) (int, error) {
	pg, ok := a.store.(*pgstore.Store)
	if !ok {
		a.logger.Info("In-memory store needs no migrations")
		return 0, nil
	}
	applied, err := pg.Migrate(ctx)
	if err != nil {
		return applied, fmt.Errorf("migrate: %w", err)
	}
	a.logger.Info("Migrations applied", zap.Int("count", applied))
	return applied, nil
}

// Close releases the store and flushes the logger.
func (a *App) Close() {
	a.logger.Info("Shutting down application services")
	a.store.Close()
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
}
