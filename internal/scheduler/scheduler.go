// Package scheduler drives crawl attempts from a fixed-rate tick.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlsearch/internal/crawler"
)

// Attempter runs one crawl attempt.
type Attempter interface {
	Attempt(ctx context.Context) (crawler.Outcome, error)
}

// Reaper clears frontier locks older than a cutoff.
type Reaper interface {
	ReapStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Config controls the tick loop.
type Config struct {
	TickInterval time.Duration
	// MaxInFlight caps concurrent attempts; ticks that find the cap reached
	// are skipped.
	MaxInFlight int
	// StaleLockAfter enables the reaper when positive.
	StaleLockAfter time.Duration
	// ReapInterval defaults to 60 ticks.
	ReapInterval time.Duration
}

// Scheduler launches one asynchronous attempt per tick.
type Scheduler struct {
	attempter Attempter
	reaper    Reaper
	cfg       Config
	slots     chan struct{}
	wg        sync.WaitGroup
	logger    *zap.Logger
}

// New creates a Scheduler. reaper may be nil.
func New(attempter Attempter, reaper Reaper, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 60 * cfg.TickInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		attempter: attempter,
		reaper:    reaper,
		cfg:       cfg,
		slots:     make(chan struct{}, cfg.MaxInFlight),
		logger:    logger,
	}
}

// Run ticks until ctx is done, then waits for in-flight attempts to return.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	var reap <-chan time.Time
	if s.reaper != nil && s.cfg.StaleLockAfter > 0 {
		reapTicker := time.NewTicker(s.cfg.ReapInterval)
		defer reapTicker.Stop()
		reap = reapTicker.C
	}

	s.logger.Info("Scheduler started",
		zap.Duration("tick_interval", s.cfg.TickInterval),
		zap.Int("max_in_flight", s.cfg.MaxInFlight),
	)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		case <-reap:
			if _, err := s.reaper.ReapStale(ctx, s.cfg.StaleLockAfter); err != nil {
				s.logger.Error("Stale lock reaper failed", zap.Error(err))
			}
		}
	}
}

// Tick launches one attempt unless MaxInFlight attempts are already running.
// It reports whether an attempt was launched.
func (s *Scheduler) Tick(ctx context.Context) bool {
	select {
	case s.slots <- struct{}{}:
	default:
		s.logger.Debug("Skipping tick; crawl capacity reached")
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.slots }()
		outcome, err := s.attempter.Attempt(ctx)
		if err != nil {
			s.logger.Debug("Crawl attempt returned error", zap.String("outcome", string(outcome)), zap.Error(err))
		}
	}()
	return true
}

// Wait blocks until every launched attempt has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Drain runs attempts back to back until the frontier is idle, ctx ends, or
// limit attempts have run (limit <= 0 means no limit). Failed attempts are
// counted, not returned.
func Drain(ctx context.Context, attempter Attempter, limit int) map[crawler.Outcome]int {
	counts := make(map[crawler.Outcome]int)
	for n := 0; limit <= 0 || n < limit; n++ {
		if ctx.Err() != nil {
			break
		}
		outcome, _ := attempter.Attempt(ctx)
		counts[outcome]++
		if outcome == crawler.OutcomeIdle {
			break
		}
	}
	return counts
}
