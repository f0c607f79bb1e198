// Package query ranks indexed pages against free-text queries.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlsearch/internal/clock"
	"github.com/JakeFAU/crawlsearch/internal/metrics"
	"github.com/JakeFAU/crawlsearch/internal/store"
	"github.com/JakeFAU/crawlsearch/internal/tokenize"
)

// Defaults applied when the engine is built without explicit limits.
const (
	DefaultMaxResults   = 100
	DefaultSnippetWords = 60
)

// Result is one ranked page.
type Result struct {
	PageID    int64     `json:"-"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	Score     float64   `json:"score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Response is the outcome of one search.
type Response struct {
	Query   string
	Tokens  []string
	Results []Result
	Elapsed time.Duration
}

// Engine scores pages from the persisted token weights.
type Engine struct {
	repo         store.Repository
	clock        clock.Clock
	maxResults   int
	snippetWords int
	logger       *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMaxResults caps the number of returned results.
func WithMaxResults(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxResults = n
		}
	}
}

// WithSnippetWords sets the snippet window length in words.
func WithSnippetWords(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.snippetWords = n
		}
	}
}

// WithClock overrides the time source used for history timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New builds an Engine reading from repo.
func New(repo store.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:         repo,
		clock:        clock.New(),
		maxResults:   DefaultMaxResults,
		snippetWords: DefaultSnippetWords,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search tokenizes text and ranks pages by the sum, over query tokens, of the
// page's weight divided by the token's corpus-wide weight. Every call is
// written to search history, including empty and failed ones. An unusable
// query yields no results, never an error.
func (e *Engine) Search(ctx context.Context, text string) (Response, error) {
	began := time.Now()
	resp := Response{Query: text, Tokens: tokenize.Tokens(text)}

	results, err := e.rank(ctx, resp.Tokens)
	if err == nil {
		resp.Results = results
	}
	resp.Elapsed = time.Since(began)
	metrics.ObserveSearch(resp.Elapsed)

	record := store.SearchRecord{
		Query:       text,
		Timestamp:   e.clock.Now(),
		ResultCount: len(resp.Results),
		Elapsed:     resp.Elapsed,
	}
	if recErr := e.repo.RecordSearch(ctx, record); recErr != nil {
		e.logger.Error("Failed to record search", zap.String("query", text), zap.Error(recErr))
		err = errors.Join(err, fmt.Errorf("record search: %w", recErr))
	}
	if err != nil {
		return resp, err
	}
	e.logger.Debug("Search complete",
		zap.String("query", text),
		zap.Int("results", len(resp.Results)),
		zap.Duration("elapsed", resp.Elapsed),
	)
	return resp, nil
}

func (e *Engine) rank(ctx context.Context, tokens []string) ([]Result, error) {
	if len(tokens) == 0 {
		return []Result{}, nil
	}
	scores := make(map[int64]float64)
	for _, tok := range tokens {
		total, err := e.repo.TokenTotal(ctx, tok)
		if err != nil {
			return nil, fmt.Errorf("token total %q: %w", tok, err)
		}
		if total <= 0 {
			continue
		}
		postings, err := e.repo.TokenPostings(ctx, tok)
		if err != nil {
			return nil, fmt.Errorf("token postings %q: %w", tok, err)
		}
		for _, p := range postings {
			scores[p.PageID] += p.Weight / total
		}
	}

	ranked := make([]Result, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, Result{PageID: id, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score == ranked[j].Score {
			return ranked[i].PageID < ranked[j].PageID
		}
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > e.maxResults {
		ranked = ranked[:e.maxResults]
	}

	stems := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		stems[tok] = struct{}{}
	}
	out := ranked[:0]
	for _, r := range ranked {
		page, err := e.repo.GetPage(ctx, r.PageID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load page %d: %w", r.PageID, err)
		}
		r.URL = page.URL
		r.Title = page.Title
		r.UpdatedAt = page.UpdatedAt
		r.Snippet = Snippet(page.Text, stems, e.snippetWords)
		out = append(out, r)
	}
	return out, nil
}

// Snippet returns up to n words of text centred on the first word whose stem
// is in stems, or the leading words when none match.
func Snippet(text string, stems map[string]struct{}, n int) string {
	words := strings.Fields(text)
	if n <= 0 || len(words) == 0 {
		return ""
	}
	hit := -1
	for i, w := range words {
		for _, tok := range tokenize.Tokens(w) {
			if _, ok := stems[tok]; ok {
				hit = i
				break
			}
		}
		if hit >= 0 {
			break
		}
	}
	start := 0
	if hit > n/2 {
		start = hit - n/2
	}
	end := min(start+n, len(words))
	start = max(0, end-n)

	snippet := strings.Join(words[start:end], " ")
	if start > 0 {
		snippet = "... " + snippet
	}
	if end < len(words) {
		snippet += " ..."
	}
	return snippet
}
