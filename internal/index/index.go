// Package index maintains the inverted index: per page, each distinct stemmed
// token's share of the page's tokens.
package index

import (
	"context"
	"fmt"

	"github.com/JakeFAU/crawlsearch/internal/store"
	"github.com/JakeFAU/crawlsearch/internal/tokenize"
)

// Weights maps each distinct token to occurrences / len(tokens).
func Weights(tokens []string) map[string]float64 {
	weights := make(map[string]float64)
	if len(tokens) == 0 {
		return weights
	}
	counts := make(map[string]int)
	for _, tok := range tokens {
		counts[tok]++
	}
	total := float64(len(tokens))
	for tok, n := range counts {
		weights[tok] = float64(n) / total
	}
	return weights
}

// Indexer writes token weights for pages.
type Indexer struct {
	store store.Store
}

// New builds an Indexer.
func New(st store.Store) *Indexer {
	return &Indexer{store: st}
}

// Index tokenizes text and atomically replaces the page's token weights.
func (ix *Indexer) Index(ctx context.Context, pageID int64, text string) error {
	return ix.store.InTx(ctx, func(repo store.Repository) error {
		return ix.IndexWith(ctx, repo, pageID, text)
	})
}

// IndexWith is Index inside an existing unit of work.
func (ix *Indexer) IndexWith(ctx context.Context, repo store.Repository, pageID int64, text string) error {
	if err := repo.ReplaceTokenWeights(ctx, pageID, Weights(tokenize.Tokens(text))); err != nil {
		return fmt.Errorf("replace token weights for page %d: %w", pageID, err)
	}
	return nil
}
