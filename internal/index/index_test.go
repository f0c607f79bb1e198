package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlsearch/internal/storage/memory"
	"github.com/JakeFAU/crawlsearch/internal/store"
	"github.com/JakeFAU/crawlsearch/internal/tokenize"
)

func TestWeightsAreRelativeFrequencies(t *testing.T) {
	t.Parallel()

	w := Weights([]string{"fox", "dog", "fox", "cat"})
	require.InDelta(t, 0.5, w["fox"], 1e-12)
	require.InDelta(t, 0.25, w["dog"], 1e-12)
	require.InDelta(t, 0.25, w["cat"], 1e-12)
	require.Len(t, w, 3)

	require.Empty(t, Weights(nil))
}

func newPage(t *testing.T, st *memory.Store) int64 {
	t.Helper()
	ctx := context.Background()
	d, err := st.EnsureDomain(ctx, "example.com", 0)
	require.NoError(t, err)
	id, err := st.UpsertPage(ctx, store.Page{URL: "https://example.com/", DomainID: d.ID})
	require.NoError(t, err)
	return id
}

func TestIndexIsIdempotent(t *testing.T) {
	t.Parallel()

	st := memory.New()
	pageID := newPage(t, st)
	ix := New(st)
	ctx := context.Background()
	text := "The quick brown fox jumps over the lazy dog. The fox runs."

	require.NoError(t, ix.Index(ctx, pageID, text))
	first := st.TokenWeights(pageID)
	require.NoError(t, ix.Index(ctx, pageID, text))
	require.Equal(t, first, st.TokenWeights(pageID))

	var sum float64
	for _, w := range first {
		sum += w
	}
	require.InDelta(t, 1.0, sum, 1e-9)
	require.InDelta(t, 2.0/12.0, first[tokenize.Stem("fox")], 1e-12)
}

func TestReindexReplacesPriorTokens(t *testing.T) {
	t.Parallel()

	st := memory.New()
	pageID := newPage(t, st)
	ix := New(st)
	ctx := context.Background()

	require.NoError(t, ix.Index(ctx, pageID, "alpha beta"))
	require.NoError(t, ix.Index(ctx, pageID, "gamma"))
	require.Equal(t, map[string]float64{tokenize.Stem("gamma"): 1}, st.TokenWeights(pageID))

	require.NoError(t, ix.Index(ctx, pageID, "!!!"))
	require.Empty(t, st.TokenWeights(pageID))
}

func TestIndexUnknownPageFails(t *testing.T) {
	t.Parallel()

	err := New(memory.New()).Index(context.Background(), 42, "text")
	require.ErrorIs(t, err, store.ErrNotFound)
}
