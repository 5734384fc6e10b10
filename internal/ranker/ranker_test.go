package ranker

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convsearch/internal/domain"
	"convsearch/internal/embedding"
	"convsearch/internal/index"
	"convsearch/internal/tokenizer"
)

// keywordEmbedder places a text on two axes by the words "alpha" and "beta".
type keywordEmbedder struct{ calls atomic.Int32 }

func (e *keywordEmbedder) Name() string           { return "keyword" }
func (e *keywordEmbedder) Prepare([]string) error { return nil }
func (e *keywordEmbedder) Dimension() int         { return 2 }
func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := []float32{0, 0}
		if strings.Contains(t, "alpha") {
			v[0] = 1
		}
		if strings.Contains(t, "beta") {
			v[1] = 1
		}
		out[i] = embedding.Normalize(v)
	}
	return out, nil
}

func newRanker(t *testing.T, lexicalOnly bool) (*Ranker, *keywordEmbedder) {
	t.Helper()
	tok, err := tokenizer.New("english", nil)
	require.NoError(t, err)
	emb := &keywordEmbedder{}
	docs := []domain.Document{
		{ID: "a", Text: "alpha alpha"},
		{ID: "b", Text: "beta"},
		{ID: "c", Text: "alpha beta gamma"},
	}
	opts := index.BuildOptions{Tokenizer: tok, Embedder: emb, LexicalOnly: lexicalOnly}
	if lexicalOnly {
		opts.Embedder = nil
	}
	idx, err := index.Build(context.Background(), docs, opts)
	require.NoError(t, err)
	if lexicalOnly {
		return New(idx, nil, Options{}), emb
	}
	return New(idx, emb, Options{}), emb
}

func hitIDs(hits []domain.RankedHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []float64{1.0, 0.5, 0.0}, Normalize([]float64{9, 5, 1}))
	assert.Equal(t, []float64{0, 0, 0}, Normalize([]float64{4, 4, 4}))
	assert.Equal(t, []float64{0}, Normalize([]float64{7}))
	assert.Nil(t, Normalize(nil))
}

func TestAligned_SubstitutesModalityMinimum(t *testing.T) {
	hits := []domain.RankedHit{{ID: "x", Score: 5}, {ID: "y", Score: 3}}
	assert.Equal(t, []float64{5, 3, 3}, aligned([]string{"x", "y", "z"}, hits))
	assert.Nil(t, aligned([]string{"x"}, nil))
}

func TestHybridSearch_Fusion(t *testing.T) {
	r, _ := newRanker(t, false)
	ctx := context.Background()

	hits, err := r.HybridSearch(ctx, "beta", 3, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, hitIDs(hits))
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-9)

	// pure semantic: "alpha" ranks a (1.0) over c (0.707) over b (0)
	hits, err = r.HybridSearch(ctx, "alpha", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, hitIDs(hits))
}

func TestHybridSearch_Deterministic(t *testing.T) {
	r, _ := newRanker(t, false)
	ctx := context.Background()
	first, err := r.HybridSearch(ctx, "gamma beta", 3, 0.3)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.HybridSearch(ctx, "gamma beta", 3, 0.3)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestHybridSearch_LexicalOnly(t *testing.T) {
	r, _ := newRanker(t, true)
	ctx := context.Background()
	assert.True(t, r.LexicalOnly())

	_, err := r.SearchSemantic(ctx, "beta", 2)
	assert.ErrorIs(t, err, domain.ErrIndexNotLoaded)

	hits, err := r.HybridSearch(ctx, "beta", 3, 0.2)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "b", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-9)
}

func TestHybridSearch_TiedScoresDegenerate(t *testing.T) {
	r, _ := newRanker(t, true)
	hits, err := r.HybridSearch(context.Background(), "zebra", 3, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, hitIDs(hits))
	for _, h := range hits {
		assert.Zero(t, h.Score)
	}
}

func TestHybridSearch_Errors(t *testing.T) {
	r, _ := newRanker(t, false)
	_, err := r.HybridSearch(context.Background(), "", 3, 0.5)
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
	_, err = r.HybridSearch(context.Background(), "beta", 3, 1.5)
	assert.Error(t, err)

	var empty Ranker
	_, err = empty.SearchLexical(context.Background(), "beta", 3)
	assert.ErrorIs(t, err, domain.ErrIndexNotLoaded)
}

func TestSearchSemantic_CachesQueryEmbedding(t *testing.T) {
	r, emb := newRanker(t, false)
	before := emb.calls.Load()
	for i := 0; i < 3; i++ {
		_, err := r.SearchSemantic(context.Background(), "alpha", 1)
		require.NoError(t, err)
	}
	assert.Equal(t, before+1, emb.calls.Load())
}
