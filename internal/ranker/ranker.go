// Package ranker fuses lexical and semantic scores into a single ranking.
package ranker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"convsearch/internal/domain"
	"convsearch/internal/index"
)

// DefaultFactor is the per-modality over-fetch multiplier for hybrid search.
const DefaultFactor = 2

// Options configures a Ranker.
type Options struct {
	Factor   int
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// Ranker answers queries against an immutable index. It keeps no per-query
// state other than a cache of query embeddings, so it may be shared by
// concurrent sessions.
type Ranker struct {
	idx      *index.Index
	embedder domain.Embedder
	factor   int
	vecCache *cache.Cache
	logger   *zap.Logger
}

// New creates a ranker. embedder may be nil for a lexical-only index.
func New(idx *index.Index, embedder domain.Embedder, opts Options) *Ranker {
	if opts.Factor < 1 {
		opts.Factor = DefaultFactor
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Ranker{
		idx:      idx,
		embedder: embedder,
		factor:   opts.Factor,
		vecCache: cache.New(opts.CacheTTL, 2*opts.CacheTTL),
		logger:   opts.Logger,
	}
}

// Size returns the number of documents in the underlying index.
func (r *Ranker) Size() int {
	if r.idx == nil {
		return 0
	}
	return r.idx.Size()
}

// LexicalOnly reports whether semantic search is unavailable.
func (r *Ranker) LexicalOnly() bool {
	return r.idx == nil || r.idx.LexicalOnly() || r.embedder == nil
}

// Get returns an indexed document by id.
func (r *Ranker) Get(id string) (domain.Document, bool) {
	if r.idx == nil {
		return domain.Document{}, false
	}
	return r.idx.Get(id)
}

// SearchLexical returns up to k hits by BM25 score.
func (r *Ranker) SearchLexical(_ context.Context, query string, k int) ([]domain.RankedHit, error) {
	if r.idx == nil {
		return nil, domain.ErrIndexNotLoaded
	}
	return r.idx.SearchLexical(query, k)
}

// SearchSemantic returns up to k hits by cosine similarity to the query embedding.
func (r *Ranker) SearchSemantic(ctx context.Context, query string, k int) ([]domain.RankedHit, error) {
	if r.LexicalOnly() {
		return nil, domain.ErrIndexNotLoaded
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	vec, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.idx.SearchVector(vec, k)
}

func (r *Ranker) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if v, ok := r.vecCache.Get(query); ok {
		return v.([]float32), nil
	}
	out, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("embed query: %w: got %d vectors", domain.ErrServiceError, len(out))
	}
	r.vecCache.SetDefault(query, out[0])
	return out[0], nil
}

// HybridSearch fuses both modalities: each fetches k*factor hits, scores are
// min-max normalised per modality, and an id missing from one modality takes
// that modality's minimum observed score. The result is
// w*lexical + (1-w)*semantic, sorted descending with ties by ascending id.
// A lexical-only ranker ranks by the normalised lexical score alone.
func (r *Ranker) HybridSearch(ctx context.Context, query string, k int, w float64) ([]domain.RankedHit, error) {
	if k <= 0 {
		return nil, nil
	}
	if w < 0 || w > 1 {
		return nil, fmt.Errorf("hybrid weight %v outside [0,1]", w)
	}
	fetch := k * r.factor
	lex, err := r.SearchLexical(ctx, query, fetch)
	if err != nil {
		return nil, err
	}
	var sem []domain.RankedHit
	if !r.LexicalOnly() {
		if sem, err = r.SearchSemantic(ctx, query, fetch); err != nil {
			return nil, err
		}
	} else {
		w = 1
	}

	texts := make(map[string]string, len(lex)+len(sem))
	var union []string
	for _, hits := range [][]domain.RankedHit{lex, sem} {
		for _, h := range hits {
			if _, seen := texts[h.ID]; !seen {
				texts[h.ID] = h.Text
				union = append(union, h.ID)
			}
		}
	}
	lexNorm := Normalize(aligned(union, lex))
	semNorm := Normalize(aligned(union, sem))

	out := make([]domain.RankedHit, len(union))
	for i, id := range union {
		s := w * lexNorm[i]
		if semNorm != nil {
			s += (1 - w) * semNorm[i]
		}
		out[i] = domain.RankedHit{ID: id, Text: texts[id], Score: s}
	}
	SortHits(out)
	if len(out) > k {
		out = out[:k]
	}
	r.logger.Debug("hybrid search",
		zap.String("query", query),
		zap.Int("lexical", len(lex)),
		zap.Int("semantic", len(sem)),
		zap.Int("returned", len(out)),
	)
	return out, nil
}

// aligned returns the modality's scores in union order, substituting the
// modality's minimum for ids it did not return. Nil if the modality is empty.
func aligned(union []string, hits []domain.RankedHit) []float64 {
	if len(hits) == 0 {
		return nil
	}
	byID := make(map[string]float64, len(hits))
	lo := hits[0].Score
	for _, h := range hits {
		byID[h.ID] = h.Score
		if h.Score < lo {
			lo = h.Score
		}
	}
	out := make([]float64, len(union))
	for i, id := range union {
		if s, ok := byID[id]; ok {
			out[i] = s
		} else {
			out[i] = lo
		}
	}
	return out
}

// Normalize maps scores linearly onto [0,1]. If every score is equal,
// including the single-score case, every result is 0.
func Normalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = min(lo, s)
		hi = max(hi, s)
	}
	out := make([]float64, len(scores))
	if hi == lo {
		return out
	}
	for i, s := range scores {
		out[i] = (s - lo) / (hi - lo)
	}
	return out
}

// SortHits orders hits by descending score, then ascending id.
func SortHits(hits []domain.RankedHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
