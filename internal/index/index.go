// Package index builds, persists and queries the lexical and vector
// structures over a document corpus. A built Index is immutable and safe
// for concurrent readers.
package index

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"convsearch/internal/domain"
	"convsearch/internal/tokenizer"
)

// BuildOptions configures Build.
type BuildOptions struct {
	Tokenizer *tokenizer.Tokenizer
	// K1 <= 0 selects DefaultK1.
	K1 float64
	// B is a pointer because 0 is a valid setting that disables length
	// normalisation; nil selects DefaultB.
	B *float64
	// Embedder is required unless LexicalOnly is set.
	Embedder    domain.Embedder
	LexicalOnly bool
	BatchSize   int
	Workers     int
	Logger      *zap.Logger
}

func (o *BuildOptions) applyDefaults() {
	if o.K1 <= 0 {
		o.K1 = DefaultK1
	}
	if o.B == nil || *o.B < 0 || *o.B > 1 {
		b := DefaultB
		o.B = &b
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 32
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Index maps document ids to documents and holds the per-modality ranking
// structures. The vector sub-index is nil in lexical-only mode.
type Index struct {
	docs     []domain.Document
	byID     map[string]int
	tok      *tokenizer.Tokenizer
	lex      *lexical
	vec      *vectors
	manifest Manifest
}

// Build tokenizes and embeds the corpus in parallel batches.
func Build(ctx context.Context, docs []domain.Document, opts BuildOptions) (*Index, error) {
	opts.applyDefaults()
	if len(docs) == 0 {
		return nil, domain.ErrEmptyCorpus
	}
	if opts.Tokenizer == nil {
		return nil, fmt.Errorf("index: tokenizer is required")
	}
	if !opts.LexicalOnly && opts.Embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	byID := make(map[string]int, len(docs))
	texts := make([]string, len(docs))
	for i, d := range docs {
		if strings.TrimSpace(d.ID) == "" || strings.TrimSpace(d.Text) == "" {
			return nil, fmt.Errorf("%w: document %d has empty id or text", domain.ErrInvalidDocument, i)
		}
		if _, dup := byID[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", domain.ErrInvalidDocument, d.ID)
		}
		byID[d.ID] = i
		texts[i] = d.Text
	}
	start := time.Now()

	terms := make([][]string, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for lo := 0; lo < len(texts); lo += opts.BatchSize {
		lo, hi := lo, min(lo+opts.BatchSize, len(texts))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				terms[i] = opts.Tokenizer.Tokenize(texts[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	idx := &Index{
		docs: append([]domain.Document(nil), docs...),
		byID: byID,
		tok:  opts.Tokenizer,
		lex:  buildLexical(terms, opts.K1, *opts.B),
	}

	var embedderName string
	var dimension int
	if !opts.LexicalOnly {
		vec, err := embedCorpus(ctx, texts, opts)
		if err != nil {
			return nil, err
		}
		idx.vec = vec
		embedderName = opts.Embedder.Name()
		dimension = vec.dimension
	}

	idx.manifest = Manifest{
		Version:     ManifestVersion,
		CreatedAt:   time.Now().UTC(),
		DocCount:    len(docs),
		Dimension:   dimension,
		K1:          opts.K1,
		B:           *opts.B,
		Language:    opts.Tokenizer.Language(),
		Embedder:    embedderName,
		LexicalOnly: opts.LexicalOnly,
	}
	idx.manifest.Fingerprint = Fingerprint(docs, idx.manifest.params(opts.Tokenizer.Stopwords()))

	opts.Logger.Info("index built",
		zap.Int("docs", len(docs)),
		zap.Int("terms", len(idx.lex.Postings)),
		zap.Bool("lexical_only", opts.LexicalOnly),
		zap.Duration("took", time.Since(start)),
	)
	return idx, nil
}

func embedCorpus(ctx context.Context, texts []string, opts BuildOptions) (*vectors, error) {
	if err := opts.Embedder.Prepare(texts); err != nil {
		return nil, fmt.Errorf("%w: prepare: %w", domain.ErrEmbeddingUnavailable, err)
	}
	rows := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for lo := 0; lo < len(texts); lo += opts.BatchSize {
		lo, hi := lo, min(lo+opts.BatchSize, len(texts))
		g.Go(func() error {
			out, err := opts.Embedder.Embed(gctx, texts[lo:hi])
			if err != nil {
				return err
			}
			if len(out) != hi-lo {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(out), hi-lo)
			}
			copy(rows[lo:hi], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	vec, err := newVectors(opts.Embedder.Dimension(), rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	return vec, nil
}

// Size returns the number of indexed documents.
func (i *Index) Size() int { return len(i.docs) }

// Get returns the document with the given id.
func (i *Index) Get(id string) (domain.Document, bool) {
	pos, ok := i.byID[id]
	if !ok {
		return domain.Document{}, false
	}
	return i.docs[pos], true
}

// IDs returns all document ids in corpus order.
func (i *Index) IDs() []string {
	out := make([]string, len(i.docs))
	for n, d := range i.docs {
		out[n] = d.ID
	}
	return out
}

// Docs returns a copy of the indexed corpus in order.
func (i *Index) Docs() []domain.Document { return append([]domain.Document(nil), i.docs...) }

// Texts returns the document texts in corpus order.
func (i *Index) Texts() []string {
	out := make([]string, len(i.docs))
	for n, d := range i.docs {
		out[n] = d.Text
	}
	return out
}

// Fingerprint identifies the corpus and configuration this index was built from.
func (i *Index) Fingerprint() string { return i.manifest.Fingerprint }

// Manifest returns the build metadata.
func (i *Index) Manifest() Manifest { return i.manifest }

// LexicalOnly reports whether the vector sub-index was omitted.
func (i *Index) LexicalOnly() bool { return i.vec == nil }

// Tokenizer returns the tokenizer used to build the lexical statistics.
func (i *Index) Tokenizer() *tokenizer.Tokenizer { return i.tok }

// SearchLexical returns up to k hits by descending BM25 score. Documents
// sharing no term with the query are still returned with a zero score.
func (i *Index) SearchLexical(query string, k int) ([]domain.RankedHit, error) {
	if i == nil || i.lex == nil {
		return nil, domain.ErrIndexNotLoaded
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	return i.top(i.lex.scores(i.tok.Tokenize(query)), k), nil
}

// SearchVector returns up to k hits by descending inner product with q.
func (i *Index) SearchVector(q []float32, k int) ([]domain.RankedHit, error) {
	if i == nil || i.vec == nil {
		return nil, domain.ErrIndexNotLoaded
	}
	return i.top(i.vec.scores(q), k), nil
}

// top sorts by descending score, breaking ties by ascending id.
func (i *Index) top(scores []float64, k int) []domain.RankedHit {
	if k <= 0 {
		return nil
	}
	order := make([]int, len(scores))
	for n := range order {
		order[n] = n
	}
	sort.Slice(order, func(a, b int) bool {
		sa, sb := scores[order[a]], scores[order[b]]
		if sa != sb {
			return sa > sb
		}
		return i.docs[order[a]].ID < i.docs[order[b]].ID
	})
	if k > len(order) {
		k = len(order)
	}
	hits := make([]domain.RankedHit, k)
	for n := 0; n < k; n++ {
		d := i.docs[order[n]]
		hits[n] = domain.RankedHit{ID: d.ID, Text: d.Text, Score: scores[order[n]]}
	}
	return hits
}
