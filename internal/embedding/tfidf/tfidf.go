// Package tfidf implements a local TF-IDF embedder that hashes terms into a
// fixed number of buckets so every vector has the same dimension.
package tfidf

import (
	"context"
	"errors"
	"hash/fnv"
	"math"

	"convsearch/internal/embedding"
	"convsearch/internal/tokenizer"
)

// Embedder implements a hashed TF-IDF vectorizer.
// Prepare computes smoothed IDF values per bucket from the corpus.
type Embedder struct {
	tokenizer *tokenizer.Tokenizer
	dimension int
	idf       []float64
	prepared  bool
}

// NewEmbedder creates an unprepared embedder producing vectors of size dimension.
func NewEmbedder(tok *tokenizer.Tokenizer, dimension int) *Embedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &Embedder{tokenizer: tok, dimension: dimension}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "tfidf" }

// Prepare computes bucket document frequencies and IDF values from the corpus.
func (e *Embedder) Prepare(corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("empty corpus for TF-IDF prepare")
	}
	df := make([]int, e.dimension)
	for _, text := range corpus {
		seen := make(map[int]struct{})
		for _, tok := range e.tokenizer.Tokenize(text) {
			b := e.bucket(tok)
			if _, ok := seen[b]; ok {
				continue
			}
			seen[b] = struct{}{}
			df[b]++
		}
	}
	e.idf = make([]float64, e.dimension)
	n := float64(len(corpus))
	for i := range df {
		// Smoothed IDF
		e.idf[i] = math.Log((1+n)/(1+float64(df[i]))) + 1.0
	}
	e.prepared = true
	return nil
}

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes unit-norm TF-IDF embeddings for a batch of texts.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !e.prepared {
		return nil, errors.New("tfidf embedder not prepared")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *Embedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dimension)
	tokens := e.tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		return vec
	}
	tf := make(map[int]int)
	for _, tok := range tokens {
		tf[e.bucket(tok)]++
	}
	total := float64(len(tokens))
	for idx, count := range tf {
		vec[idx] = float32(float64(count) / total * e.idf[idx])
	}
	return embedding.Normalize(vec)
}

func (e *Embedder) bucket(term string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return int(h.Sum32() % uint32(e.dimension))
}
