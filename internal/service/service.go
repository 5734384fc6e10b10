// Package service assembles the index, embedder and ranker from
// configuration and keeps the persisted index in step with the corpus.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"convsearch/internal/config"
	"convsearch/internal/domain"
	"convsearch/internal/embedding/openai"
	"convsearch/internal/embedding/tfidf"
	"convsearch/internal/index"
	"convsearch/internal/llm"
	"convsearch/internal/ranker"
	"convsearch/internal/tokenizer"
)

// Mode selects which ranking Search uses.
type Mode string

const (
	ModeLexical  Mode = "lexical"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// Option customises a Service.
type Option func(*Service)

// WithEmbedder replaces the configured embedder.
func WithEmbedder(e domain.Embedder) Option { return func(s *Service) { s.embedder = e } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

// Service owns the loaded index and the ranker over it. BuildOrLoad must not
// run concurrently with itself; the ranker it exposes may be shared freely.
type Service struct {
	cfg      *config.AppConfig
	tok      *tokenizer.Tokenizer
	embedder domain.Embedder
	logger   *zap.Logger

	idx    *index.Index
	ranker *ranker.Ranker
}

// New creates a service from cfg. No index is loaded until BuildOrLoad.
func New(cfg *config.AppConfig, opts ...Option) (*Service, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	tok, err := tokenizer.New(cfg.Index.Language, cfg.Index.Stopwords)
	if err != nil {
		return nil, err
	}
	s := &Service{cfg: cfg, tok: tok, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	if s.embedder == nil && !cfg.Index.LexicalOnly {
		if s.embedder, err = NewEmbedder(cfg.Embedder, tok, s.logger); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewEmbedder builds the embedder selected by cfg.
func NewEmbedder(cfg config.EmbedderConfig, tok *tokenizer.Tokenizer, logger *zap.Logger) (domain.Embedder, error) {
	switch cfg.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(tok, cfg.Dimension), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Dimension:  cfg.Dimension,
			Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			MaxRetries: cfg.OpenAI.MaxRetries,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

// NewGenerator builds the text generator selected by cfg.
func NewGenerator(cfg config.GeneratorConfig, logger *zap.Logger) (domain.Generator, error) {
	switch cfg.Type {
	case "openai", "":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai generator config missing")
		}
		return llm.NewOpenAI(llm.Config{
			BaseURL:     cfg.OpenAI.BaseURL,
			APIKeyEnv:   cfg.OpenAI.APIKeyEnv,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Timeout:     time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			Logger:      logger,
		})
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}

// NewAssistant wraps gen with the prompt settings from cfg.
func NewAssistant(gen domain.Generator, cfg config.GeneratorConfig, logger *zap.Logger) *llm.Assistant {
	return llm.NewAssistant(gen, llm.AssistantOptions{
		PromptHits:   cfg.PromptHits,
		SnippetRunes: cfg.SnippetRunes,
		Logger:       logger,
	})
}

func (s *Service) fingerprintParams(lexicalOnly bool) index.FingerprintParams {
	p := index.FingerprintParams{
		K1:          s.cfg.Index.K1,
		B:           s.cfg.Index.B,
		Language:    s.tok.Language(),
		Stopwords:   s.tok.Stopwords(),
		LexicalOnly: lexicalOnly,
	}
	if !lexicalOnly {
		p.Embedder = s.embedder.Name()
		p.Dimension = s.embedder.Dimension()
	}
	return p
}

// BuildOrLoad makes the index for docs available. A persisted index whose
// fingerprint matches is loaded; a missing or stale one is rebuilt and
// saved, as is any index when force is set. Embedding failures during a
// rebuild fall back to a lexical-only index when the configuration allows it.
func (s *Service) BuildOrLoad(ctx context.Context, docs []domain.Document, force bool) (*index.Index, error) {
	lexicalOnly := s.cfg.Index.LexicalOnly || s.embedder == nil
	want := index.Fingerprint(docs, s.fingerprintParams(lexicalOnly))
	dir := s.cfg.Index.Dir

	if !force {
		idx, err := index.Load(dir, want)
		switch {
		case err == nil:
			if err := s.attach(idx); err != nil {
				return nil, err
			}
			s.logger.Info("index loaded", zap.String("dir", dir), zap.Int("docs", idx.Size()))
			return idx, nil
		case errors.Is(err, domain.ErrIndexNotFound), errors.Is(err, domain.ErrStaleIndex):
			s.logger.Info("rebuilding index", zap.String("dir", dir), zap.String("reason", err.Error()))
		default:
			return nil, err
		}
	}

	b := s.cfg.Index.B
	opts := index.BuildOptions{
		Tokenizer:   s.tok,
		K1:          s.cfg.Index.K1,
		B:           &b,
		Embedder:    s.embedder,
		LexicalOnly: lexicalOnly,
		BatchSize:   s.cfg.Index.BatchSize,
		Workers:     s.cfg.Index.Workers,
		Logger:      s.logger,
	}
	idx, err := index.Build(ctx, docs, opts)
	if errors.Is(err, domain.ErrEmbeddingUnavailable) && !lexicalOnly && s.cfg.Index.LexicalFallback {
		s.logger.Warn("embedding unavailable, building lexical-only index", zap.Error(err))
		opts.LexicalOnly = true
		opts.Embedder = nil
		idx, err = index.Build(ctx, docs, opts)
	}
	if err != nil {
		return nil, err
	}
	if err := idx.Save(dir); err != nil {
		return nil, err
	}
	if err := s.attach(idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// attach installs idx behind a fresh ranker. A loaded vector index needs its
// embedder primed with the corpus so queries land in the same space.
func (s *Service) attach(idx *index.Index) error {
	var emb domain.Embedder
	if !idx.LexicalOnly() {
		emb = s.embedder
		if err := emb.Prepare(idx.Texts()); err != nil {
			return fmt.Errorf("%w: prepare: %w", domain.ErrEmbeddingUnavailable, err)
		}
	}
	s.idx = idx
	s.ranker = ranker.New(idx, emb, ranker.Options{Factor: s.cfg.Session.SemKFactor, Logger: s.logger})
	return nil
}

// Index returns the loaded index, or nil before BuildOrLoad.
func (s *Service) Index() *index.Index { return s.idx }

// Ranker returns the ranker over the loaded index, or nil before BuildOrLoad.
func (s *Service) Ranker() *ranker.Ranker { return s.ranker }

// Get looks up a document by id.
func (s *Service) Get(id string) (domain.Document, bool) {
	if s.idx == nil {
		return domain.Document{}, false
	}
	return s.idx.Get(id)
}

// Search runs a one-shot ranked retrieval in the given mode.
func (s *Service) Search(ctx context.Context, mode Mode, query string, k int, w float64) ([]domain.RankedHit, error) {
	if s.ranker == nil {
		return nil, domain.ErrIndexNotLoaded
	}
	switch mode {
	case ModeLexical:
		return s.ranker.SearchLexical(ctx, query, k)
	case ModeSemantic:
		return s.ranker.SearchSemantic(ctx, query, k)
	case ModeHybrid, "":
		return s.ranker.HybridSearch(ctx, query, k, w)
	default:
		return nil, fmt.Errorf("unknown search mode %q", mode)
	}
}
