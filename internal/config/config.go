package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"convsearch/internal/embedding/openai"
	"convsearch/internal/logging"
	"convsearch/internal/session"
)

// IndexConfig controls how the corpus is indexed and where artifacts live.
type IndexConfig struct {
	Dir       string   `yaml:"dir"`
	Corpus    string   `yaml:"corpus"`
	K1        float64  `yaml:"k1"`
	B         float64  `yaml:"b"`
	Language  string   `yaml:"language"`
	Stopwords []string `yaml:"stopwords,omitempty"`
	BatchSize int      `yaml:"batch_size"`
	Workers   int      `yaml:"workers"`
	// LexicalOnly skips the vector sub-index entirely.
	LexicalOnly bool `yaml:"lexical_only"`
	// LexicalFallback builds a lexical-only index when embedding fails.
	LexicalFallback bool `yaml:"lexical_fallback"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// OpenAIGeneratorConfig configures the chat-completions client.
type OpenAIGeneratorConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// GeneratorConfig selects the text generator and shapes its prompts.
type GeneratorConfig struct {
	Type         string                 `yaml:"type"`
	PromptHits   int                    `yaml:"prompt_hits"`
	SnippetRunes int                    `yaml:"snippet_runes"`
	OpenAI       *OpenAIGeneratorConfig `yaml:"openai,omitempty"`
}

// SessionConfig holds the conversation parameters.
type SessionConfig struct {
	MaxTurns              int     `yaml:"max_turns"`
	TopK                  int     `yaml:"top_k"`
	Threshold             float64 `yaml:"threshold"`
	NRec                  int     `yaml:"n_rec"`
	HybridWeight          float64 `yaml:"hybrid_weight"`
	SemKFactor            int     `yaml:"sem_k_factor"`
	Retries               int     `yaml:"retries"`
	RetryInitialMs        int     `yaml:"retry_initial_ms"`
	ActorTimeoutSecs      int     `yaml:"actor_timeout_secs"`
	GenerationTimeoutSecs int     `yaml:"generation_timeout_secs"`
	SearchTimeoutSecs     int     `yaml:"search_timeout_secs"`
	// SummaryHits is how many top hits a final summary covers.
	SummaryHits int `yaml:"summary_hits"`
}

// StoreConfig locates the session log database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Index     IndexConfig     `yaml:"index"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Generator GeneratorConfig `yaml:"generator"`
	Session   SessionConfig   `yaml:"session"`
	Store     StoreConfig     `yaml:"store"`
	Logging   logging.Config  `yaml:"logging"`
}

// Load reads a config from path over the defaults, so omitted keys keep
// their default values. A missing file yields the defaults.
func Load(path string) (*AppConfig, error) {
	cfg := baseConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyConfigDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/convsearch/config.yaml.
// If neither exists, it writes defaults to ~/.config/convsearch/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// SetLexicalOnly records index.lexical_only in the config file at path,
// leaving every other key and comment as written. A missing file is created
// holding just that key.
func SetLexicalOnly(path string, on bool) error {
	var doc yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return err
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: top level is not a mapping", path)
	}
	idx := mappingValue(root, "index", yaml.MappingNode)
	if idx.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: index is not a mapping", path)
	}
	v := mappingValue(idx, "lexical_only", yaml.ScalarNode)
	v.Kind, v.Tag, v.Value = yaml.ScalarNode, "!!bool", fmt.Sprint(on)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

// mappingValue returns the value node for key in m, appending an empty node
// of the given kind when the key is absent.
func mappingValue(m *yaml.Node, key string, kind yaml.Kind) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	v := &yaml.Node{Kind: kind}
	if kind == yaml.MappingNode {
		v.Tag = "!!map"
	}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, v)
	return v
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "convsearch", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := baseConfig()
	applyConfigDefaults(cfg)
	return cfg
}

// baseConfig holds the defaults that do not depend on other settings. The
// embedder dimension is left unset so it can follow the chosen model.
func baseConfig() *AppConfig {
	return &AppConfig{
		Index: IndexConfig{
			Dir:       ".convsearch/index",
			Corpus:    "corpus.jsonl",
			K1:        1.5,
			B:         0.75,
			Language:  "english",
			BatchSize: 32,
			Workers:   4,
		},
		Embedder:  EmbedderConfig{Type: "tfidf"},
		Generator: GeneratorConfig{Type: "openai", PromptHits: 30, SnippetRunes: 160},
		Session: SessionConfig{
			MaxTurns:              10,
			TopK:                  100,
			Threshold:             0.7,
			NRec:                  10,
			HybridWeight:          0.5,
			SemKFactor:            2,
			Retries:               3,
			RetryInitialMs:        500,
			GenerationTimeoutSecs: 60,
			SearchTimeoutSecs:     30,
			SummaryHits:           4,
		},
		Store:   StoreConfig{Path: ".convsearch/sessions.db"},
		Logging: logging.Config{Level: "info", Format: "console"},
	}
}

const defaultTFIDFDimension = 384

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 3
		}
		if cfg.Embedder.Dimension == 0 {
			cfg.Embedder.Dimension = openai.DefaultDimension(o.Model)
		}
	}
	if cfg.Embedder.Type == "tfidf" && cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = defaultTFIDFDimension
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIGeneratorConfig{}
		}
		o := cfg.Generator.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "gpt-4o-mini"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 60
		}
	}
}

// Validate reports every out-of-range or unknown setting.
func Validate(cfg *AppConfig) error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	s := cfg.Session
	check(s.MaxTurns >= 1 && s.MaxTurns <= 200, "session.max_turns must be in [1,200], got %d", s.MaxTurns)
	check(s.TopK >= 1, "session.top_k must be >= 1, got %d", s.TopK)
	check(s.Threshold >= 0 && s.Threshold <= 1, "session.threshold must be in [0,1], got %v", s.Threshold)
	check(s.NRec >= 1, "session.n_rec must be >= 1, got %d", s.NRec)
	check(s.HybridWeight >= 0 && s.HybridWeight <= 1, "session.hybrid_weight must be in [0,1], got %v", s.HybridWeight)
	check(s.SemKFactor >= 1, "session.sem_k_factor must be >= 1, got %d", s.SemKFactor)
	check(s.Retries >= 0, "session.retries must be >= 0, got %d", s.Retries)
	check(cfg.Index.K1 > 0, "index.k1 must be > 0, got %v", cfg.Index.K1)
	check(cfg.Index.B >= 0 && cfg.Index.B <= 1, "index.b must be in [0,1], got %v", cfg.Index.B)
	check(cfg.Index.Dir != "", "index.dir must be set")
	switch cfg.Embedder.Type {
	case "tfidf", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown embedder type %q", cfg.Embedder.Type))
	}
	check(cfg.Embedder.Dimension > 0, "embedder.dimension must be > 0 (required for models of unknown width), got %d", cfg.Embedder.Dimension)
	switch cfg.Generator.Type {
	case "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown generator type %q", cfg.Generator.Type))
	}
	return errors.Join(errs...)
}

// Params converts the session section into session parameters.
func (s SessionConfig) Params() session.Params {
	return session.Params{
		MaxTurns:          s.MaxTurns,
		TopK:              s.TopK,
		Threshold:         s.Threshold,
		NRec:              s.NRec,
		HybridWeight:      s.HybridWeight,
		Retries:           s.Retries,
		RetryInitial:      time.Duration(s.RetryInitialMs) * time.Millisecond,
		ActorTimeout:      time.Duration(s.ActorTimeoutSecs) * time.Second,
		GenerationTimeout: time.Duration(s.GenerationTimeoutSecs) * time.Second,
		SearchTimeout:     time.Duration(s.SearchTimeoutSecs) * time.Second,
	}
}
