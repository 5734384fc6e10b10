package domain

import "context"

// Structured holds the optional enrichment fields of a document.
type Structured struct {
	Title          string   `json:"title,omitempty"`
	Authors        []string `json:"authors,omitempty"`
	Genres         []string `json:"genres,omitempty"`
	Themes         []string `json:"themes,omitempty"`
	Complexity     string   `json:"complexity,omitempty"`
	TargetAudience []string `json:"target_audience,omitempty"`
}

// Document is a single searchable item of the collection.
type Document struct {
	ID              string      `json:"id"`
	Text            string      `json:"text"`
	Structured      *Structured `json:"structured,omitempty"`
	BoostTerms      []string    `json:"boost_terms,omitempty"`
	NegativeSignals []string    `json:"negative_signals,omitempty"`
}

// RankedHit is a document matched by a query. Scores are only comparable
// within the modality that produced them until normalised.
type RankedHit struct {
	ID    string
	Text  string
	Score float64
}

// Embedder converts free text into unit-norm vectors of a fixed dimension.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NoneSelection is returned by an actor that accepts none of the presented items.
const NoneSelection = "none"

// Exchange is one clarifying question and the actor's answer.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
