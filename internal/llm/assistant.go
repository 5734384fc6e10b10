// Package llm holds the text-generation side of a conversation: the
// chat-completions client and the prompts a session needs.
package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"convsearch/internal/domain"
	"convsearch/internal/summarizer"
)

// AssistantOptions configures an Assistant.
type AssistantOptions struct {
	// PromptHits caps how many retrieved items are shown to the generator.
	PromptHits   int
	SnippetRunes int
	Logger       *zap.Logger
}

// Assistant turns generator completions into queries, clarifying
// questions and summaries.
type Assistant struct {
	gen          domain.Generator
	snippets     *summarizer.Frequency
	promptHits   int
	snippetRunes int
	logger       *zap.Logger
}

// NewAssistant wraps gen.
func NewAssistant(gen domain.Generator, opts AssistantOptions) *Assistant {
	if opts.PromptHits <= 0 {
		opts.PromptHits = 30
	}
	if opts.SnippetRunes <= 0 {
		opts.SnippetRunes = 160
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Assistant{
		gen:          gen,
		snippets:     summarizer.NewFrequency(),
		promptHits:   opts.PromptHits,
		snippetRunes: opts.SnippetRunes,
		logger:       opts.Logger,
	}
}

// RewriteQuery turns a raw user request into a search query. An empty
// completion keeps the input.
func (a *Assistant) RewriteQuery(ctx context.Context, input string) (string, error) {
	out, err := a.gen.Generate(ctx, fmt.Sprintf(rewritePrompt, input))
	if err != nil {
		return "", err
	}
	if q := cleanQuery(out); q != "" {
		return q, nil
	}
	return strings.TrimSpace(input), nil
}

// Reformulate composes one query from the whole conversation history.
func (a *Assistant) Reformulate(ctx context.Context, history []domain.Exchange) (string, error) {
	out, err := a.gen.Generate(ctx, fmt.Sprintf(reformulatePrompt, formatHistory(history, "\n")))
	if err != nil {
		return "", err
	}
	q := cleanQuery(out)
	if q == "" {
		return "", fmt.Errorf("%w: empty reformulation", domain.ErrServiceError)
	}
	return q, nil
}

// Clarify asks the generator for a question that splits the hit pool.
func (a *Assistant) Clarify(ctx context.Context, hits []domain.RankedHit, history []domain.Exchange) (Clarification, error) {
	if len(hits) > a.promptHits {
		hits = hits[:a.promptHits]
	}
	lines := make([]string, len(hits))
	for i, h := range hits {
		lines[i] = h.ID + " · " + a.snippets.Snippet(h.Text, a.snippetRunes)
	}
	convo := "None so far."
	if len(history) > 0 {
		convo = formatHistory(history, " ")
	}
	out, err := a.gen.Generate(ctx, fmt.Sprintf(clarifyPrompt, strings.Join(lines, "\n"), convo))
	if err != nil {
		return Clarification{}, err
	}
	c := ParseClarification(out)
	if len(c.Options) == 0 {
		a.logger.Warn("clarification without options", zap.String("raw", out))
	}
	return c, nil
}

// Summarize returns one bullet point per hit.
func (a *Assistant) Summarize(ctx context.Context, hits []domain.RankedHit) (string, error) {
	if len(hits) == 0 {
		return "", nil
	}
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = "[" + h.ID + "]\n" + h.Text
	}
	return a.gen.Generate(ctx, fmt.Sprintf(summaryPrompt, len(hits), strings.Join(parts, "\n\n"), len(hits)))
}

func formatHistory(history []domain.Exchange, sep string) string {
	lines := make([]string, len(history))
	for i, ex := range history {
		lines[i] = "Q: " + ex.Question + sep + "A: " + ex.Answer
	}
	return strings.Join(lines, "\n")
}

// cleanQuery keeps the first non-empty line without a label or quotes.
func cleanQuery(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if i := strings.Index(line, ":"); i >= 0 && strings.Contains(strings.ToLower(line[:i]), "query") {
			line = strings.TrimSpace(line[i+1:])
		}
		return strings.Trim(line, "\"'`")
	}
	return ""
}
