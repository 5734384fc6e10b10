package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convsearch/internal/domain"
)

type scriptedGenerator struct {
	replies []string
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if len(g.replies) == 0 {
		return "", nil
	}
	out := g.replies[0]
	g.replies = g.replies[1:]
	return out, nil
}

func TestParseClarification(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Clarification
	}{
		{
			name: "well formed",
			in:   "Question: Which genre?\n1. Mystery\n2. Science fiction\n3. Romance",
			want: Clarification{Question: "Which genre?", Options: []string{"Mystery", "Science fiction", "Romance"}},
		},
		{
			name: "markdown and parentheses",
			in:   "**Question:** Fiction or not?\n\n1) **Fiction**\n2) Non-fiction",
			want: Clarification{Question: "Fiction or not?", Options: []string{"Fiction", "Non-fiction"}},
		},
		{
			name: "caps options at four",
			in:   "Question: Pick\n1. a\n2. b\n3. c\n4. d\n5. e",
			want: Clarification{Question: "Pick", Options: []string{"a", "b", "c", "d"}},
		},
		{
			name: "no label",
			in:   "Do you prefer long books?\n1. Yes\n2. No",
			want: Clarification{Question: "Do you prefer long books?", Options: []string{"Yes", "No"}},
		},
		{
			name: "unparsable",
			in:   "  I cannot help with that  ",
			want: Clarification{Question: "I cannot help with that"},
		},
		{
			name: "empty",
			in:   "",
			want: Clarification{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseClarification(tt.in))
		})
	}
}

func TestClarification_Format(t *testing.T) {
	c := Clarification{Question: "Which?", Options: []string{"One", "Two"}}
	assert.Equal(t, "Which?\n1. One\n2. Two", c.Format())
}

func TestAssistant_Prompts(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"Search query: \"cozy village mystery\"",
		"Question: Era?\n1. Modern\n2. Victorian",
		"victorian cozy mystery",
	}}
	a := NewAssistant(gen, AssistantOptions{PromptHits: 1})
	ctx := context.Background()

	q, err := a.RewriteQuery(ctx, "something cozy with a murder")
	require.NoError(t, err)
	assert.Equal(t, "cozy village mystery", q)
	assert.Contains(t, gen.prompts[0], "User: something cozy with a murder")

	hits := []domain.RankedHit{{ID: "b1", Text: "A vicar finds a body. Tea follows."}, {ID: "b2", Text: "Other."}}
	c, err := a.Clarify(ctx, hits, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Modern", "Victorian"}, c.Options)
	assert.Contains(t, gen.prompts[1], "b1 · ")
	assert.NotContains(t, gen.prompts[1], "b2 · ")
	assert.Contains(t, gen.prompts[1], "None so far.")

	history := []domain.Exchange{{Question: "Era?", Answer: "Victorian"}}
	q, err = a.Reformulate(ctx, history)
	require.NoError(t, err)
	assert.Equal(t, "victorian cozy mystery", q)
	assert.Contains(t, gen.prompts[2], "Q: Era?\nA: Victorian")
}

func TestAssistant_EmptyCompletions(t *testing.T) {
	a := NewAssistant(&scriptedGenerator{}, AssistantOptions{})
	q, err := a.RewriteQuery(context.Background(), " raw input ")
	require.NoError(t, err)
	assert.Equal(t, "raw input", q)

	_, err = a.Reformulate(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrServiceError)

	out, err := a.Summarize(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  echo: ` + req.Messages[0].Content + `  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{BaseURL: srv.URL + "/", Model: "m"})
	require.NoError(t, err)
	out, err := c.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)
}

func TestOpenAI_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, domain.ErrServiceError)
}

func TestOpenAI_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Generate(ctx, "hi")
	assert.ErrorIs(t, err, domain.ErrGenerationTimeout)
}
