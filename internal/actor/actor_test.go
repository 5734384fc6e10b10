package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convsearch/internal/domain"
	"convsearch/internal/llm"
	"convsearch/internal/profile"
	"convsearch/internal/session"
)

type fixedGenerator struct {
	reply  string
	err    error
	prompt string
}

func (g *fixedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.reply, g.err
}

func target() domain.Document {
	return domain.Document{
		ID:   "b7",
		Text: "A detective hunts a poisoner in a quiet village. The vicar helps.",
		Structured: &domain.Structured{
			Title:  "Death at the Vicarage",
			Genres: []string{"mystery"},
			Themes: []string{"village life"},
		},
	}
}

func TestProfileActor_InitialQuery(t *testing.T) {
	a := NewProfileActor(profile.Generate(domain.Structured{
		Genres: []string{"fantasy"},
		Themes: []string{"coming of age"},
	}))
	q, err := a.InitialQuery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fantasy sci-fi coming of age", q)

	empty := NewProfileActor(profile.Generate(domain.Structured{}))
	q, err = empty.InitialQuery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a good book", q)
}

func TestProfileActor_AskedUpdatesProfile(t *testing.T) {
	p := profile.Generate(domain.Structured{Genres: []string{"mystery"}})
	a := NewProfileActor(p)

	options := []string{"Poetry", "A crime story"}
	ans, err := a.Answer(context.Background(), "Which?", options)
	require.NoError(t, err)
	assert.Equal(t, "A crime story", ans)
	assert.NotContains(t, p.GenreWeights, "crime")

	a.Asked(1, llm.Clarification{Question: "Which?", Options: options}, ans, "crime")
	assert.InDelta(t, 0.7, p.GenreWeights["crime"], 1e-9)
	assert.Equal(t, 1, p.InteractionCount)

	a.Asked(2, llm.Clarification{Question: "Tell me more"}, "crime please", "crime")
	assert.Equal(t, 1, p.InteractionCount)

	ans, err = a.Answer(context.Background(), "Anything else?", nil)
	require.NoError(t, err)
	assert.Equal(t, "I like mystery and crime", ans)

	id, err := a.Choose(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, "x", id)
}

type stubSearcher struct{}

func (stubSearcher) Size() int { return 2 }

func (stubSearcher) HybridSearch(context.Context, string, int, float64) ([]domain.RankedHit, error) {
	return []domain.RankedHit{{ID: "x", Score: 1}, {ID: "y"}}, nil
}

type stubAssistant struct{ reformulateErr error }

func (stubAssistant) RewriteQuery(_ context.Context, in string) (string, error) { return in, nil }

func (a stubAssistant) Reformulate(context.Context, []domain.Exchange) (string, error) {
	if a.reformulateErr != nil {
		return "", a.reformulateErr
	}
	return "crime", nil
}

func (stubAssistant) Clarify(context.Context, []domain.RankedHit, []domain.Exchange) (llm.Clarification, error) {
	return llm.Clarification{Question: "Which?", Options: []string{"Poetry", "A crime story"}}, nil
}

func TestProfileActor_LearnsOnlyFromCommittedTurns(t *testing.T) {
	params := session.DefaultParams()
	params.Retries = 0
	params.RetryInitial = time.Millisecond
	run := func(asst stubAssistant) *profile.Profile {
		p := profile.Generate(domain.Structured{Genres: []string{"mystery"}})
		a := NewProfileActor(p)
		sess, err := session.New(stubSearcher{}, asst, a, params, session.WithObserver(a))
		require.NoError(t, err)
		require.NoError(t, sess.Step(context.Background()))
		require.NoError(t, sess.Step(context.Background()))
		return p
	}

	failed := run(stubAssistant{reformulateErr: errors.New("upstream down")})
	assert.NotContains(t, failed.GenreWeights, "crime")
	assert.Zero(t, failed.InteractionCount)

	committed := run(stubAssistant{})
	assert.InDelta(t, 0.7, committed.GenreWeights["crime"], 1e-9)
	assert.Equal(t, 1, committed.InteractionCount)
}

func TestTargetSimulator_InitialQuery(t *testing.T) {
	gen := &fixedGenerator{reply: "\n\"village poison mystery\"\n"}
	s := NewTargetSimulator(target(), gen)

	q, err := s.InitialQuery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "village poison mystery", q)
	assert.Contains(t, gen.prompt, "Death at the Vicarage")

	gen.reply = "  "
	_, err = s.InitialQuery(context.Background())
	assert.ErrorIs(t, err, domain.ErrServiceError)

	gen.err = errors.New("down")
	_, err = s.InitialQuery(context.Background())
	assert.Error(t, err)
}

func TestTargetSimulator_Answer(t *testing.T) {
	options := []string{"Romance", "Mystery", "Science fiction"}
	tests := []struct {
		reply string
		want  string
	}{
		{reply: "2", want: "Mystery"},
		{reply: "Option 3.", want: "Science fiction"},
		{reply: "romance, definitely", want: "Romance"},
		// out of range: the target's profile prefers mystery
		{reply: "9", want: "Mystery"},
		{reply: "no idea", want: "Mystery"},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			gen := &fixedGenerator{reply: tt.reply}
			got, err := NewTargetSimulator(target(), gen).Answer(context.Background(), "Which genre?", options)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, gen.prompt, "1. Romance\n2. Mystery")
		})
	}
}

func TestTargetSimulator_Choose(t *testing.T) {
	s := NewTargetSimulator(target(), &fixedGenerator{})
	id, err := s.Choose(context.Background(), []string{"b1", "b7"})
	require.NoError(t, err)
	assert.Equal(t, "b7", id)

	id, err = s.Choose(context.Background(), []string{"b1"})
	require.NoError(t, err)
	assert.Equal(t, domain.NoneSelection, id)
}
