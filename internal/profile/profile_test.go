package profile

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convsearch/internal/domain"
)

func TestGenerate(t *testing.T) {
	p := Generate(domain.Structured{
		Genres:     []string{"mystery", "sci-fi"},
		Themes:     []string{"loss", "revenge", "space", "family"},
		Authors:    []string{"A. Writer", "B. Writer"},
		Complexity: "advanced",
	})

	assert.Equal(t, []string{"mystery", "sci-fi", "thriller", "crime", "fantasy", "dystopian"}, p.PreferredGenres)
	assert.Equal(t, map[string]float64{
		"mystery": 0.9, "sci-fi": 0.9,
		"thriller": 0.6, "crime": 0.6, "fantasy": 0.6, "dystopian": 0.6,
	}, p.GenreWeights)
	assert.Equal(t, []string{"biography", "romance"}, p.DislikedGenres)
	assert.Equal(t, []string{"loss", "revenge", "space"}, p.PreferredThemes)
	assert.Equal(t, []string{"A. Writer"}, p.PreferredAuthors)
	assert.Equal(t, "long", p.LengthPreference)
	assert.Equal(t, []string{"learning", "professional"}, p.ReadingPurposes)
	assert.Equal(t, []string{"study_time"}, p.ReadingContexts)
	assert.Equal(t, StyleDetailed, p.InteractionStyle)
	for _, g := range p.PreferredGenres {
		assert.Equal(t, 0.8, p.Confidence[g])
	}
}

func TestGenerate_DefaultsToMedium(t *testing.T) {
	for _, c := range []string{"", "expert"} {
		p := Generate(domain.Structured{Genres: []string{"poetry"}, Complexity: c})
		assert.Equal(t, StyleBalanced, p.InteractionStyle)
		assert.Equal(t, "medium", p.LengthPreference)
		assert.Equal(t, []string{"evening", "weekend"}, p.ReadingContexts)
		assert.Empty(t, p.DislikedGenres)
	}
}

func TestGenerate_ResolvesConflicts(t *testing.T) {
	p := Generate(domain.Structured{Genres: []string{"mystery", "romance"}})
	assert.Empty(t, p.DislikedGenres)

	p = Generate(domain.Structured{Genres: []string{"fiction", "business"}})
	assert.Equal(t, []string{"academic"}, p.DislikedGenres)
}

func TestUpdate_SelectedNewItem(t *testing.T) {
	p := Generate(domain.Structured{})
	p.Update(Selected, "mystery")

	assert.Equal(t, 0.7, p.GenreWeights["mystery"])
	// 0.5 + 0.1, then the per-update nudge of 0.01
	assert.InDelta(t, 0.61, p.Confidence["mystery"], 1e-9)
	assert.Equal(t, 1, p.InteractionCount)
	assert.False(t, p.LastUpdated.IsZero())
}

func TestUpdate_SelectedAndRejected(t *testing.T) {
	p := Generate(domain.Structured{Genres: []string{"mystery"}})
	p.Update(Selected, "mystery")
	assert.InDelta(t, 1.0, p.GenreWeights["mystery"], 1e-9)
	p.Update(Selected, "mystery")
	assert.Equal(t, 1.0, p.GenreWeights["mystery"])
	assert.Equal(t, 1.0, p.Confidence["mystery"])

	p.Update(Rejected, "poetry")
	assert.Equal(t, 0.0, p.GenreWeights["poetry"])
	assert.InDelta(t, 0.31, p.Confidence["poetry"], 1e-9)
	assert.Equal(t, 3, p.InteractionCount)
}

func TestUpdate_KeepsValuesInRangeAndConflictsResolved(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	keys := []string{"mystery", "romance", "self-help", "fiction", "academic", "crime"}
	p := Generate(domain.Structured{Genres: []string{"mystery", "fiction"}, Complexity: "beginner"})
	// re-add a contrast genre so conflicts can arise
	p.DislikedGenres = append(p.DislikedGenres, "mystery")
	for i := 0; i < 500; i++ {
		action := Selected
		if rng.Intn(2) == 0 {
			action = Rejected
		}
		p.Update(action, keys[rng.Intn(len(keys))])

		for k, w := range p.GenreWeights {
			require.GreaterOrEqual(t, w, 0.0, k)
			require.LessOrEqual(t, w, 1.0, k)
		}
		for k, c := range p.Confidence {
			require.GreaterOrEqual(t, c, 0.0, k)
			require.LessOrEqual(t, c, 1.0, k)
		}
		preferred := toSet(p.PreferredGenres)
		for _, g := range p.DislikedGenres {
			if _, ok := preferred[g]; ok {
				require.LessOrEqual(t, p.GenreWeights[g], conflictWeight, g)
			}
		}
	}
	assert.Equal(t, 500, p.InteractionCount)
}

func TestAnswer_Brief(t *testing.T) {
	p := Generate(domain.Structured{Genres: []string{"sci-fi"}, Complexity: "beginner"})
	require.Equal(t, StyleBrief, p.InteractionStyle)

	assert.Equal(t, "Sci-Fi epics", p.Answer("Which?", []string{"Romance novels", "Sci-Fi epics", "Fantasy"}))
	assert.Equal(t, "Cooking", p.Answer("Which?", []string{"Cooking", "Poetry"}))
	assert.Equal(t, "", p.Answer("Which?", nil))
}

func TestAnswer_Weighted(t *testing.T) {
	p := Generate(domain.Structured{Genres: []string{"mystery"}})
	require.Equal(t, StyleBalanced, p.InteractionStyle)

	options := []string{"A thriller", "A mystery crime story", "Poetry"}
	assert.Equal(t, "A mystery crime story", p.Answer("Which?", options))
	assert.Equal(t, "Poetry", p.Answer("Which?", []string{"Poetry", "Cooking"}))
}

func TestMentions(t *testing.T) {
	assert.True(t, mentions("Urban Fantasy novels", "urban_fantasy"))
	assert.True(t, mentions("SELF-HELP", "self-help"))
	assert.False(t, mentions("anything", ""))
}

func TestChoose(t *testing.T) {
	p := Generate(domain.Structured{Genres: []string{"mystery"}})
	assert.Equal(t, "mystery-42", p.Choose([]string{"b1", "mystery-42"}))
	assert.Equal(t, "x", p.Choose([]string{"x", "y"}))
	assert.Equal(t, domain.NoneSelection, p.Choose(nil))
}

func TestTopGenres(t *testing.T) {
	p := Generate(domain.Structured{Genres: []string{"mystery"}})
	p.Update(Selected, "crime")
	assert.Equal(t, []string{"mystery", "crime"}, p.TopGenres(2))
}
