// Package profile models a reader's preferences and the policy a simulated
// reader follows when answering questions and picking items.
package profile

import (
	"sort"
	"strings"
	"time"

	"convsearch/internal/domain"
)

// Style is how a reader answers clarifying questions.
type Style string

const (
	StyleBrief    Style = "brief"
	StyleBalanced Style = "balanced"
	StyleDetailed Style = "detailed"
)

// Action is a reader's reaction to an item.
type Action string

const (
	Selected Action = "selected"
	Rejected Action = "rejected"
)

const (
	baseGenreWeight    = 0.9
	relatedGenreWeight = 0.6
	initialConfidence  = 0.8
	// a disliked genre survives a conflict only up to this weight
	conflictWeight = 0.7
)

// Profile is a reader's preference model. Weights and confidences always
// stay within [0,1]. Mutate it only through Update.
type Profile struct {
	PreferredGenres  []string           `json:"preferred_genres"`
	DislikedGenres   []string           `json:"disliked_genres"`
	GenreWeights     map[string]float64 `json:"genre_weights"`
	PreferredAuthors []string           `json:"preferred_authors"`
	DislikedAuthors  []string           `json:"disliked_authors"`
	PreferredThemes  []string           `json:"preferred_themes"`
	DislikedThemes   []string           `json:"disliked_themes"`
	Complexity       string             `json:"complexity_preference"`
	LengthPreference string             `json:"length_preference"`
	ReadingPurposes  []string           `json:"reading_purposes"`
	ReadingContexts  []string           `json:"reading_contexts"`
	InteractionStyle Style              `json:"interaction_style"`
	Confidence       map[string]float64 `json:"profile_confidence"`
	InteractionCount int                `json:"interaction_count"`
	LastUpdated      time.Time          `json:"last_updated"`
}

// Generate derives a profile from an item's attributes: up to three
// genres, three themes and one author, widened with related genres and
// contrasted with genres the reader likely avoids.
func Generate(attrs domain.Structured) *Profile {
	genres := firstN(attrs.Genres, 3)
	complexity := attrs.Complexity
	if complexity == "" {
		complexity = "medium"
	}

	weights := make(map[string]float64, len(genres)*3)
	expanded := make([]string, 0, len(genres)*3)
	for _, g := range genres {
		if _, dup := weights[g]; dup {
			continue
		}
		weights[g] = baseGenreWeight
		expanded = append(expanded, g)
	}
	for _, g := range genres {
		for _, rel := range firstN(relatedGenres[g], 2) {
			if _, ok := weights[rel]; ok {
				continue
			}
			weights[rel] = relatedGenreWeight
			expanded = append(expanded, rel)
		}
	}

	seen := map[string]struct{}{}
	var disliked []string
	for _, g := range expanded {
		for _, c := range firstN(contrastGenres[g], 1) {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				disliked = append(disliked, c)
			}
		}
	}
	sort.Strings(disliked)

	pattern, ok := readingPatterns[complexity]
	if !ok {
		pattern = readingPatterns["medium"]
	}
	confidence := make(map[string]float64, len(expanded))
	for _, g := range expanded {
		confidence[g] = initialConfidence
	}

	p := &Profile{
		PreferredGenres:  expanded,
		DislikedGenres:   disliked,
		GenreWeights:     weights,
		PreferredAuthors: firstN(attrs.Authors, 1),
		PreferredThemes:  firstN(attrs.Themes, 3),
		Complexity:       complexity,
		LengthPreference: pattern.length,
		ReadingPurposes:  append([]string(nil), pattern.purposes...),
		ReadingContexts:  append([]string(nil), pattern.contexts...),
		InteractionStyle: pattern.style,
		Confidence:       confidence,
	}
	p.ResolveConflicts()
	return p
}

// Update applies a reader's reaction to item. Selecting strengthens the
// item's weight and confidence; rejecting weakens both. Every update counts
// as an interaction and nudges all confidences up slightly.
func (p *Profile) Update(action Action, item string) {
	if p.GenreWeights == nil {
		p.GenreWeights = map[string]float64{}
	}
	if p.Confidence == nil {
		p.Confidence = map[string]float64{}
	}
	switch action {
	case Selected:
		if w, ok := p.GenreWeights[item]; ok {
			p.GenreWeights[item] = clamp(w + 0.1)
		} else {
			p.GenreWeights[item] = 0.7
		}
		p.Confidence[item] = clamp(confidenceOr(p.Confidence, item) + 0.1)
	case Rejected:
		p.GenreWeights[item] = clamp(p.GenreWeights[item] - 0.2)
		p.Confidence[item] = clamp(confidenceOr(p.Confidence, item) - 0.2)
	}
	p.InteractionCount++
	p.LastUpdated = time.Now()
	for k, c := range p.Confidence {
		p.Confidence[k] = clamp(c + 0.01)
	}
	p.ResolveConflicts()
}

// ResolveConflicts drops a genre from the disliked list when it is also
// preferred with a weight above 0.7.
func (p *Profile) ResolveConflicts() {
	preferred := toSet(p.PreferredGenres)
	kept := p.DislikedGenres[:0]
	for _, g := range p.DislikedGenres {
		if _, ok := preferred[g]; ok && p.GenreWeights[g] > conflictWeight {
			continue
		}
		kept = append(kept, g)
	}
	p.DislikedGenres = kept
}

// Answer picks one of options. Brief readers take the first option naming
// a preferred genre; others take the option whose named preferred genres
// weigh the most, keeping the earlier option on ties. With no options the
// answer is empty.
func (p *Profile) Answer(question string, options []string) string {
	if len(options) == 0 {
		return ""
	}
	if p.InteractionStyle == StyleBrief {
		for _, opt := range options {
			for _, g := range p.PreferredGenres {
				if mentions(opt, g) {
					return opt
				}
			}
		}
		return options[0]
	}
	best, bestScore := 0, -1.0
	for i, opt := range options {
		score := 0.0
		for _, g := range p.PreferredGenres {
			if mentions(opt, g) {
				score += p.GenreWeights[g]
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return options[best]
}

// Choose returns the first id naming a preferred genre, else the first id,
// else domain.NoneSelection.
func (p *Profile) Choose(ids []string) string {
	for _, id := range ids {
		for _, g := range p.PreferredGenres {
			if mentions(id, g) {
				return id
			}
		}
	}
	if len(ids) > 0 {
		return ids[0]
	}
	return domain.NoneSelection
}

// GenresIn returns the preferred genres text mentions, in profile order.
func (p *Profile) GenresIn(text string) []string {
	var out []string
	for _, g := range p.PreferredGenres {
		if mentions(text, g) {
			out = append(out, g)
		}
	}
	return out
}

// TopGenres returns up to n preferred genres by descending weight.
func (p *Profile) TopGenres(n int) []string {
	out := append([]string(nil), p.PreferredGenres...)
	sort.SliceStable(out, func(i, j int) bool { return p.GenreWeights[out[i]] > p.GenreWeights[out[j]] })
	return firstN(out, n)
}

// mentions reports whether text contains genre, ignoring case and reading
// underscores in genre names as spaces.
func mentions(text, genre string) bool {
	if genre == "" {
		return false
	}
	t := strings.ToLower(text)
	g := strings.ToLower(genre)
	return strings.Contains(t, g) || strings.Contains(t, strings.ReplaceAll(g, "_", " "))
}

func confidenceOr(m map[string]float64, k string) float64 {
	if c, ok := m[k]; ok {
		return c
	}
	return 0.5
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		s = s[:n]
	}
	return append([]string(nil), s...)
}

func toSet(s []string) map[string]struct{} {
	m := make(map[string]struct{}, len(s))
	for _, v := range s {
		m[v] = struct{}{}
	}
	return m
}
