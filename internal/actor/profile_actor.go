// Package actor provides simulated readers that take part in a
// conversation in place of a human.
package actor

import (
	"context"
	"strings"

	"convsearch/internal/llm"
	"convsearch/internal/profile"
	"convsearch/internal/session"
)

// ProfileActor answers and chooses by a preference profile. It learns from
// its answers only once a turn is committed, so register it as the session
// observer as well.
type ProfileActor struct {
	profile *profile.Profile
	themes  []string
}

// NewProfileActor wraps p. The actor owns p from now on.
func NewProfileActor(p *profile.Profile) *ProfileActor {
	return &ProfileActor{profile: p, themes: p.PreferredThemes}
}

// Profile returns the actor's current profile.
func (a *ProfileActor) Profile() *profile.Profile { return a.profile }

// InitialQuery names the actor's two strongest genres and first theme.
func (a *ProfileActor) InitialQuery(context.Context) (string, error) {
	words := a.profile.TopGenres(2)
	if len(a.themes) > 0 {
		words = append(words, a.themes[0])
	}
	if len(words) == 0 {
		return "a good book", nil
	}
	for i, w := range words {
		words[i] = strings.ReplaceAll(w, "_", " ")
	}
	return strings.Join(words, " "), nil
}

// Answer picks an option by the profile policy. Free-text questions get the
// actor's strongest genres. The profile is left untouched; see Asked.
func (a *ProfileActor) Answer(_ context.Context, question string, options []string) (string, error) {
	if len(options) == 0 {
		top := a.profile.TopGenres(2)
		if len(top) == 0 {
			return "no preference", nil
		}
		return "I like " + strings.ReplaceAll(strings.Join(top, " and "), "_", " "), nil
	}
	return a.profile.Answer(question, options), nil
}

// Asked strengthens every genre named by the option the actor chose in a
// committed turn.
func (a *ProfileActor) Asked(_ int, c llm.Clarification, answer, _ string) {
	if len(c.Options) == 0 {
		return
	}
	for _, g := range a.profile.GenresIn(answer) {
		a.profile.Update(profile.Selected, g)
	}
}

// Filtered implements session.Observer.
func (a *ProfileActor) Filtered(int, []string, session.Mode) {}

// Recommended implements session.Observer.
func (a *ProfileActor) Recommended(int, []string, string) {}

// Choose applies the profile's choice policy.
func (a *ProfileActor) Choose(_ context.Context, ids []string) (string, error) {
	return a.profile.Choose(ids), nil
}
