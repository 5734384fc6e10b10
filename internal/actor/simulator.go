package actor

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"convsearch/internal/domain"
	"convsearch/internal/profile"
	"convsearch/internal/summarizer"
)

const initialQueryPrompt = `You are a reader looking for a book in an online catalogue. You roughly know what you want but not its exact title.
Generate a query that is still ambiguous but contains key partial information about the wanted item, the way a real user would type it.
Do not return the full title. Use two to five words, no punctuation.

Title: %s
Authors: %s
Genres: %s
Themes: %s
Description: %s

Return the query on a single line without any explanation.`

const answerPrompt = `You are a reader looking for a book. The system asks a clarification question to help you find it.
Answer to help the system understand your needs. Do not reveal the full title.

The question is:
%s

The book you want:
Title: %s
Genres: %s
Themes: %s
Description: %s

Return only the number of the option you choose.`

var leadingNumber = regexp.MustCompile(`^\D*?(\d+)`)

// TargetSimulator plays a reader who wants one specific document. Its
// query and answers come from a generator that knows the target; choices
// are exact.
type TargetSimulator struct {
	target   domain.Document
	gen      domain.Generator
	fallback *profile.Profile
	snippets *summarizer.Frequency
}

// NewTargetSimulator creates a simulator for target. Answers the generator
// gets wrong fall back to a profile derived from the target.
func NewTargetSimulator(target domain.Document, gen domain.Generator) *TargetSimulator {
	attrs := domain.Structured{}
	if target.Structured != nil {
		attrs = *target.Structured
	}
	return &TargetSimulator{
		target:   target,
		gen:      gen,
		fallback: profile.Generate(attrs),
		snippets: summarizer.NewFrequency(),
	}
}

// Target returns the id the simulator is looking for.
func (s *TargetSimulator) Target() string { return s.target.ID }

// InitialQuery asks the generator for a vague query describing the target.
func (s *TargetSimulator) InitialQuery(ctx context.Context) (string, error) {
	st := s.attrs()
	out, err := s.gen.Generate(ctx, fmt.Sprintf(initialQueryPrompt,
		st.Title, strings.Join(st.Authors, ", "), strings.Join(st.Genres, ", "),
		strings.Join(st.Themes, ", "), s.description()))
	if err != nil {
		return "", err
	}
	q := strings.Trim(firstLine(out), "\"'.")
	if q == "" {
		return "", fmt.Errorf("%w: empty initial query", domain.ErrServiceError)
	}
	return q, nil
}

// Answer asks the generator for an option number. A reply that names no
// valid option falls back to the target's profile policy.
func (s *TargetSimulator) Answer(ctx context.Context, question string, options []string) (string, error) {
	var b strings.Builder
	b.WriteString(question)
	for i, opt := range options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
	}
	st := s.attrs()
	out, err := s.gen.Generate(ctx, fmt.Sprintf(answerPrompt,
		b.String(), st.Title, strings.Join(st.Genres, ", "), strings.Join(st.Themes, ", "), s.description()))
	if err != nil {
		return "", err
	}
	if len(options) == 0 {
		return firstLine(out), nil
	}
	if m := leadingNumber.FindStringSubmatch(out); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= len(options) {
			return options[n-1], nil
		}
	}
	reply := strings.ToLower(firstLine(out))
	for _, opt := range options {
		if reply != "" && strings.Contains(reply, strings.ToLower(opt)) {
			return opt, nil
		}
	}
	return s.fallback.Answer(question, options), nil
}

// Choose accepts the target if it was presented.
func (s *TargetSimulator) Choose(_ context.Context, ids []string) (string, error) {
	if slices.Contains(ids, s.target.ID) {
		return s.target.ID, nil
	}
	return domain.NoneSelection, nil
}

func (s *TargetSimulator) attrs() domain.Structured {
	if s.target.Structured == nil {
		return domain.Structured{}
	}
	return *s.target.Structured
}

func (s *TargetSimulator) description() string {
	out, _ := s.snippets.Summarize(s.target.Text, 3)
	return out
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
