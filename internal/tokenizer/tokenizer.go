// Package tokenizer turns free text into normalised index terms.
package tokenizer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kljensen/snowball"
)

// Tokenizer lowercases, splits on Unicode letters, drops stop words and
// stems the remaining tokens in the configured language.
// It is safe for concurrent use once constructed.
type Tokenizer struct {
	language     string
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// New creates a tokenizer for language. A nil stopword list selects the
// built-in English list; an empty non-nil list disables stop-word removal.
func New(language string, stopwords []string) (*Tokenizer, error) {
	if language == "" {
		language = "english"
	}
	if _, err := snowball.Stem("probe", language, false); err != nil {
		return nil, fmt.Errorf("tokenizer: unsupported language %q: %w", language, err)
	}
	if stopwords == nil {
		stopwords = DefaultStopwords()
	}
	set := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		set[strings.ToLower(w)] = struct{}{}
	}
	return &Tokenizer{
		language:     language,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    set,
	}, nil
}

// Language returns the stemming language.
func (t *Tokenizer) Language() string { return t.language }

// Tokenize returns the index terms of text in order of appearance.
func (t *Tokenizer) Tokenize(text string) []string {
	raw := t.tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, isStop := t.stopwords[tok]; isStop {
			continue
		}
		out = append(out, t.stem(tok))
	}
	return out
}

// Stopwords returns the configured stop words, sorted.
func (t *Tokenizer) Stopwords() []string {
	words := make([]string, 0, len(t.stopwords))
	for w := range t.stopwords {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

func (t *Tokenizer) stem(tok string) string {
	stemmed, err := snowball.Stem(tok, t.language, false)
	if err != nil || stemmed == "" {
		return tok
	}
	return stemmed
}

// DefaultStopwords returns the built-in English stop-word list.
func DefaultStopwords() []string {
	return []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now", "i", "me", "my", "we", "our", "you", "your", "he", "she", "they", "them", "their", "what", "which", "who", "whom", "do", "does", "did", "have", "has", "had", "not", "no", "nor", "only", "all", "any", "both", "each", "few", "more", "most", "other", "some",
	}
}
