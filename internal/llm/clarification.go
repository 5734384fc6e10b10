package llm

import (
	"regexp"
	"strings"
)

// MaxOptions is the largest number of answer options kept per question.
const MaxOptions = 4

// Clarification is a disambiguating question with mutually exclusive
// answer options. The zero value is valid.
type Clarification struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

var (
	questionLine = regexp.MustCompile(`(?i)^\W*question\W*:\s*(.*)$`)
	optionLine   = regexp.MustCompile(`^\s*(?:[-*]\s*)?\(?(\d+)[.)]\s*(.+)$`)
)

// ParseClarification reads generator output of the form
//
//	Question: <text>
//	1. <option>
//	2. <option>
//
// Output it cannot read becomes a question without options.
func ParseClarification(text string) Clarification {
	var c Clarification
	var loose []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := questionLine.FindStringSubmatch(line); m != nil && c.Question == "" {
			c.Question = cleanup(m[1])
			continue
		}
		if m := optionLine.FindStringSubmatch(line); m != nil {
			if len(c.Options) < MaxOptions {
				if opt := cleanup(m[2]); opt != "" {
					c.Options = append(c.Options, opt)
				}
			}
			continue
		}
		if len(c.Options) == 0 {
			loose = append(loose, cleanup(line))
		}
	}
	if c.Question == "" {
		c.Question = strings.Join(loose, " ")
	}
	if c.Question == "" {
		c.Question = strings.TrimSpace(text)
	}
	return c
}

func cleanup(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*_`\""))
}

// Format renders the clarification for an actor, one numbered option per line.
func (c Clarification) Format() string {
	var b strings.Builder
	b.WriteString(c.Question)
	for i, opt := range c.Options {
		b.WriteString("\n")
		b.WriteString(string(rune('1' + i)))
		b.WriteString(". ")
		b.WriteString(opt)
	}
	return b.String()
}
