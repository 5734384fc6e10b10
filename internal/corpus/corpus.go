// Package corpus reads documents from JSON Lines files.
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"

	"convsearch/internal/domain"
)

const maxLine = 16 << 20

// Load reads a JSON Lines corpus from path.
func Load(path string) ([]domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	docs, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}

// Read decodes one document per non-blank line. A record without text gets
// one flattened from its structured fields.
func Read(r io.Reader) ([]domain.Document, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	var docs []domain.Document
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var d domain.Document
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return nil, fmt.Errorf("%w: line %d has no id", domain.ErrInvalidDocument, line)
		}
		if strings.TrimSpace(d.Text) == "" {
			d.Text = Flatten(d)
		}
		if d.Text == "" {
			return nil, fmt.Errorf("%w: line %d (%s) has no text", domain.ErrInvalidDocument, line, d.ID)
		}
		docs = append(docs, d)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Flatten renders the structured fields and boost terms as searchable text.
func Flatten(d domain.Document) string {
	var parts []string
	add := func(label string, values ...string) {
		var kept []string
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			parts = append(parts, label+": "+strings.Join(kept, ", "))
		}
	}
	if st := d.Structured; st != nil {
		add("Title", st.Title)
		add("Authors", st.Authors...)
		add("Genres", st.Genres...)
		add("Themes", st.Themes...)
		add("Complexity", st.Complexity)
		add("Audience", st.TargetAudience...)
	}
	add("Keywords", d.BoostTerms...)
	return strings.Join(parts, ". ")
}

// Sample returns n documents chosen without replacement. The same seed
// always yields the same sample. n <= 0 or n >= len(docs) returns all
// documents in corpus order.
func Sample(docs []domain.Document, n int, seed int64) []domain.Document {
	if n <= 0 || n >= len(docs) {
		return append([]domain.Document(nil), docs...)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(len(docs))
	out := make([]domain.Document, n)
	for i := range out {
		out[i] = docs[perm[i]]
	}
	return out
}
