package index

import "math"

// Default BM25 parameters.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

type posting struct {
	Doc int `json:"d"`
	TF  int `json:"tf"`
}

// lexical holds the BM25 statistics of a corpus. Documents are addressed by
// their position in the index.
type lexical struct {
	K1        float64              `json:"k1"`
	B         float64              `json:"b"`
	AvgDocLen float64              `json:"avg_doc_len"`
	DocLens   []int                `json:"doc_lens"`
	Postings  map[string][]posting `json:"postings"`
}

func buildLexical(terms [][]string, k1, b float64) *lexical {
	lex := &lexical{
		K1:       k1,
		B:        b,
		DocLens:  make([]int, len(terms)),
		Postings: make(map[string][]posting),
	}
	total := 0
	for doc, toks := range terms {
		lex.DocLens[doc] = len(toks)
		total += len(toks)
		tf := make(map[string]int, len(toks))
		order := make([]string, 0, len(toks))
		for _, t := range toks {
			if tf[t] == 0 {
				order = append(order, t)
			}
			tf[t]++
		}
		// documents are visited in order, so postings stay sorted by doc
		for _, t := range order {
			lex.Postings[t] = append(lex.Postings[t], posting{Doc: doc, TF: tf[t]})
		}
	}
	if len(terms) > 0 {
		lex.AvgDocLen = float64(total) / float64(len(terms))
	}
	return lex
}

func (l *lexical) idf(df int) float64 {
	n := float64(len(l.DocLens))
	d := float64(df)
	return math.Log(1 + (n-d+0.5)/(d+0.5))
}

// scores returns the BM25 score of every document for the query terms.
// Repeated query terms count once.
func (l *lexical) scores(query []string) []float64 {
	out := make([]float64, len(l.DocLens))
	avg := l.AvgDocLen
	if avg == 0 {
		avg = 1
	}
	seen := make(map[string]struct{}, len(query))
	for _, t := range query {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		plist := l.Postings[t]
		if len(plist) == 0 {
			continue
		}
		idf := l.idf(len(plist))
		for _, p := range plist {
			tf := float64(p.TF)
			norm := l.K1 * (1 - l.B + l.B*float64(l.DocLens[p.Doc])/avg)
			out[p.Doc] += idf * tf * (l.K1 + 1) / (tf + norm)
		}
	}
	return out
}
