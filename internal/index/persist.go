package index

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"convsearch/internal/domain"
	"convsearch/internal/tokenizer"
)

// ManifestVersion is bumped whenever the artifact layout changes.
const ManifestVersion = 1

const (
	manifestFile  = "manifest.yaml"
	stopwordsFile = "stopwords.json"
	lexicalFile   = "lexical.json"
	corpusFile    = "corpus.jsonl"
	vectorsFile   = "vectors.bin"
	idsFile       = "ids.json"
)

// Manifest describes a persisted index. It is written last, so a directory
// without one holds no usable index.
type Manifest struct {
	Version     int       `yaml:"version"`
	Fingerprint string    `yaml:"fingerprint"`
	CreatedAt   time.Time `yaml:"created_at"`
	DocCount    int       `yaml:"doc_count"`
	Dimension   int       `yaml:"dimension"`
	K1          float64   `yaml:"k1"`
	B           float64   `yaml:"b"`
	Language    string    `yaml:"language"`
	Embedder    string    `yaml:"embedder"`
	LexicalOnly bool      `yaml:"lexical_only"`
}

// FingerprintParams is the configuration part of an index fingerprint.
type FingerprintParams struct {
	K1          float64
	B           float64
	Language    string
	Stopwords   []string
	Embedder    string
	Dimension   int
	LexicalOnly bool
}

func (m Manifest) params(stopwords []string) FingerprintParams {
	return FingerprintParams{
		K1:          m.K1,
		B:           m.B,
		Language:    m.Language,
		Stopwords:   stopwords,
		Embedder:    m.Embedder,
		Dimension:   m.Dimension,
		LexicalOnly: m.LexicalOnly,
	}
}

// Fingerprint hashes the corpus ids and texts in order together with the
// build configuration.
func Fingerprint(docs []domain.Document, p FingerprintParams) string {
	h := sha256.New()
	for _, d := range docs {
		io.WriteString(h, d.ID)
		h.Write([]byte{0})
		io.WriteString(h, d.Text)
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "k1=%s;b=%s;lang=%s;", strconv.FormatFloat(p.K1, 'g', -1, 64), strconv.FormatFloat(p.B, 'g', -1, 64), p.Language)
	for _, w := range p.Stopwords {
		io.WriteString(h, w)
		h.Write([]byte{','})
	}
	if !p.LexicalOnly {
		fmt.Fprintf(h, ";emb=%s;dim=%d", p.Embedder, p.Dimension)
	} else {
		io.WriteString(h, ";lexical-only")
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Save writes the index artifacts into dir.
func (i *Index) Save(dir string) error {
	if err := i.save(dir); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistFailure, err)
	}
	return nil
}

func (i *Index) save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	// an old manifest must not describe half-written artifacts
	if err := os.Remove(filepath.Join(dir, manifestFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := writeJSON(filepath.Join(dir, stopwordsFile), i.tok.Stopwords()); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, lexicalFile), i.lex); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, idsFile), i.IDs()); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, corpusFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		for _, d := range i.docs {
			if err := enc.Encode(d); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if i.vec != nil {
		if err := writeFile(filepath.Join(dir, vectorsFile), func(w io.Writer) error {
			buf := make([]byte, 4)
			for _, row := range i.vec.rows {
				for _, x := range row {
					binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
					if _, err := w.Write(buf); err != nil {
						return err
					}
				}
			}
			return nil
		}); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(i.manifest)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644)
}

// ReadManifest reads the manifest of the index stored in dir.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, domain.ErrIndexNotFound
		}
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("index: decode manifest: %w", err)
	}
	return m, nil
}

// Load reads the index stored in dir. It never rebuilds: a missing index
// yields ErrIndexNotFound and a fingerprint other than want yields
// ErrStaleIndex. An empty want accepts any fingerprint.
func Load(dir, want string) (*Index, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("%w: manifest version %d", domain.ErrStaleIndex, m.Version)
	}
	if want != "" && m.Fingerprint != want {
		return nil, fmt.Errorf("%w: have %.12s, want %.12s", domain.ErrStaleIndex, m.Fingerprint, want)
	}

	var stopwords []string
	if err := readJSON(filepath.Join(dir, stopwordsFile), &stopwords); err != nil {
		return nil, err
	}
	if stopwords == nil {
		stopwords = []string{}
	}
	tok, err := tokenizer.New(m.Language, stopwords)
	if err != nil {
		return nil, err
	}
	var lex lexical
	if err := readJSON(filepath.Join(dir, lexicalFile), &lex); err != nil {
		return nil, err
	}
	var ids []string
	if err := readJSON(filepath.Join(dir, idsFile), &ids); err != nil {
		return nil, err
	}
	docs, err := readCorpus(filepath.Join(dir, corpusFile))
	if err != nil {
		return nil, err
	}
	if len(docs) != m.DocCount || len(ids) != m.DocCount || len(lex.DocLens) != m.DocCount {
		return nil, fmt.Errorf("index: artifact sizes disagree with manifest (%d docs)", m.DocCount)
	}
	byID := make(map[string]int, len(docs))
	for n, d := range docs {
		if ids[n] != d.ID {
			return nil, fmt.Errorf("index: id order mismatch at %d", n)
		}
		byID[d.ID] = n
	}
	if lex.Postings == nil {
		lex.Postings = map[string][]posting{}
	}

	idx := &Index{docs: docs, byID: byID, tok: tok, lex: &lex, manifest: m}
	if !m.LexicalOnly {
		rows, err := readVectors(filepath.Join(dir, vectorsFile), m.DocCount, m.Dimension)
		if err != nil {
			return nil, err
		}
		if idx.vec, err = newVectors(m.Dimension, rows); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func writeFile(path string, fill func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := fill(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	return writeFile(path, func(w io.Writer) error { return json.NewEncoder(w).Encode(v) })
}

func readJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return missing(err)
	}
	defer f.Close()
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(v); err != nil {
		return fmt.Errorf("index: decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readCorpus(path string) ([]domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, missing(err)
	}
	defer f.Close()
	dec := json.NewDecoder(bufio.NewReader(f))
	var docs []domain.Document
	for {
		var d domain.Document
		if err := dec.Decode(&d); err != nil {
			if errors.Is(err, io.EOF) {
				return docs, nil
			}
			return nil, fmt.Errorf("index: decode corpus: %w", err)
		}
		docs = append(docs, d)
	}
}

func readVectors(path string, n, dim int) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, missing(err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	buf := make([]byte, 4*dim)
	rows := make([][]float32, n)
	for i := range rows {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("index: read vectors: %w", err)
		}
		row := make([]float32, dim)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
		}
		rows[i] = row
	}
	return rows, nil
}

func missing(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", domain.ErrIndexNotFound, err)
	}
	return err
}
