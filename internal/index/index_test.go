package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convsearch/internal/domain"
	"convsearch/internal/embedding/tfidf"
	"convsearch/internal/tokenizer"
)

func testDocs() []domain.Document {
	return []domain.Document{
		{ID: "a", Text: "The mystery of the missing cat"},
		{ID: "b", Text: "A cat sat on a hat"},
		{ID: "c", Text: "Space opera among distant stars"},
		{ID: "d", Text: "A quiet mystery in a small village"},
	}
}

func testOptions(t *testing.T) BuildOptions {
	t.Helper()
	tok, err := tokenizer.New("english", nil)
	require.NoError(t, err)
	return BuildOptions{Tokenizer: tok, Embedder: tfidf.NewEmbedder(tok, 64), BatchSize: 2, Workers: 2}
}

type failingEmbedder struct{ domain.Embedder }

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("connection refused")
}

func ids(hits []domain.RankedHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func TestBuild_Errors(t *testing.T) {
	opts := testOptions(t)

	_, err := Build(context.Background(), nil, opts)
	assert.ErrorIs(t, err, domain.ErrEmptyCorpus)

	dup := append(testDocs(), domain.Document{ID: "a", Text: "again"})
	_, err = Build(context.Background(), dup, opts)
	assert.ErrorIs(t, err, domain.ErrInvalidDocument)

	_, err = Build(context.Background(), []domain.Document{{ID: "x"}}, opts)
	assert.ErrorIs(t, err, domain.ErrInvalidDocument)

	opts.Embedder = failingEmbedder{opts.Embedder}
	_, err = Build(context.Background(), testDocs(), opts)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestSearchLexical_BM25Order(t *testing.T) {
	idx, err := Build(context.Background(), testDocs(), testOptions(t))
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Size())

	hits, err := idx.SearchLexical("missing cat", 10)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(hits))
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.Zero(t, hits[2].Score)
	assert.Zero(t, hits[3].Score)

	hits, err = idx.SearchLexical("mystery", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	// "a" is shorter than "d" after stop words are removed
	assert.Equal(t, "a", hits[0].ID)
}

func TestSearchLexical_TiesBrokenByID(t *testing.T) {
	idx, err := Build(context.Background(), testDocs(), testOptions(t))
	require.NoError(t, err)

	hits, err := idx.SearchLexical("zebra", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(hits))

	_, err = idx.SearchLexical("   ", 3)
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
}

func TestBuild_DefaultsBM25Params(t *testing.T) {
	idx, err := Build(context.Background(), testDocs(), testOptions(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultK1, idx.Manifest().K1)
	assert.Equal(t, DefaultB, idx.Manifest().B)
}

func TestSearchLexical_LengthNormalisation(t *testing.T) {
	docs := []domain.Document{
		{ID: "a", Text: "cat dog bird fish"},
		{ID: "b", Text: "cat"},
	}
	opts := testOptions(t)
	opts.LexicalOnly = true

	idx, err := Build(context.Background(), docs, opts)
	require.NoError(t, err)
	hits, err := idx.SearchLexical("cat", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(hits))
	assert.Greater(t, hits[0].Score, hits[1].Score)

	// b=0 turns length normalisation off, so both score alike and the id decides
	zero := 0.0
	opts.B = &zero
	idx, err = Build(context.Background(), docs, opts)
	require.NoError(t, err)
	assert.Equal(t, 0.0, idx.Manifest().B)
	hits, err = idx.SearchLexical("cat", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(hits))
	assert.Equal(t, hits[0].Score, hits[1].Score)
}

func TestBM25_IDF(t *testing.T) {
	lex := buildLexical([][]string{{"x", "y"}, {"x"}, {"z"}}, DefaultK1, DefaultB)
	// ln(1 + (3-2+0.5)/(2+0.5))
	assert.InDelta(t, 0.47000362924573563, lex.idf(2), 1e-12)
	assert.InDelta(t, 4.0/3.0, lex.AvgDocLen, 1e-12)
	assert.Len(t, lex.Postings["x"], 2)
}

func TestSearchVector(t *testing.T) {
	opts := testOptions(t)
	idx, err := Build(context.Background(), testDocs(), opts)
	require.NoError(t, err)

	q, err := opts.Embedder.Embed(context.Background(), []string{"distant stars"})
	require.NoError(t, err)
	hits, err := idx.SearchVector(q[0], 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c", hits[0].ID)
}

func TestLexicalOnly(t *testing.T) {
	opts := testOptions(t)
	opts.Embedder = nil
	opts.LexicalOnly = true
	idx, err := Build(context.Background(), testDocs(), opts)
	require.NoError(t, err)
	assert.True(t, idx.LexicalOnly())

	_, err = idx.SearchVector([]float32{1}, 1)
	assert.ErrorIs(t, err, domain.ErrIndexNotLoaded)

	dir := t.TempDir()
	require.NoError(t, idx.Save(dir))
	_, err = os.Stat(filepath.Join(dir, vectorsFile))
	assert.True(t, os.IsNotExist(err))

	loaded, err := Load(dir, idx.Fingerprint())
	require.NoError(t, err)
	assert.True(t, loaded.LexicalOnly())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	opts := testOptions(t)
	idx, err := Build(context.Background(), testDocs(), opts)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, idx.Save(dir))

	loaded, err := Load(dir, idx.Fingerprint())
	require.NoError(t, err)
	assert.Equal(t, idx.IDs(), loaded.IDs())
	assert.Equal(t, idx.Manifest().Fingerprint, loaded.Manifest().Fingerprint)

	want, err := idx.SearchLexical("quiet mystery", 4)
	require.NoError(t, err)
	got, err := loaded.SearchLexical("quiet mystery", 4)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	q, err := opts.Embedder.Embed(context.Background(), []string{"cat hat"})
	require.NoError(t, err)
	wantV, err := idx.SearchVector(q[0], 4)
	require.NoError(t, err)
	gotV, err := loaded.SearchVector(q[0], 4)
	require.NoError(t, err)
	assert.Equal(t, wantV, gotV)

	doc, ok := loaded.Get("b")
	require.True(t, ok)
	assert.Equal(t, "A cat sat on a hat", doc.Text)
}

func TestLoad_MissingAndStale(t *testing.T) {
	_, err := Load(t.TempDir(), "")
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)

	idx, err := Build(context.Background(), testDocs(), testOptions(t))
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, idx.Save(dir))

	_, err = Load(dir, "deadbeef")
	assert.ErrorIs(t, err, domain.ErrStaleIndex)

	require.NoError(t, os.Remove(filepath.Join(dir, lexicalFile)))
	_, err = Load(dir, idx.Fingerprint())
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestFingerprint(t *testing.T) {
	p := FingerprintParams{K1: DefaultK1, B: DefaultB, Language: "english", Embedder: "tfidf", Dimension: 64}
	base := Fingerprint(testDocs(), p)
	assert.Equal(t, base, Fingerprint(testDocs(), p))

	changed := testDocs()
	changed[1].Text = "A dog sat on a hat"
	assert.NotEqual(t, base, Fingerprint(changed, p))

	p.Dimension = 128
	assert.NotEqual(t, base, Fingerprint(testDocs(), p))
}

func TestBuild_FingerprintMatchesParams(t *testing.T) {
	opts := testOptions(t)
	idx, err := Build(context.Background(), testDocs(), opts)
	require.NoError(t, err)
	want := Fingerprint(testDocs(), FingerprintParams{
		K1: DefaultK1, B: DefaultB, Language: "english",
		Stopwords: opts.Tokenizer.Stopwords(), Embedder: "tfidf", Dimension: 64,
	})
	assert.Equal(t, want, idx.Fingerprint())
}
