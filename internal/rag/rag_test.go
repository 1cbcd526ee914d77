package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bossianity/Project-WAPi/internal/googleapi"
)

var vocabulary = []string{"pool", "pet", "parking", "checkin"}

// keywordEmbedder maps text to keyword counts so similarity is predictable.
type keywordEmbedder struct {
	calls int
	err   error
}

func (k *keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	k.calls++
	if k.err != nil {
		return nil, k.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(vocabulary)+1)
		lower := strings.ToLower(t)
		for j, w := range vocabulary {
			v[j] = float32(strings.Count(lower, w))
		}
		v[len(vocabulary)] = 0.01
		out[i] = v
	}
	return out, nil
}

func newIndex(t *testing.T, emb Embedder) *Index {
	t.Helper()
	x, err := OpenMemoryIndex(emb)
	require.NoError(t, err)
	t.Cleanup(func() { x.Close() })
	return x
}

func TestChunkShortText(t *testing.T) {
	assert.Equal(t, []string{"hello"}, Chunk("  hello  ", 1000, 200))
	assert.Nil(t, Chunk("   ", 1000, 200))
}

func TestChunkWindowsOverlap(t *testing.T) {
	text := strings.Repeat("abcdefghij ", 30)
	chunks := Chunk(text, 50, 10)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 50)
	}
	// Consecutive windows share text.
	tail := chunks[0][len(chunks[0])-5:]
	assert.Contains(t, chunks[1], tail)
}

func TestChunkRuneSafe(t *testing.T) {
	text := strings.Repeat("مرحبا", 100)
	for _, c := range Chunk(text, 37, 5) {
		assert.True(t, utf8.ValidString(c))
	}
}

func TestIndexReplaceAndSearch(t *testing.T) {
	x := newIndex(t, &keywordEmbedder{})
	ctx := context.Background()

	_, err := x.Replace(ctx, "faq.txt", "The pool opens at 8am.")
	require.NoError(t, err)
	_, err = x.Replace(ctx, "rules.txt", "One pet per unit. Pet fee applies.")
	require.NoError(t, err)
	_, err = x.Replace(ctx, "parking.txt", "Free parking in the basement.")
	require.NoError(t, err)

	hits, err := x.Search(ctx, "can I bring my pet?", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "rules.txt", hits[0].Source)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestIndexReplaceIsWholesale(t *testing.T) {
	x := newIndex(t, &keywordEmbedder{})
	ctx := context.Background()

	_, err := x.Replace(ctx, "doc", "pool pool pool")
	require.NoError(t, err)
	_, err = x.Replace(ctx, "doc", "parking only")
	require.NoError(t, err)

	n, err := x.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := x.Search(ctx, "pool", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "parking only", hits[0].Content)
}

func TestIndexDeleteSourceIsolatesPrefixes(t *testing.T) {
	x := newIndex(t, &keywordEmbedder{})
	ctx := context.Background()

	_, err := x.Replace(ctx, "data/a", "pool")
	require.NoError(t, err)
	_, err = x.Replace(ctx, "data/a/b", "pet")
	require.NoError(t, err)

	removed, err := x.DeleteSource(ctx, "data/a")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err := x.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIndexEmptyTextClearsSource(t *testing.T) {
	emb := &keywordEmbedder{}
	x := newIndex(t, emb)
	ctx := context.Background()
	_, err := x.Replace(ctx, "doc", "pool")
	require.NoError(t, err)
	n, err := x.Replace(ctx, "doc", "  ")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	count, _ := x.Count()
	assert.Equal(t, 0, count)
}

func TestIndexEmbedFailureKeepsOldChunks(t *testing.T) {
	emb := &keywordEmbedder{}
	x := newIndex(t, emb)
	ctx := context.Background()
	_, err := x.Replace(ctx, "doc", "pool")
	require.NoError(t, err)

	emb.err = errors.New("rate limited")
	_, err = x.Replace(ctx, "doc", "pet")
	assert.Error(t, err)
	count, _ := x.Count()
	assert.Equal(t, 1, count)
}

func TestSearchTextStripsEmphasis(t *testing.T) {
	x := newIndex(t, &keywordEmbedder{})
	ctx := context.Background()
	_, err := x.Replace(ctx, "doc", "**Checkin** is at *3pm* by the pool")
	require.NoError(t, err)
	texts, err := x.SearchText(ctx, "checkin", 1)
	require.NoError(t, err)
	require.Len(t, texts, 1)
	assert.Equal(t, "Checkin is at 3pm by the pool", texts[0])
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestProcessedLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx", ProcessedFileName)
	l := LoadProcessedLog(path)
	l.Set("a.txt", Entry{MTime: 12.5, Status: StatusProcessed})
	require.NoError(t, l.Save())

	again := LoadProcessedLog(path)
	e, ok := again.Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, StatusProcessed, e.Status)
	assert.Equal(t, 12.5, e.MTime)
}

func TestProcessedLogCorruptStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), ProcessedFileName)
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
	assert.Empty(t, LoadProcessedLog(path).Paths())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSyncFolder(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "company_data")
	writeFile(t, filepath.Join(dataDir, "faq.txt"), "pool hours 8-10")
	writeFile(t, filepath.Join(dataDir, "guide.md"), "parking in the basement")
	writeFile(t, filepath.Join(dataDir, ".hidden.txt"), "secret pet policy")
	writeFile(t, filepath.Join(dataDir, "photo.jpg"), "binary")
	writeFile(t, filepath.Join(dataDir, "empty.txt"), "   ")

	emb := &keywordEmbedder{}
	x := newIndex(t, emb)
	log := LoadProcessedLog(filepath.Join(t.TempDir(), ProcessedFileName))
	g := NewIngester(x, log, dataDir, nil)
	ctx := context.Background()

	report, err := g.SyncFolder(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Indexed: 2, Failed: 1}, report)

	e, ok := log.Get(filepath.Join(dataDir, "empty.txt"))
	require.True(t, ok)
	assert.Equal(t, StatusErrorLoading, e.Status)

	report, err = g.SyncFolder(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Unchanged)
	assert.Equal(t, 0, report.Indexed)

	require.NoError(t, os.Remove(filepath.Join(dataDir, "faq.txt")))
	report, err = g.SyncFolder(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	e, _ = log.Get(filepath.Join(dataDir, "faq.txt"))
	assert.Equal(t, StatusRemovedSource, e.Status)
	count, _ := x.Count()
	assert.Equal(t, 1, count)

	report, err = g.SyncFolder(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	_, ok = log.Get(filepath.Join(dataDir, "faq.txt"))
	assert.False(t, ok, "forced reindex clears the log")
}

func TestSyncFolderMissingDir(t *testing.T) {
	g := NewIngester(newIndex(t, &keywordEmbedder{}), LoadProcessedLog(filepath.Join(t.TempDir(), "p.json")), filepath.Join(t.TempDir(), "nope"), nil)
	_, err := g.SyncFolder(context.Background(), false)
	assert.Error(t, err)
}

type fakeDocs struct {
	mimes map[string]string
	text  string
}

func (f *fakeDocs) MimeType(ctx context.Context, id string) (string, error) {
	m, ok := f.mimes[id]
	if !ok {
		return "", errors.New("not found")
	}
	return m, nil
}

func (f *fakeDocs) DocText(ctx context.Context, id string) (string, error) {
	return "doc: " + f.text, nil
}

func (f *fakeDocs) SpreadsheetText(ctx context.Context, id string) (string, error) {
	return "Sheet: Rates\n" + f.text, nil
}

func TestSyncGoogleDocument(t *testing.T) {
	x := newIndex(t, &keywordEmbedder{})
	docs := &fakeDocs{
		mimes: map[string]string{
			"doc1":   googleapi.MimeGoogleDoc,
			"sheet1": googleapi.MimeGoogleSheet,
			"pdf1":   "application/pdf",
		},
		text: "pool",
	}
	g := NewIngester(x, LoadProcessedLog(filepath.Join(t.TempDir(), "p.json")), t.TempDir(), docs)
	ctx := context.Background()

	require.NoError(t, g.SyncGoogleDocument(ctx, "doc1"))
	require.NoError(t, g.SyncGoogleDocument(ctx, "sheet1"))
	require.NoError(t, g.SyncGoogleDocument(ctx, "pdf1"))
	assert.Error(t, g.SyncGoogleDocument(ctx, "missing"))

	count, _ := x.Count()
	assert.Equal(t, 2, count)

	hits, err := x.Search(ctx, "pool", 5)
	require.NoError(t, err)
	var sources []string
	for _, h := range hits {
		sources = append(sources, h.Source)
	}
	assert.ElementsMatch(t, []string{"doc1", "sheet1"}, sources)
}
