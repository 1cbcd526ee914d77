// Package rag keeps an embedding index of company documents and answers
// similarity queries over it.
package rag

import (
	"container/heap"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"regexp"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/oklog/ulid/v2"
)

// DefaultTopK is the number of chunks returned for a general question.
const DefaultTopK = 5

const (
	chunkPrefix = "chunk/"
	embedBatch  = 64
)

// ErrNoEmbedder is returned when the index was opened without an embedder.
var ErrNoEmbedder = errors.New("rag: no embedder configured")

// Embedder turns texts into vectors, one per input in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Record is one stored chunk.
type Record struct {
	ID      string    `json:"id"`
	Source  string    `json:"source"`
	Content string    `json:"content"`
	Vector  []float32 `json:"vector"`
}

// Hit is a search result.
type Hit struct {
	Source  string
	Content string
	Score   float64
}

// Index stores chunk records in badger under chunk/{source}/{id}.
type Index struct {
	db       *badger.DB
	embedder Embedder

	// writes serializes Replace and DeleteSource so a source is never
	// half-replaced under a concurrent writer.
	writes sync.Mutex
}

// OpenIndex opens or creates the index in dir.
func OpenIndex(dir string, embedder Embedder) (*Index, error) {
	return open(badger.DefaultOptions(dir).WithLogger(nil), embedder)
}

// OpenMemoryIndex creates an index that lives only in memory.
func OpenMemoryIndex(embedder Embedder) (*Index, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil), embedder)
}

func open(opts badger.Options, embedder Embedder) (*Index, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger index: %w", err)
	}
	return &Index{db: db, embedder: embedder}, nil
}

// Close releases the underlying database.
func (x *Index) Close() error {
	return x.db.Close()
}

func sourcePrefix(source string) []byte {
	return []byte(chunkPrefix + url.PathEscape(source) + "/")
}

// Replace removes every chunk of source and indexes text in its place.
// Empty text leaves the source with no chunks.
func (x *Index) Replace(ctx context.Context, source, text string) (int, error) {
	chunks := Chunk(text, DefaultChunkSize, DefaultChunkOverlap)
	var records []Record
	if len(chunks) > 0 {
		if x.embedder == nil {
			return 0, ErrNoEmbedder
		}
		vectors, err := x.embedAll(ctx, chunks)
		if err != nil {
			return 0, err
		}
		records = make([]Record, len(chunks))
		for i, c := range chunks {
			records[i] = Record{ID: ulid.Make().String(), Source: source, Content: c, Vector: vectors[i]}
		}
	}

	x.writes.Lock()
	defer x.writes.Unlock()

	if _, err := x.deleteLocked(source); err != nil {
		return 0, err
	}
	wb := x.db.NewWriteBatch()
	defer wb.Cancel()
	prefix := sourcePrefix(source)
	for _, r := range records {
		val, err := json.Marshal(r)
		if err != nil {
			return 0, fmt.Errorf("encode chunk: %w", err)
		}
		key := append(append([]byte(nil), prefix...), r.ID...)
		if err := wb.Set(key, val); err != nil {
			return 0, fmt.Errorf("write chunk: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush chunks: %w", err)
	}
	slog.Info("Index.Replace: source indexed", "source", source, "chunks", len(records))
	return len(records), nil
}

func (x *Index) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatch {
		end := start + embedBatch
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := x.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embed chunks: expected %d vectors, got %d", end-start, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// DeleteSource removes every chunk of source and reports how many were
// removed.
func (x *Index) DeleteSource(ctx context.Context, source string) (int, error) {
	x.writes.Lock()
	defer x.writes.Unlock()
	return x.deleteLocked(source)
}

func (x *Index) deleteLocked(source string) (int, error) {
	prefix := sourcePrefix(source)
	var keys [][]byte
	err := x.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("list chunks: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	wb := x.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("delete chunk: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush deletes: %w", err)
	}
	slog.Debug("Index.DeleteSource: chunks removed", "source", source, "count", len(keys))
	return len(keys), nil
}

// Reset drops every stored chunk.
func (x *Index) Reset() error {
	return x.db.DropPrefix([]byte(chunkPrefix))
}

// Count returns the number of stored chunks.
func (x *Index) Count() (int, error) {
	n := 0
	err := x.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(chunkPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Search returns the k chunks most similar to query, best first.
func (x *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if x.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if k <= 0 {
		k = DefaultTopK
	}
	vecs, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vecs))
	}
	qv := vecs[0]

	h := &hitHeap{}
	err = x.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				slog.Warn("Index.Search: skipping unreadable chunk", "key", string(it.Item().Key()), "error", err)
				continue
			}
			heap.Push(h, Hit{Source: rec.Source, Content: rec.Content, Score: CosineSimilarity(qv, rec.Vector)})
			if h.Len() > k {
				heap.Pop(h)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}

	out := make([]Hit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Hit)
	}
	return out, nil
}

// SearchText returns the contents of the top k chunks with markdown
// emphasis removed.
func (x *Index) SearchText(ctx context.Context, query string, k int) ([]string, error) {
	hits, err := x.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = StripEmphasis(h.Content)
	}
	return out, nil
}

var emphasisPattern = regexp.MustCompile(`\*+\s*(.*?)\s*\*+`)

// StripEmphasis turns "**bold**" and "*em*" into plain text.
func StripEmphasis(s string) string {
	return emphasisPattern.ReplaceAllString(s, "$1")
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// for mismatched or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// hitHeap is a min-heap on Score so the weakest of the current top k is
// evicted first.
type hitHeap []Hit

func (h hitHeap) Len() int            { return len(h) }
func (h hitHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h hitHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x interface{}) { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
