package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/prepdocs/internal/core"
	"github.com/markdave123-py/prepdocs/internal/core/crawler"
	"github.com/markdave123-py/prepdocs/internal/core/parsers"
	"github.com/markdave123-py/prepdocs/internal/core/searchindex"
	"github.com/markdave123-py/prepdocs/internal/models"
)

// pageParser emits one page per form-feed separated part of the content.
type pageParser struct{}

func (pageParser) Parse(_ context.Context, content io.Reader) iter.Seq2[models.Page, error] {
	return func(yield func(models.Page, error) bool) {
		data, err := io.ReadAll(content)
		if err != nil {
			yield(models.Page{}, err)
			return
		}
		offset := 0
		for i, text := range strings.Split(string(data), "\f") {
			if !yield(models.Page{Index: i, Offset: offset, Text: text}, nil) {
				return
			}
			offset += len([]rune(text))
		}
	}
}

type brokenParser struct{}

func (brokenParser) Parse(context.Context, io.Reader) iter.Seq2[models.Page, error] {
	return func(yield func(models.Page, error) bool) {
		yield(models.Page{}, errors.New("corrupt document"))
	}
}

// pageSplitter keeps each page as a single split.
type pageSplitter struct{}

func (pageSplitter) SplitPages(pages iter.Seq2[models.Page, error]) iter.Seq2[models.SplitPage, error] {
	return func(yield func(models.SplitPage, error) bool) {
		for p, err := range pages {
			if err != nil {
				yield(models.SplitPage{}, err)
				return
			}
			if !yield(models.SplitPage{PageNum: p.Index, Text: p.Text}, nil) {
				return
			}
		}
	}
}

func testRegistry(t *testing.T) *parsers.Registry {
	t.Helper()
	reg, err := parsers.NewRegistry(map[string]parsers.FileProcessor{
		".pdf": {Parser: pageParser{}, Splitter: pageSplitter{}},
		".txt": {Parser: parsers.TextParser{}, Splitter: pageSplitter{}},
		".bad": {Parser: brokenParser{}, Splitter: pageSplitter{}},
	})
	require.NoError(t, err)
	return reg
}

// trackedContent records whether it was closed and can be rewound.
type trackedContent struct {
	*strings.Reader
	closed bool
}

func (c *trackedContent) Close() error {
	c.closed = true
	return nil
}

func newTracked(name, body string) (*models.File, *trackedContent) {
	c := &trackedContent{Reader: strings.NewReader(body)}
	return models.NewFile(name, c), c
}

type fakeLister struct {
	files   []*models.File
	paths   []string
	listErr error
}

func (l *fakeLister) List(context.Context) iter.Seq2[*models.File, error] {
	return func(yield func(*models.File, error) bool) {
		for _, f := range l.files {
			if !yield(f, nil) {
				return
			}
		}
		if l.listErr != nil {
			yield(nil, l.listErr)
		}
	}
}

func (l *fakeLister) ListPaths(context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range l.paths {
			if !yield(p, nil) {
				return
			}
		}
		if l.listErr != nil {
			yield("", l.listErr)
		}
	}
}

type fakeBlobs struct {
	uploaded     []string
	removed      []string
	removedAll   bool
	uploadErr    map[string]error
	removeErr    error
	removeAllErr error
	imageURLs    []string
}

func (b *fakeBlobs) Upload(_ context.Context, f *models.File) ([]string, error) {
	if err := b.uploadErr[f.Filename()]; err != nil {
		return nil, err
	}
	b.uploaded = append(b.uploaded, f.Filename())
	f.URL = "https://blobs/" + f.Filename()
	return b.imageURLs, nil
}

func (b *fakeBlobs) Remove(_ context.Context, path string) error {
	b.removed = append(b.removed, path)
	return b.removeErr
}

func (b *fakeBlobs) RemoveAll(context.Context) error {
	b.removedAll = true
	return b.removeAllErr
}

// countingEmbedder returns [len(text), call] vectors.
type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
	short bool
}

func (e *countingEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	if e.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

type fakeImageEmbedder struct {
	urls [][]string
}

func (e *fakeImageEmbedder) CreateEmbeddings(_ context.Context, urls []string) ([][]float32, error) {
	e.urls = append(e.urls, urls)
	out := make([][]float32, len(urls))
	for i := range urls {
		out[i] = []float32{9, float32(i)}
	}
	return out, nil
}

type fakeLoader struct {
	docs []crawler.Document
	err  error
}

func (l fakeLoader) Load(context.Context, string) ([]crawler.Document, error) {
	return l.docs, l.err
}

type fakeAnalyzer struct {
	calls int
	err   error
}

func (a *fakeAnalyzer) CreateAnalyzer(context.Context) error {
	a.calls++
	return a.err
}

// recordingBackend wraps a bleve memory index and records calls.
type recordingBackend struct {
	*searchindex.BleveBackend
	ensured   int
	upserts   [][]models.IndexDocument
	deleteErr error
	searchErr error
}

func newRecordingBackend(t *testing.T) *recordingBackend {
	t.Helper()
	b := &recordingBackend{BleveBackend: searchindex.NewMemBackend(nil)}
	require.NoError(t, b.BleveBackend.EnsureIndex(context.Background(), core.IndexSchema{Name: "test"}))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func (b *recordingBackend) EnsureIndex(ctx context.Context, s core.IndexSchema) error {
	b.ensured++
	return b.BleveBackend.EnsureIndex(ctx, s)
}

func (b *recordingBackend) Upsert(ctx context.Context, docs []models.IndexDocument) error {
	b.upserts = append(b.upserts, docs)
	return b.BleveBackend.Upsert(ctx, docs)
}

func (b *recordingBackend) Search(ctx context.Context, q core.SearchQuery) (core.SearchResult, error) {
	if b.searchErr != nil {
		return core.SearchResult{}, b.searchErr
	}
	return b.BleveBackend.Search(ctx, q)
}

func (b *recordingBackend) Delete(ctx context.Context, ids []string) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	return b.BleveBackend.Delete(ctx, ids)
}

func (b *recordingBackend) docs() []models.IndexDocument {
	var out []models.IndexDocument
	for _, batch := range b.upserts {
		out = append(out, batch...)
	}
	return out
}

func (b *recordingBackend) count(t *testing.T, sourcefile string) int {
	t.Helper()
	res, err := b.BleveBackend.Search(context.Background(), core.SearchQuery{SourceFile: sourcefile})
	require.NoError(t, err)
	return res.Count
}

func sectionsFor(file *models.File, n int) []models.Section {
	out := make([]models.Section, n)
	for i := range out {
		out[i] = models.Section{File: file, Split: models.SplitPage{PageNum: i % 3, Text: fmt.Sprintf("section %d", i)}}
	}
	return out
}

func noWait(m *SearchManager) *SearchManager {
	m.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return m
}
