package searchindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/markdave123-py/prepdocs/internal/core"
	"github.com/markdave123-py/prepdocs/internal/models"
)

// ErrIndexNotReady is returned when the index is used before EnsureIndex.
var ErrIndexNotReady = errors.New("search index not created")

const deletePage = 1000

// BleveBackend keeps index documents in a local bleve index. An empty path
// keeps the index in memory.
type BleveBackend struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	index bleve.Index
}

func NewBleveBackend(path string, logger *slog.Logger) *BleveBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &BleveBackend{path: path, logger: logger}
}

// NewMemBackend returns an in-memory backend, used for dry runs and tests.
func NewMemBackend(logger *slog.Logger) *BleveBackend {
	return NewBleveBackend("", logger)
}

// EnsureIndex opens the index at path, creating it from schema when missing.
func (b *BleveBackend) EnsureIndex(_ context.Context, schema core.IndexSchema) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index != nil {
		return nil
	}

	if b.path == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping(schema))
		if err != nil {
			return fmt.Errorf("create in-memory index: %w", err)
		}
		b.index = idx
		return nil
	}

	idx, err := bleve.Open(b.path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(b.path, buildIndexMapping(schema))
		if err != nil {
			return fmt.Errorf("create index %s: %w", b.path, err)
		}
		b.logger.Info("search index created", "index", schema.Name, "path", b.path)
	} else if err != nil {
		return fmt.Errorf("open index %s: %w", b.path, err)
	} else {
		b.logger.Info("search index already exists", "index", schema.Name, "path", b.path)
	}
	b.index = idx
	return nil
}

func buildIndexMapping(schema core.IndexSchema) mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false

	for _, name := range []string{"sourcefile", "sourcepage", "category", "oids", "groups", "owner"} {
		f := bleve.NewKeywordFieldMapping()
		f.Analyzer = keyword.Name
		f.Store = true
		f.IncludeInAll = false
		docMapping.AddFieldMappingsAt(name, f)
	}

	content := bleve.NewTextFieldMapping()
	content.Analyzer = contentAnalyzer(schema.Analyzer)
	content.Store = false
	docMapping.AddFieldMappingsAt("content", content)

	// The full document, including vectors, kept for retrieval only.
	source := bleve.NewTextFieldMapping()
	source.Index = false
	source.Store = true
	source.IncludeInAll = false
	docMapping.AddFieldMappingsAt("source", source)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

func contentAnalyzer(name string) string {
	if strings.HasPrefix(strings.ToLower(name), "en.") || strings.EqualFold(name, "en") {
		return en.AnalyzerName
	}
	return standard.Name
}

func (b *BleveBackend) ready() (bleve.Index, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.index == nil {
		return nil, ErrIndexNotReady
	}
	return b.index, nil
}

func (b *BleveBackend) Upsert(_ context.Context, docs []models.IndexDocument) error {
	idx, err := b.ready()
	if err != nil {
		return err
	}
	batch := idx.NewBatch()
	for i := range docs {
		d := &docs[i]
		raw, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encode %s: %w", d.ID, err)
		}
		fields := map[string]interface{}{
			"content":    d.Content,
			"sourcefile": d.SourceFile,
			"sourcepage": d.SourcePage,
			"category":   d.Category,
			"oids":       d.OIDs,
			"groups":     d.Groups,
			"source":     string(raw),
		}
		// owner is only set for single-owner documents.
		if len(d.OIDs) == 1 {
			fields["owner"] = d.OIDs[0]
		}
		if err := batch.Index(d.ID, fields); err != nil {
			return fmt.Errorf("index %s: %w", d.ID, err)
		}
	}
	return idx.Batch(batch)
}

func (b *BleveBackend) Search(ctx context.Context, q core.SearchQuery) (core.SearchResult, error) {
	idx, err := b.ready()
	if err != nil {
		return core.SearchResult{}, err
	}

	var filters []query.Query
	if q.SourceFile != "" {
		tq := bleve.NewTermQuery(q.SourceFile)
		tq.SetField("sourcefile")
		filters = append(filters, tq)
	}
	if q.OID != "" {
		tq := bleve.NewTermQuery(q.OID)
		tq.SetField("oids")
		if q.SoleOwner {
			tq.SetField("owner")
		}
		filters = append(filters, tq)
	}
	var combined query.Query = bleve.NewMatchAllQuery()
	if len(filters) > 0 {
		combined = bleve.NewConjunctionQuery(filters...)
	}

	top := q.Top
	if top <= 0 {
		top = 50
	}
	req := bleve.NewSearchRequestOptions(combined, top, 0, false)
	req.Fields = []string{"oids"}
	req.SortBy([]string{"_id"})

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return core.SearchResult{}, fmt.Errorf("search failed: %w", err)
	}

	out := core.SearchResult{Count: int(res.Total), Hits: make([]core.SearchHit, 0, len(res.Hits))}
	for _, hit := range res.Hits {
		out.Hits = append(out.Hits, core.SearchHit{ID: hit.ID, OIDs: stringsField(hit.Fields["oids"])})
	}
	return out, nil
}

// stringsField normalises a stored multi-value field; bleve returns a bare
// string when only one value was indexed.
func stringsField(v interface{}) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Document returns the stored document for id.
func (b *BleveBackend) Document(ctx context.Context, id string) (models.IndexDocument, bool, error) {
	idx, err := b.ready()
	if err != nil {
		return models.IndexDocument{}, false, err
	}
	iq := bleve.NewDocIDQuery([]string{id})
	req := bleve.NewSearchRequestOptions(iq, 1, 0, false)
	req.Fields = []string{"source"}
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return models.IndexDocument{}, false, err
	}
	if len(res.Hits) == 0 {
		return models.IndexDocument{}, false, nil
	}
	raw, _ := res.Hits[0].Fields["source"].(string)
	var doc models.IndexDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return models.IndexDocument{}, false, fmt.Errorf("decode %s: %w", id, err)
	}
	return doc, true, nil
}

func (b *BleveBackend) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	idx, err := b.ready()
	if err != nil {
		return err
	}
	batch := idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return idx.Batch(batch)
}

// DeleteAll removes every document, one page at a time.
func (b *BleveBackend) DeleteAll(ctx context.Context) error {
	idx, err := b.ready()
	if err != nil {
		return err
	}
	for {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), deletePage, 0, false)
		res, err := idx.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("list documents: %w", err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := idx.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := idx.Batch(batch); err != nil {
			return err
		}
	}
}

// Count returns the number of indexed documents.
func (b *BleveBackend) Count() (int, error) {
	idx, err := b.ready()
	if err != nil {
		return 0, err
	}
	n, err := idx.DocCount()
	return int(n), err
}

func (b *BleveBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index == nil {
		return nil
	}
	err := b.index.Close()
	b.index = nil
	return err
}

// Destroy closes the index and removes its files.
func (b *BleveBackend) Destroy() error {
	if err := b.Close(); err != nil {
		return err
	}
	if b.path == "" {
		return nil
	}
	return os.RemoveAll(b.path)
}

var _ core.SearchBackend = (*BleveBackend)(nil)
