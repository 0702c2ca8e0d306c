package ingestion_engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/prepdocs/internal/core"
	"github.com/markdave123-py/prepdocs/internal/models"
)

// MaxBatchSize is the number of sections written to the index per upsert,
// and the page size used while removing content.
const MaxBatchSize = 1000

// SearchOptions tunes the SearchManager.
//
// EmbedBatchSize: sections per embedding request (e.g., 16).
// EmbedWorkers:   embedding requests in flight for one upsert batch.
// RemoveBackoff:  wait between delete passes, deletions are not visible at once.
// MaxRemoveIterations: upper bound on delete passes for one RemoveContent call.
type SearchOptions struct {
	IndexName           string
	Analyzer            string
	UseACLs             bool
	EmbeddingDim        int
	SearchImages        bool
	ImageVectorDim      int
	EmbedBatchSize      int
	EmbedWorkers        int
	RemoveBackoff       time.Duration
	MaxRemoveIterations int
}

// SearchManager creates the index and keeps its content in step with the
// ingested files.
type SearchManager struct {
	backend  core.SearchBackend
	embedder core.EmbeddingProvider
	opts     SearchOptions
	logger   *slog.Logger

	sleep func(context.Context, time.Duration) error
}

// NewSearchManager returns a manager over backend. A nil embedder indexes
// sections without text vectors.
func NewSearchManager(backend core.SearchBackend, embedder core.EmbeddingProvider, opts SearchOptions, logger *slog.Logger) *SearchManager {
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 16
	}
	if opts.EmbedWorkers <= 0 {
		opts.EmbedWorkers = 4
	}
	if opts.MaxRemoveIterations <= 0 {
		opts.MaxRemoveIterations = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchManager{backend: backend, embedder: embedder, opts: opts, logger: logger, sleep: core.Sleep}
}

// CreateIndex makes sure the index exists. Calling it again is a no-op.
func (m *SearchManager) CreateIndex(ctx context.Context) error {
	schema := core.IndexSchema{
		Name:     m.opts.IndexName,
		Analyzer: m.opts.Analyzer,
		UseACLs:  m.opts.UseACLs,
	}
	if m.embedder != nil {
		schema.EmbeddingDim = m.opts.EmbeddingDim
	}
	if m.opts.SearchImages {
		schema.ImageVectorDim = m.opts.ImageVectorDim
	}
	m.logger.Info("ensuring search index", "index", m.opts.IndexName)
	if err := m.backend.EnsureIndex(ctx, schema); err != nil {
		return fmt.Errorf("create index %s: %w", m.opts.IndexName, err)
	}
	return nil
}

// UpdateContent indexes sections in batches of MaxBatchSize. imageEmbeddings
// is indexed by page number; every chunk of a page shares its page vector.
func (m *SearchManager) UpdateContent(ctx context.Context, sections []models.Section, imageEmbeddings [][]float32, url, sourceURL string) error {
	for start := 0; start < len(sections); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(sections))
		batch := sections[start:end]

		docs := make([]models.IndexDocument, len(batch))
		for i, s := range batch {
			doc := models.IndexDocument{
				ID:         fmt.Sprintf("%s-page-%d", s.File.FilenameToID(), start+i),
				Content:    s.Split.Text,
				Category:   s.Category,
				SourcePage: SourcePage(s.File.Filename(), s.Split.PageNum),
				SourceFile: s.File.Filename(),
				StorageURL: url,
				SourceURL:  sourceURL,
			}
			if m.opts.UseACLs {
				doc.OIDs = s.File.ACLs["oids"]
				doc.Groups = s.File.ACLs["groups"]
			}
			if p := s.Split.PageNum; p >= 0 && p < len(imageEmbeddings) {
				doc.ImageEmbedding = imageEmbeddings[p]
			}
			docs[i] = doc
		}

		if m.embedder != nil {
			if err := m.embed(ctx, docs); err != nil {
				return err
			}
		}
		if err := m.backend.Upsert(ctx, docs); err != nil {
			return fmt.Errorf("upsert sections %d-%d: %w", start, end, err)
		}
		m.logger.Debug("indexed sections", "from", start, "to", end)
	}
	return nil
}

// embed fills docs[i].Embedding, running up to EmbedWorkers requests at once.
func (m *SearchManager) embed(ctx context.Context, docs []models.IndexDocument) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.EmbedWorkers)

	size := m.opts.EmbedBatchSize
	for start := 0; start < len(docs); start += size {
		part := docs[start:min(start+size, len(docs))]
		g.Go(func() error {
			texts := make([]string, len(part))
			for i := range part {
				texts[i] = part[i].Content
			}
			vecs, err := m.embedder.EmbedTexts(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed: %w", err)
			}
			if len(vecs) != len(part) {
				return fmt.Errorf("embed: %w: got %d want %d", core.ErrEmbeddingCount, len(vecs), len(part))
			}
			for i := range part {
				part[i].Embedding = vecs[i]
			}
			return nil
		})
	}
	return g.Wait()
}

// RemoveContent deletes the documents of path, or of every file when path
// is empty. With ownerID set only documents owned by ownerID alone go.
func (m *SearchManager) RemoveContent(ctx context.Context, path, ownerID string) error {
	m.logger.Info("removing sections from search index", "path", path, "index", m.opts.IndexName)

	if path == "" && ownerID == "" {
		if err := m.backend.DeleteAll(ctx); err != nil {
			return fmt.Errorf("remove all sections: %w", err)
		}
		return nil
	}

	q := core.SearchQuery{OID: ownerID, SoleOwner: ownerID != "", Top: MaxBatchSize}
	if path != "" {
		q.SourceFile = filepath.Base(path)
	}

	for i := 0; i < m.opts.MaxRemoveIterations; i++ {
		res, err := m.backend.Search(ctx, q)
		if err != nil {
			return fmt.Errorf("search sections of %q: %w", path, err)
		}
		if res.Count == 0 {
			return nil
		}

		ids := make([]string, 0, len(res.Hits))
		for _, h := range res.Hits {
			ids = append(ids, h.ID)
		}
		if err := m.backend.Delete(ctx, ids); err != nil {
			return fmt.Errorf("delete sections of %q: %w", path, err)
		}
		m.logger.Info("removed sections from index", "path", path, "count", len(ids))

		if err := m.sleep(ctx, m.opts.RemoveBackoff); err != nil {
			return err
		}
	}
	return fmt.Errorf("remove %q: %w after %d passes", path, core.ErrRemoveNotConverged, m.opts.MaxRemoveIterations)
}

// SourcePage is the citation of a page: "file.pdf#page=N" (1-based) for
// PDFs, the bare filename otherwise.
func SourcePage(filename string, page int) string {
	if strings.ToLower(filepath.Ext(filename)) == ".pdf" {
		return fmt.Sprintf("%s#page=%d", filepath.Base(filename), page+1)
	}
	return filepath.Base(filename)
}
