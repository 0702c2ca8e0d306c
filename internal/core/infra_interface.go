package core

import (
	"context"
	"iter"

	"github.com/markdave123-py/prepdocs/internal/models"
)

// BlobManager mirrors originals and derived artifacts in object storage.
type BlobManager interface {
	// Upload stores the original and returns addressable URLs of image assets
	// derived from it (empty when the file produced none). It sets file.URL.
	Upload(ctx context.Context, file *models.File) ([]string, error)
	// Remove deletes the original stored for path and its derived artifacts.
	Remove(ctx context.Context, path string) error
	// RemoveAll wipes every object the manager owns.
	RemoveAll(ctx context.Context) error
}

// BlobLister is the narrow view of object storage used by cleanup tooling.
type BlobLister interface {
	ListNames(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// ListStrategy enumerates candidate files (add) or already indexed paths (remove).
type ListStrategy interface {
	List(ctx context.Context) iter.Seq2[*models.File, error]
	ListPaths(ctx context.Context) iter.Seq2[string, error]
}

// SearchQuery filters index documents. Empty fields match everything.
// With SoleOwner set, only documents whose oids are exactly [OID] match.
type SearchQuery struct {
	SourceFile string
	OID        string
	SoleOwner  bool
	Top        int
}

// SearchHit is the identity of a matched document plus its ACL owner list.
type SearchHit struct {
	ID   string
	OIDs []string
}

// SearchResult carries one page of hits and the exact total match count.
type SearchResult struct {
	Hits  []SearchHit
	Count int
}

// IndexSchema describes the fields the search index must provide.
type IndexSchema struct {
	Name           string
	Analyzer       string
	UseACLs        bool
	EmbeddingDim   int
	ImageVectorDim int
}

// SearchBackend is the storage engine behind the search manager.
type SearchBackend interface {
	EnsureIndex(ctx context.Context, schema IndexSchema) error
	Upsert(ctx context.Context, docs []models.IndexDocument) error
	Search(ctx context.Context, q SearchQuery) (SearchResult, error)
	Delete(ctx context.Context, ids []string) error
	DeleteAll(ctx context.Context) error
}

// AnalyzerProvisioner creates the document analyzer used during parsing.
type AnalyzerProvisioner interface {
	CreateAnalyzer(ctx context.Context) error
}
