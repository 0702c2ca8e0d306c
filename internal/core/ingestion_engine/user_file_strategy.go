package ingestion_engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/markdave123-py/prepdocs/internal/core"
	"github.com/markdave123-py/prepdocs/internal/core/parsers"
	"github.com/markdave123-py/prepdocs/internal/models"
)

// UploadUserFileStrategy indexes files uploaded by a signed-in user. The
// file is expected to be stored already; its ACLs scope the documents.
type UploadUserFileStrategy struct {
	search          *SearchManager
	processors      *parsers.Registry
	imageEmbeddings core.ImageEmbeddingProvider
	category        string
	logger          *slog.Logger
}

func NewUploadUserFileStrategy(search *SearchManager, processors *parsers.Registry, imageEmbeddings core.ImageEmbeddingProvider, category string, logger *slog.Logger) *UploadUserFileStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadUserFileStrategy{
		search:          search,
		processors:      processors,
		imageEmbeddings: imageEmbeddings,
		category:        category,
		logger:          logger,
	}
}

// AddFile parses file and indexes its sections. Files without a processor
// are ignored.
func (u *UploadUserFileStrategy) AddFile(ctx context.Context, file *models.File) (int, error) {
	defer file.Close()
	if u.imageEmbeddings != nil {
		u.logger.Warn("image embeddings are not supported for user uploads", "file", file.Filename())
	}
	sections, err := parseFile(ctx, file, u.processors, u.category, false, u.logger)
	if errors.Is(err, core.ErrNoProcessor) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(sections) == 0 {
		return 0, nil
	}
	if err := u.search.UpdateContent(ctx, sections, nil, file.URL, ""); err != nil {
		return 0, err
	}
	return len(sections), nil
}

// RemoveFile removes the documents of filename owned by oid alone.
func (u *UploadUserFileStrategy) RemoveFile(ctx context.Context, filename, oid string) error {
	if filename == "" {
		u.logger.Warn("file name is required to remove a file")
		return nil
	}
	return u.search.RemoveContent(ctx, filename, oid)
}
