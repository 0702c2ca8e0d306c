package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/markdave123-py/prepdocs/internal/core"
	"github.com/markdave123-py/prepdocs/internal/core/cleanup"
	"github.com/markdave123-py/prepdocs/internal/core/crawler"
	"github.com/markdave123-py/prepdocs/internal/core/parsers"
	"github.com/markdave123-py/prepdocs/internal/models"
)

// URLLoader fetches the documents reachable from a root URL.
type URLLoader interface {
	Load(ctx context.Context, root string) ([]crawler.Document, error)
}

const imagePageWarning = "each page will be split into smaller chunks of text, but images will be of the entire page"

// parseFile runs the processor registered for the file extension. It
// returns core.ErrNoProcessor when there is none.
func parseFile(ctx context.Context, file *models.File, registry *parsers.Registry, category string, imageEmbeddings bool, logger *slog.Logger) ([]models.Section, error) {
	processor, ok := registry.Lookup(file.Extension())
	if !ok {
		logger.Info("skipping file, no parser found", "file", file.Filename())
		return nil, fmt.Errorf("%s: %w %q", file.Filename(), core.ErrNoProcessor, strings.ToLower(file.Extension()))
	}
	logger.Info("ingesting file", "file", file.Filename())
	return split(ctx, processor, file.Content, file, category, imageEmbeddings, logger)
}

// parseURL crawls root and parses the joined page texts with the ".txt"
// processor. The returned file is nil when nothing was fetched.
func parseURL(ctx context.Context, root string, loader URLLoader, registry *parsers.Registry, category string, imageEmbeddings bool, logger *slog.Logger) ([]models.Section, *models.File, error) {
	processor, ok := registry.Lookup(".txt")
	if !ok {
		logger.Info("skipping url, no parser found", "url", root)
		return nil, nil, fmt.Errorf("%s: %w %q", root, core.ErrNoProcessor, ".txt")
	}
	if loader == nil {
		return nil, nil, errors.New("url ingestion requested but no loader is configured")
	}
	logger.Info("ingesting url", "url", root)

	docs, err := loader.Load(ctx, root)
	if err != nil {
		return nil, nil, fmt.Errorf("crawl %s: %w", root, err)
	}
	if len(docs) == 0 {
		logger.Warn("no content extracted", "url", root)
		return nil, nil, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	fullText := strings.Join(texts, "\n\n")

	file := models.NewFile(cleanup.SanitizeURLFilename(root), io.NopCloser(strings.NewReader(fullText)))
	sections, err := split(ctx, processor, strings.NewReader(fullText), file, category, imageEmbeddings, logger)
	if err != nil {
		return nil, file, err
	}
	return sections, file, nil
}

func split(ctx context.Context, processor parsers.FileProcessor, content io.Reader, file *models.File, category string, imageEmbeddings bool, logger *slog.Logger) ([]models.Section, error) {
	pages := processor.Parser.Parse(ctx, content)
	if imageEmbeddings {
		logger.Warn(imagePageWarning, "file", file.Filename())
	}

	var sections []models.Section
	for sp, err := range processor.Splitter.SplitPages(pages) {
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file.Filename(), err)
		}
		sections = append(sections, models.Section{Split: sp, File: file, Category: category})
	}
	return sections, nil
}
