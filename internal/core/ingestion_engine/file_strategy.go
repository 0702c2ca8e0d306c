package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/prepdocs/internal/config"
	"github.com/markdave123-py/prepdocs/internal/core"
	"github.com/markdave123-py/prepdocs/internal/core/parsers"
	"github.com/markdave123-py/prepdocs/internal/models"
)

var errNoListStrategy = errors.New("no list strategy configured")

// Deps are the collaborators of a FileStrategy. BlobManager, ImageEmbeddings,
// Analyzer and Loader are optional.
type Deps struct {
	ListStrategy    core.ListStrategy
	BlobManager     core.BlobManager
	Search          *SearchManager
	Processors      *parsers.Registry
	ImageEmbeddings core.ImageEmbeddingProvider
	Analyzer        core.AnalyzerProvisioner
	Loader          URLLoader
	Logger          *slog.Logger
}

// Options selects what one run does.
type Options struct {
	Action   models.DocumentAction
	Category string
	// URL, when set, is crawled and indexed before the listed files.
	URL string

	UseContentUnderstanding      bool
	ContentUnderstandingEndpoint string
	CredentialKind               string
}

// FileStrategy ingests files from a list strategy into the search index and
// object storage, or removes them again.
type FileStrategy struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

func NewFileStrategy(deps Deps, opts Options) (*FileStrategy, error) {
	if deps.Search == nil {
		return nil, errors.New("file strategy needs a search manager")
	}
	if opts.Action == models.Add && deps.Processors == nil {
		return nil, errors.New("file strategy needs a processor registry to add files")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStrategy{deps: deps, opts: opts, logger: logger}, nil
}

// Setup creates the search index and, when enabled, the content
// understanding analyzer. Configuration errors are returned before anything
// is created.
func (s *FileStrategy) Setup(ctx context.Context) error {
	if s.opts.UseContentUnderstanding {
		if s.opts.ContentUnderstandingEndpoint == "" {
			return core.ErrMissingEndpoint
		}
		if s.opts.CredentialKind == config.CredentialKey {
			return core.ErrKeyCredentialUnsupported
		}
		if s.deps.Analyzer == nil {
			return errors.New("content understanding is enabled but no analyzer client is configured")
		}
	}

	if err := s.deps.Search.CreateIndex(ctx); err != nil {
		return err
	}
	if s.opts.UseContentUnderstanding {
		if err := s.deps.Analyzer.CreateAnalyzer(ctx); err != nil {
			return fmt.Errorf("create content understanding analyzer: %w", err)
		}
	}
	return nil
}

// Run executes the configured action. Per-unit failures are reported in the
// result; the error is set only when enumeration itself failed.
func (s *FileStrategy) Run(ctx context.Context) (models.RunResult, error) {
	res := models.RunResult{Action: s.opts.Action.String()}
	var err error

	switch s.opts.Action {
	case models.Add:
		err = s.runAdd(ctx, &res)
	case models.Remove:
		err = s.runRemove(ctx, &res)
	case models.RemoveAll:
		res.Outcomes = append(res.Outcomes, s.removeAll(ctx))
	default:
		err = fmt.Errorf("unsupported document action %s", s.opts.Action)
	}
	return res, err
}

func (s *FileStrategy) runAdd(ctx context.Context, res *models.RunResult) error {
	if s.opts.URL != "" {
		res.Outcomes = append(res.Outcomes, s.addURL(ctx))
	}
	if s.deps.ListStrategy == nil {
		return nil
	}
	for file, err := range s.deps.ListStrategy.List(ctx) {
		if err != nil {
			return fmt.Errorf("list files: %w", err)
		}
		res.Outcomes = append(res.Outcomes, s.addFile(ctx, file))
	}
	return nil
}

func (s *FileStrategy) addFile(ctx context.Context, file *models.File) (out models.Outcome) {
	out.Name = file.Filename()
	defer func() {
		if out.Success {
			if err := file.MarkIngested(); err != nil {
				s.logger.Warn("could not record ingested file", "file", out.Name, "err", err)
			}
		}
		if err := file.Close(); err != nil {
			s.logger.Warn("could not close file", "file", out.Name, "err", err)
		}
		s.report(out)
	}()

	sections, err := parseFile(ctx, file, s.deps.Processors, s.opts.Category, s.deps.ImageEmbeddings != nil, s.logger)
	if errors.Is(err, core.ErrNoProcessor) {
		return skipped(out, models.SkipNoProcessor)
	}
	if err != nil {
		return failed(out, err)
	}
	if len(sections) == 0 {
		return skipped(out, models.SkipNoContent)
	}

	var imageURLs []string
	if s.deps.BlobManager != nil {
		if imageURLs, err = s.deps.BlobManager.Upload(ctx, file); err != nil {
			return failed(out, err)
		}
	}

	var imageVecs [][]float32
	if s.deps.ImageEmbeddings != nil && len(imageURLs) > 0 {
		if imageVecs, err = s.deps.ImageEmbeddings.CreateEmbeddings(ctx, imageURLs); err != nil {
			return failed(out, fmt.Errorf("image embeddings: %w", err))
		}
	}

	if err := s.deps.Search.UpdateContent(ctx, sections, imageVecs, file.URL, ""); err != nil {
		return failed(out, err)
	}
	out.Success = true
	out.Sections = len(sections)
	return out
}

// addURL indexes crawled content. Crawled text is not mirrored to object
// storage, so no image embeddings are computed for it.
func (s *FileStrategy) addURL(ctx context.Context) (out models.Outcome) {
	out.Name = s.opts.URL
	defer func() { s.report(out) }()

	sections, file, err := parseURL(ctx, s.opts.URL, s.deps.Loader, s.deps.Processors, s.opts.Category, s.deps.ImageEmbeddings != nil, s.logger)
	if file != nil {
		defer file.Close()
	}
	if errors.Is(err, core.ErrNoProcessor) {
		return skipped(out, models.SkipNoProcessor)
	}
	if err != nil {
		return failed(out, err)
	}
	if len(sections) == 0 {
		return skipped(out, models.SkipNoContent)
	}

	if err := s.deps.Search.UpdateContent(ctx, sections, nil, file.URL, s.opts.URL); err != nil {
		return failed(out, err)
	}
	out.Success = true
	out.Sections = len(sections)
	return out
}

func (s *FileStrategy) runRemove(ctx context.Context, res *models.RunResult) error {
	if s.deps.ListStrategy == nil {
		return errNoListStrategy
	}
	for path, err := range s.deps.ListStrategy.ListPaths(ctx) {
		if err != nil {
			return fmt.Errorf("list paths: %w", err)
		}
		res.Outcomes = append(res.Outcomes, s.removePath(ctx, path))
	}
	return nil
}

// removePath always attempts both the blob and the index removal.
func (s *FileStrategy) removePath(ctx context.Context, path string) models.Outcome {
	out := models.Outcome{Name: path}
	var errs []error
	if s.deps.BlobManager != nil {
		if err := s.deps.BlobManager.Remove(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("remove blob: %w", err))
		}
	}
	if err := s.deps.Search.RemoveContent(ctx, path, ""); err != nil {
		errs = append(errs, fmt.Errorf("remove index content: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		out = failed(out, err)
	} else {
		out.Success = true
	}
	s.report(out)
	return out
}

func (s *FileStrategy) removeAll(ctx context.Context) models.Outcome {
	out := models.Outcome{Name: "*"}
	var errs []error
	if s.deps.BlobManager != nil {
		if err := s.deps.BlobManager.RemoveAll(ctx); err != nil {
			errs = append(errs, fmt.Errorf("remove all blobs: %w", err))
		}
	}
	if err := s.deps.Search.RemoveContent(ctx, "", ""); err != nil {
		errs = append(errs, fmt.Errorf("remove all index content: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		out = failed(out, err)
	} else {
		out.Success = true
	}
	s.report(out)
	return out
}

func skipped(out models.Outcome, reason string) models.Outcome {
	out.Success, out.Skipped, out.Reason = true, true, reason
	return out
}

func failed(out models.Outcome, err error) models.Outcome {
	out.Success = false
	out.Error = err.Error()
	return out
}

func (s *FileStrategy) report(out models.Outcome) {
	attrs := []any{"name", out.Name, "success", out.Success, "sections", out.Sections}
	switch {
	case out.Error != "":
		s.logger.Error("unit processed", append(attrs, "err", out.Error)...)
	case out.Skipped:
		s.logger.Info("unit skipped", append(attrs, "reason", out.Reason)...)
	default:
		s.logger.Info("unit processed", attrs...)
	}
}
