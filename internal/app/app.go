// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/markdave123-py/prepdocs/internal/config"
	"github.com/markdave123-py/prepdocs/internal/core"
	"github.com/markdave123-py/prepdocs/internal/core/cleanup"
	"github.com/markdave123-py/prepdocs/internal/core/crawler"
	db "github.com/markdave123-py/prepdocs/internal/core/database"
	"github.com/markdave123-py/prepdocs/internal/core/ingestion_engine"
	"github.com/markdave123-py/prepdocs/internal/core/liststrategy"
	"github.com/markdave123-py/prepdocs/internal/core/llm"
	"github.com/markdave123-py/prepdocs/internal/core/mediadescriber"
	objectclient "github.com/markdave123-py/prepdocs/internal/core/object-client"
	"github.com/markdave123-py/prepdocs/internal/core/parsers"
	"github.com/markdave123-py/prepdocs/internal/core/searchindex"
)

// App holds the collaborators shared by every command of one process.
// Optional collaborators stay nil when their feature is switched off.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Backend    core.SearchBackend
	Search     *ingestion_engine.SearchManager
	Processors *parsers.Registry
	Blobs      *objectclient.BlobManager

	imageEmbeddings core.ImageEmbeddingProvider
	analyzer        core.AnalyzerProvisioner
	closers         []func() error
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{Config: cfg, Logger: logger}
	if err := a.init(appCtx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	backend, err := a.newBackend(ctx)
	if err != nil {
		return err
	}
	a.Backend = backend
	if c, ok := backend.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	a.Logger.Info("search backend ready", "backend", cfg.SearchBackend, "index", cfg.IndexName)

	var embedder core.EmbeddingProvider
	if cfg.EmbeddingsEnabled() {
		g, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedBatchSize, cfg.EmbedRPS)
		if err != nil {
			return fmt.Errorf("couldn't initialize the embedder, %w", err)
		}
		a.closers = append(a.closers, g.Close)
		embedder = g
	}

	procOpts := parsers.Options{TargetTokens: cfg.TargetTokens, OverlapTokens: cfg.OverlapTokens}
	if cfg.DescribeImages {
		d, err := llm.NewGeminiDescriber(ctx, cfg.AIAPIKey, cfg.GenModel)
		if err != nil {
			return fmt.Errorf("couldn't initialize the image describer, %w", err)
		}
		a.closers = append(a.closers, d.Close)
		procOpts.Describer = d
	}
	a.Processors, err = parsers.NewRegistry(parsers.DefaultProcessors(procOpts))
	if err != nil {
		return err
	}

	if !cfg.SkipBlobs {
		client, err := objectclient.NewS3Client(ctx, a.s3Options(cfg.BucketName))
		if err != nil {
			return err
		}
		a.Blobs = objectclient.NewBlobManager(client,
			objectclient.WithPrefix(cfg.BlobPrefix),
			objectclient.WithLogger(a.Logger),
		)
		a.Logger.Info("object storage ready", "bucket", cfg.BucketName)
	}

	if cfg.ImageEmbedURL != "" {
		a.imageEmbeddings = llm.NewHTTPImageEmbedder(cfg.ImageEmbedURL, cfg.ImageEmbedKey, nil)
	}

	if cfg.UseContentUnderstanding && cfg.ContentUnderstandingEndpoint != "" {
		cu, err := mediadescriber.New(cfg.ContentUnderstandingEndpoint, cfg.ContentUnderstandingToken,
			mediadescriber.WithLogger(a.Logger))
		if err != nil {
			return err
		}
		a.analyzer = cu
	}

	a.Search = ingestion_engine.NewSearchManager(a.Backend, embedder, ingestion_engine.SearchOptions{
		IndexName:           cfg.IndexName,
		Analyzer:            cfg.SearchAnalyzer,
		UseACLs:             cfg.UseACLs,
		EmbeddingDim:        cfg.EmbedDim,
		SearchImages:        a.imageEmbeddings != nil,
		ImageVectorDim:      cfg.ImageEmbedDim,
		EmbedBatchSize:      cfg.EmbedBatchSize,
		RemoveBackoff:       cfg.RemoveBackoff,
		MaxRemoveIterations: cfg.RemoveMaxIterations,
	}, a.Logger)
	return nil
}

func (a *App) newBackend(ctx context.Context) (core.SearchBackend, error) {
	cfg := a.Config
	switch cfg.SearchBackend {
	case config.BackendPostgres:
		return db.NewPGSearchBackend(ctx, db.Options{
			DatabaseURL: cfg.DatabaseURL,
			SslCertPath: cfg.SslCertPath,
			IndexName:   cfg.IndexName,
		}, a.Logger)
	case config.BackendBleve:
		return searchindex.NewBleveBackend(cfg.BlevePath, a.Logger), nil
	case config.BackendMemory:
		return searchindex.NewMemBackend(a.Logger), nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.SearchBackend)
}

func (a *App) s3Options(bucket string) objectclient.S3Options {
	return objectclient.S3Options{
		AccessKey: a.Config.AwsAccessKey,
		SecretKey: a.Config.AwsSecretKey,
		Region:    a.Config.AwsRegion,
		Bucket:    bucket,
		Endpoint:  a.Config.S3Endpoint,
	}
}

// LocalFiles lists files on disk matching pattern.
func (a *App) LocalFiles(pattern string, changeDetection bool, acls map[string][]string) core.ListStrategy {
	return liststrategy.NewLocal(pattern,
		liststrategy.WithChangeDetection(changeDetection),
		liststrategy.WithACLs(acls),
		liststrategy.WithLogger(a.Logger),
	)
}

// DataLakeFiles lists the objects of the configured data lake bucket.
func (a *App) DataLakeFiles(ctx context.Context, acls map[string][]string) (core.ListStrategy, error) {
	if a.Config.DataLakeBucket == "" {
		return nil, errors.New("DATALAKE_BUCKET not set")
	}
	client, err := objectclient.NewS3Client(ctx, a.s3Options(a.Config.DataLakeBucket))
	if err != nil {
		return nil, err
	}
	return liststrategy.NewS3(client, a.Config.DataLakePath, acls, a.Logger), nil
}

// FileStrategy builds the orchestrator for one run. list may be nil for
// RemoveAll and for URL-only ingestion.
func (a *App) FileStrategy(list core.ListStrategy, opts ingestion_engine.Options, maxDepth int) (*ingestion_engine.FileStrategy, error) {
	opts.UseContentUnderstanding = a.Config.UseContentUnderstanding
	opts.ContentUnderstandingEndpoint = a.Config.ContentUnderstandingEndpoint
	opts.CredentialKind = a.Config.CredentialKind

	deps := ingestion_engine.Deps{
		ListStrategy:    list,
		Search:          a.Search,
		Processors:      a.Processors,
		ImageEmbeddings: a.imageEmbeddings,
		Analyzer:        a.analyzer,
		Logger:          a.Logger,
	}
	if a.Blobs != nil {
		deps.BlobManager = a.Blobs
	}
	if opts.URL != "" {
		deps.Loader = crawler.NewLoader(maxDepth, a.Logger)
	}
	return ingestion_engine.NewFileStrategy(deps, opts)
}

// UserFiles builds the strategy that indexes files uploaded by users.
func (a *App) UserFiles(category string) *ingestion_engine.UploadUserFileStrategy {
	return ingestion_engine.NewUploadUserFileStrategy(a.Search, a.Processors, a.imageEmbeddings, category, a.Logger)
}

// Reconciler builds the index and blob cleanup routine.
func (a *App) Reconciler() *cleanup.Reconciler {
	var blobs core.BlobLister
	if a.Blobs != nil {
		blobs = a.Blobs
	}
	return cleanup.NewReconciler(a.Backend, blobs, a.Config.RemoveBackoff, a.Config.RemoveMaxIterations, a.Logger)
}

// Close releases the collaborators in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
