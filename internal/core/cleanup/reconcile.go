package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/markdave123-py/prepdocs/internal/core"
)

const (
	DefaultPageSize      = 1000
	DefaultBackoff       = 2 * time.Second
	DefaultMaxIterations = 50
)

// Status is the terminal state of one reconciliation.
type Status int

const (
	// Converged: the index reports no documents left and the blob phase ran.
	Converged Status = iota
	// NotConverged: documents were still reported after MaxIterations passes.
	NotConverged
	// Failed: a query or delete returned an error.
	Failed
	// Skipped: there was nothing to reconcile.
	Skipped
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case NotConverged:
		return "not_converged"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result describes what RemoveIndexBlob did.
type Result struct {
	Filename     string   `json:"filename"`
	Status       Status   `json:"status"`
	Iterations   int      `json:"iterations"`
	DeletedDocs  int      `json:"deletedDocs"`
	DeletedBlobs []string `json:"deletedBlobs,omitempty"`
	Err          error    `json:"-"`
}

// Reconciler purges every trace of a filename from the search index and
// then deletes its derived page blobs. Deletions in the index may not be
// visible right away, so it polls until the index reports zero matches.
type Reconciler struct {
	Index         core.SearchBackend
	Blobs         core.BlobLister
	Backoff       time.Duration
	MaxIterations int
	PageSize      int
	Logger        *slog.Logger

	sleep func(context.Context, time.Duration) error
}

func NewReconciler(index core.SearchBackend, blobs core.BlobLister, backoff time.Duration, maxIterations int, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		Index:         index,
		Blobs:         blobs,
		Backoff:       backoff,
		MaxIterations: maxIterations,
		Logger:        logger,
	}
}

// RemoveIndexBlob never returns an error; failures are logged and reported
// in the result.
func (r *Reconciler) RemoveIndexBlob(ctx context.Context, filename string) Result {
	logger := r.logger()
	res := Result{Filename: filename}
	if strings.TrimSpace(filename) == "" {
		res.Status = Skipped
		return res
	}

	valid, _ := IsValidFileName(filename)
	name := filename
	if valid {
		name = filepath.Base(filename)
	}
	res.Filename = name

	converged := false
	for res.Iterations < r.maxIterations() {
		res.Iterations++
		found, err := r.Index.Search(ctx, core.SearchQuery{SourceFile: name, Top: r.pageSize()})
		if err != nil {
			return r.fail(res, fmt.Errorf("query index: %w", err))
		}
		if found.Count == 0 {
			converged = true
			break
		}
		ids := make([]string, 0, len(found.Hits))
		for _, h := range found.Hits {
			ids = append(ids, h.ID)
		}
		if err := r.Index.Delete(ctx, ids); err != nil {
			return r.fail(res, fmt.Errorf("delete documents: %w", err))
		}
		res.DeletedDocs += len(ids)
		logger.Debug("deleted index batch", "file", name, "count", len(ids), "remaining", found.Count-len(ids))

		if err := r.wait(ctx); err != nil {
			return r.fail(res, err)
		}
	}
	if !converged {
		res.Status = NotConverged
		logger.Warn("index did not converge", "file", name, "iterations", res.Iterations)
		return res
	}

	if valid && r.Blobs != nil {
		deleted, err := r.removeDerivedBlobs(ctx, name)
		res.DeletedBlobs = deleted
		if err != nil {
			return r.fail(res, err)
		}
	}
	res.Status = Converged
	logger.Info("file purged", "file", name, "documents", res.DeletedDocs, "blobs", len(res.DeletedBlobs))
	return res
}

// removeDerivedBlobs deletes "<stem>-<N>.pdf" blobs and nothing else.
func (r *Reconciler) removeDerivedBlobs(ctx context.Context, name string) ([]string, error) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(stem) + `-\d+\.pdf$`)

	names, err := r.Blobs.ListNames(ctx, stem)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	var (
		deleted []string
		errs    []error
	)
	for _, b := range names {
		if !pattern.MatchString(b) {
			continue
		}
		if err := r.Blobs.Delete(ctx, b); err != nil {
			errs = append(errs, fmt.Errorf("delete blob %s: %w", b, err))
			continue
		}
		deleted = append(deleted, b)
	}
	return deleted, errors.Join(errs...)
}

func (r *Reconciler) fail(res Result, err error) Result {
	res.Status = Failed
	res.Err = err
	r.logger().Error("reconciliation failed", "file", res.Filename, "err", err)
	return res
}

func (r *Reconciler) wait(ctx context.Context) error {
	if r.sleep != nil {
		return r.sleep(ctx, r.Backoff)
	}
	return core.Sleep(ctx, r.Backoff)
}

func (r *Reconciler) maxIterations() int {
	if r.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return r.MaxIterations
}

func (r *Reconciler) pageSize() int {
	if r.PageSize <= 0 {
		return DefaultPageSize
	}
	return r.PageSize
}

func (r *Reconciler) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
