package liststrategy

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/markdave123-py/prepdocs/internal/core"
	objectclient "github.com/markdave123-py/prepdocs/internal/core/object-client"
	"github.com/markdave123-py/prepdocs/internal/models"
)

// S3 lists objects under a prefix of a data-lake bucket. Each object is
// downloaded to a temporary file when its turn comes, so the content can be
// read again for blob upload.
type S3 struct {
	client objectclient.ObjectClient
	prefix string
	acls   map[string][]string
	logger *slog.Logger
}

func NewS3(client objectclient.ObjectClient, prefix string, acls map[string][]string, logger *slog.Logger) *S3 {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3{client: client, prefix: strings.TrimPrefix(prefix, "/"), acls: acls, logger: logger}
}

func (s *S3) ListPaths(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		keys, err := s.client.ListKeys(ctx, s.prefix)
		if err != nil {
			yield("", fmt.Errorf("list %q: %w", s.prefix, err))
			return
		}
		for _, key := range keys {
			if strings.HasSuffix(key, "/") || strings.HasSuffix(key, md5Suffix) {
				continue
			}
			if !yield(key, nil) {
				return
			}
		}
	}
}

func (s *S3) List(ctx context.Context) iter.Seq2[*models.File, error] {
	return func(yield func(*models.File, error) bool) {
		for key, err := range s.ListPaths(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			file, err := s.open(ctx, key)
			if err != nil {
				s.logger.Warn("could not download object", "key", key, "err", err)
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(file, nil) {
				_ = file.Close()
				return
			}
		}
	}
}

func (s *S3) open(ctx context.Context, key string) (*models.File, error) {
	body, err := s.client.GetObjectReader(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	tmp, err := os.CreateTemp("", "prepdocs-*"+path.Ext(key))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, err
	}

	file := models.NewFile(key, &tempFile{File: tmp})
	file.ACLs = s.acls
	file.URL = s.client.ObjectURL(key)
	return file, nil
}

// tempFile removes itself from disk when closed.
type tempFile struct {
	*os.File
}

func (t *tempFile) Close() error {
	err := t.File.Close()
	if rmErr := os.Remove(t.File.Name()); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

var _ core.ListStrategy = (*S3)(nil)
