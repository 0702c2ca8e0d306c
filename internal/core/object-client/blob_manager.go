package objectclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/markdave123-py/prepdocs/internal/core"
	"github.com/markdave123-py/prepdocs/internal/models"
)

const defaultPresignTTL = time.Hour

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
}

// derivedPage matches per-page artifacts such as "report-3.pdf" or "report-3.png".
var derivedPage = regexp.MustCompile(`^-\d+\.(pdf|png)$`)

// BlobManager stores original documents (and their derived page artifacts)
// in an object store under an optional key prefix.
type BlobManager struct {
	client     ObjectClient
	prefix     string
	presignTTL time.Duration
	logger     *slog.Logger
}

type BlobOption func(*BlobManager)

// WithPrefix stores every object under prefix ("docs/" style).
func WithPrefix(prefix string) BlobOption {
	return func(m *BlobManager) {
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		m.prefix = prefix
	}
}

func WithPresignTTL(ttl time.Duration) BlobOption {
	return func(m *BlobManager) { m.presignTTL = ttl }
}

func WithLogger(l *slog.Logger) BlobOption {
	return func(m *BlobManager) { m.logger = l }
}

func NewBlobManager(client ObjectClient, opts ...BlobOption) *BlobManager {
	m := &BlobManager{client: client, presignTTL: defaultPresignTTL}
	for _, o := range opts {
		o(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Upload stores the original file under its base name and sets file.URL.
// For image files it returns a presigned URL suitable for image embeddings.
func (m *BlobManager) Upload(ctx context.Context, file *models.File) ([]string, error) {
	if err := file.Rewind(); err != nil {
		return nil, fmt.Errorf("upload %s: %w", file.Filename(), err)
	}

	key := m.prefix + file.Filename()
	contentType := mime.TypeByExtension(strings.ToLower(file.Extension()))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url, err := m.client.UploadFile(ctx, key, file.Content, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", file.Filename(), err)
	}
	file.URL = url
	m.logger.Info("uploaded blob", "file", file.Filename(), "key", key)

	if !imageExtensions[strings.ToLower(file.Extension())] {
		return nil, nil
	}
	signed, err := m.client.PresignGet(ctx, key, m.presignTTL)
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}
	return []string{signed}, nil
}

// Remove deletes the object stored for path along with its derived page
// artifacts. An empty path removes everything.
func (m *BlobManager) Remove(ctx context.Context, p string) error {
	if p == "" {
		return m.RemoveAll(ctx)
	}
	base := filepath.Base(p)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	keys, err := m.client.ListKeys(ctx, m.prefix+stem)
	if err != nil {
		return fmt.Errorf("list blobs for %s: %w", base, err)
	}

	var doomed []string
	for _, key := range keys {
		name := strings.TrimPrefix(key, m.prefix)
		if name == base || isDerived(name, stem) {
			doomed = append(doomed, key)
		}
	}
	if len(doomed) == 0 {
		m.logger.Debug("no blobs to remove", "path", p)
		return nil
	}
	if err := m.client.DeleteFiles(ctx, doomed); err != nil {
		return fmt.Errorf("remove blobs for %s: %w", base, err)
	}
	m.logger.Info("removed blobs", "path", p, "count", len(doomed))
	return nil
}

func isDerived(name, stem string) bool {
	rest, ok := strings.CutPrefix(name, stem)
	return ok && derivedPage.MatchString(rest)
}

// RemoveAll deletes every object under the manager prefix.
func (m *BlobManager) RemoveAll(ctx context.Context) error {
	keys, err := m.client.ListKeys(ctx, m.prefix)
	if err != nil {
		return fmt.Errorf("list blobs: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := m.client.DeleteFiles(ctx, keys); err != nil {
		return fmt.Errorf("remove all blobs: %w", err)
	}
	m.logger.Info("removed all blobs", "count", len(keys))
	return nil
}

// ListNames returns object names (prefix-relative) starting with namePrefix.
func (m *BlobManager) ListNames(ctx context.Context, namePrefix string) ([]string, error) {
	keys, err := m.client.ListKeys(ctx, m.prefix+namePrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, m.prefix))
	}
	return names, nil
}

// Delete removes a single object by its prefix-relative name.
func (m *BlobManager) Delete(ctx context.Context, name string) error {
	if name == "" || path.IsAbs(name) {
		return errors.New("invalid blob name")
	}
	return m.client.DeleteFile(ctx, m.prefix+name)
}

var (
	_ core.BlobManager = (*BlobManager)(nil)
	_ core.BlobLister  = (*BlobManager)(nil)
)
