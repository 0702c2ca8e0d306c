package objectclient

import (
	"context"
	"io"
	"time"
)

// ObjectClient defines interactions with S3 or any object storage. A client
// is bound to a single bucket.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, key string) error
	DeleteFiles(ctx context.Context, keys []string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	GetObjectReader(ctx context.Context, key string) (io.ReadCloser, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	ObjectURL(key string) string
}
