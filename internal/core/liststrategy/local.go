package liststrategy

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/markdave123-py/prepdocs/internal/core"
	"github.com/markdave123-py/prepdocs/internal/models"
)

const md5Suffix = ".md5"

// Local lists files matching a glob pattern. Matched directories are
// walked recursively. With change detection on, a "<file>.md5" side file
// records the last ingested hash and unchanged files are skipped. The side
// file is written by the listed file's MarkIngested, so a failed ingest is
// retried on the next run.
type Local struct {
	pattern       string
	skipUnchanged bool
	acls          map[string][]string
	logger        *slog.Logger
}

type LocalOption func(*Local)

// WithChangeDetection toggles the .md5 side-file check (on by default).
func WithChangeDetection(on bool) LocalOption {
	return func(l *Local) { l.skipUnchanged = on }
}

// WithACLs attaches the same access-control lists to every listed file.
func WithACLs(acls map[string][]string) LocalOption {
	return func(l *Local) { l.acls = acls }
}

func WithLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) { l.logger = logger }
}

func NewLocal(pattern string, opts ...LocalOption) *Local {
	l := &Local{pattern: pattern, skipUnchanged: true}
	for _, o := range opts {
		o(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

func (l *Local) List(ctx context.Context) iter.Seq2[*models.File, error] {
	return func(yield func(*models.File, error) bool) {
		for p, err := range l.ListPaths(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			var sum string
			if l.skipUnchanged {
				var unchanged bool
				sum, unchanged, err = l.unchanged(p)
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}
				if unchanged {
					l.logger.Info("skipping file, no changes detected", "path", p)
					continue
				}
			}
			f, err := os.Open(p)
			if err != nil {
				if !yield(nil, fmt.Errorf("open %s: %w", p, err)) {
					return
				}
				continue
			}
			file := models.NewFile(p, f)
			file.ACLs = l.acls
			if sum != "" {
				file.OnIngested = recordHash(p, sum)
			}
			if !yield(file, nil) {
				_ = file.Close()
				return
			}
		}
	}
}

func (l *Local) ListPaths(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		l.walk(ctx, l.pattern, yield)
	}
}

func (l *Local) walk(ctx context.Context, pattern string, yield func(string, error) bool) bool {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return yield("", fmt.Errorf("glob %q: %w", pattern, err))
	}
	for _, p := range matches {
		if err := ctx.Err(); err != nil {
			return yield("", err)
		}
		info, err := os.Stat(p)
		if err != nil {
			if !yield("", fmt.Errorf("stat %s: %w", p, err)) {
				return false
			}
			continue
		}
		if info.IsDir() {
			if !l.walk(ctx, filepath.Join(escapeGlob(p), "*"), yield) {
				return false
			}
			continue
		}
		if strings.HasSuffix(p, md5Suffix) {
			continue
		}
		if !yield(p, nil) {
			return false
		}
	}
	return true
}

// unchanged hashes the file and compares the hash with its side file.
func (l *Local) unchanged(p string) (string, bool, error) {
	sum, err := fileMD5(p)
	if err != nil {
		return "", false, err
	}
	stored, err := os.ReadFile(p + md5Suffix)
	return sum, err == nil && strings.TrimSpace(string(stored)) == sum, nil
}

func recordHash(p, sum string) func() error {
	return func() error {
		if err := os.WriteFile(p+md5Suffix, []byte(sum), 0o644); err != nil {
			return fmt.Errorf("record hash of %s: %w", p, err)
		}
		return nil
	}
}

func fileMD5(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", p, err)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", p, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// escapeGlob quotes glob metacharacters in a literal directory path.
func escapeGlob(p string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(p)
}

var _ core.ListStrategy = (*Local)(nil)
