// Package crawler loads the text of a website by following links from a
// root URL up to a bounded depth.
package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const defaultMaxBody = 4 << 20

// Document is the extracted text of one fetched page.
type Document struct {
	URL  string
	Text string
}

// Loader walks same-site links depth first, in document order.
// MaxDepth 1 loads only the root page; values below 1 are treated as 1.
type Loader struct {
	Client   *http.Client
	MaxDepth int
	MaxBody  int64
	Logger   *slog.Logger
}

func NewLoader(maxDepth int, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		Client:   &http.Client{Timeout: 30 * time.Second},
		MaxDepth: maxDepth,
		MaxBody:  defaultMaxBody,
		Logger:   logger,
	}
}

// Load fetches root and its descendants. Pages that fail to load are logged
// and skipped; only an invalid root or a cancelled context is an error.
func (l *Loader) Load(ctx context.Context, root string) ([]Document, error) {
	base, err := url.Parse(root)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid root url %q", root)
	}
	base.Fragment = ""

	depth := max(l.MaxDepth, 1)
	visited := map[string]bool{}
	var docs []Document

	var walk func(u *url.URL, level int) error
	walk = func(u *url.URL, level int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := u.String()
		if visited[key] || level >= depth {
			return nil
		}
		visited[key] = true

		doc, err := l.fetch(ctx, key)
		if err != nil {
			l.Logger.Warn("crawl: unable to load page", "url", key, "error", err)
			return nil
		}

		links := childLinks(doc, u, base)
		doc.Find("script, style, noscript").Remove()
		if text := normalizeText(doc.Text()); text != "" {
			docs = append(docs, Document{URL: key, Text: text})
		}

		for _, link := range links {
			if err := walk(link, level+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(base, 0); err != nil {
		return docs, err
	}
	return docs, nil
}

func (l *Loader) fetch(ctx context.Context, u string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; prepdocs/1.0)")

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("unsupported content type %q", ct)
	}

	limit := l.MaxBody
	if limit <= 0 {
		limit = defaultMaxBody
	}
	return goquery.NewDocumentFromReader(io.LimitReader(resp.Body, limit))
}

// childLinks resolves the page's anchors against page and keeps those under base.
func childLinks(doc *goquery.Document, page, base *url.URL) []*url.URL {
	var out []*url.URL
	seen := map[string]bool{}
	prefix := base.String()
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := page.ResolveReference(ref)
		abs.Fragment = ""
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		s2 := abs.String()
		if !strings.HasPrefix(s2, prefix) || seen[s2] {
			return
		}
		seen[s2] = true
		out = append(out, abs)
	})
	return out
}

// normalizeText collapses runs of blank lines and trims each line.
func normalizeText(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
