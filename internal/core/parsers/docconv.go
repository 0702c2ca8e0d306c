package parsers

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/prepdocs/internal/models"
)

var docconvMimeTypes = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
	".rtf":  "application/rtf",
	".html": "text/html",
	".htm":  "text/html",
	".xml":  "text/xml",
}

// DocconvParser extracts text with sajari/docconv. The document is converted
// as a whole and emitted as a single page.
type DocconvParser struct {
	mimeType       string
	useReadability bool
}

func NewDocconvParser(mimeType string, useReadability bool) *DocconvParser {
	return &DocconvParser{mimeType: mimeType, useReadability: useReadability}
}

// newDocconvParsers returns one parser per supported office/markup extension.
func newDocconvParsers(useReadability bool) map[string]*DocconvParser {
	out := make(map[string]*DocconvParser, len(docconvMimeTypes))
	for ext, mime := range docconvMimeTypes {
		out[ext] = NewDocconvParser(mime, useReadability)
	}
	return out
}

func (e *DocconvParser) Parse(ctx context.Context, content io.Reader) iter.Seq2[models.Page, error] {
	return func(yield func(models.Page, error) bool) {
		res, err := docconv.Convert(content, e.mimeType, e.useReadability)
		if err != nil {
			yield(models.Page{}, fmt.Errorf("docconv: extraction failed for content type %q: %w", e.mimeType, err))
			return
		}
		if err := ctx.Err(); err != nil {
			yield(models.Page{}, err)
			return
		}

		var lines []string
		for _, line := range strings.Split(res.Body, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			return
		}
		yield(models.Page{Index: 0, Offset: 0, Text: strings.Join(lines, "\n")}, nil)
	}
}
