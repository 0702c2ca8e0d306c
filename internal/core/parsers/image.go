package parsers

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/markdave123-py/prepdocs/internal/core"
	"github.com/markdave123-py/prepdocs/internal/models"
)

var imageMimeTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
}

// ImageParser asks an ImageDescriber for a description of the image and
// emits it as the page text.
type ImageParser struct {
	describer core.ImageDescriber
	mimeType  string
}

func NewImageParser(describer core.ImageDescriber, mimeType string) *ImageParser {
	return &ImageParser{describer: describer, mimeType: mimeType}
}

func (p *ImageParser) Parse(ctx context.Context, content io.Reader) iter.Seq2[models.Page, error] {
	return func(yield func(models.Page, error) bool) {
		data, err := io.ReadAll(content)
		if err != nil {
			yield(models.Page{}, fmt.Errorf("read image: %w", err))
			return
		}
		desc, err := p.describer.Describe(ctx, p.mimeType, data)
		if err != nil {
			yield(models.Page{}, fmt.Errorf("describe image: %w", err))
			return
		}
		desc = strings.TrimSpace(desc)
		if desc == "" {
			return
		}
		yield(models.Page{
			Index:  0,
			Text:   desc,
			Images: []models.PageImage{{MimeType: p.mimeType, Data: data}},
		}, nil)
	}
}
