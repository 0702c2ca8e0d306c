package parsers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/markdave123-py/prepdocs/internal/models"
)

// TextParser emits the whole content as a single page.
type TextParser struct{}

func (TextParser) Parse(ctx context.Context, content io.Reader) iter.Seq2[models.Page, error] {
	return func(yield func(models.Page, error) bool) {
		data, err := io.ReadAll(content)
		if err != nil {
			yield(models.Page{}, fmt.Errorf("read text: %w", err))
			return
		}
		if err := ctx.Err(); err != nil {
			yield(models.Page{}, err)
			return
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return
		}
		yield(models.Page{Index: 0, Offset: 0, Text: text}, nil)
	}
}

// JSONParser validates the document and emits its compacted text as one page.
type JSONParser struct{}

func (JSONParser) Parse(ctx context.Context, content io.Reader) iter.Seq2[models.Page, error] {
	return func(yield func(models.Page, error) bool) {
		data, err := io.ReadAll(content)
		if err != nil {
			yield(models.Page{}, fmt.Errorf("read json: %w", err))
			return
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, bytes.TrimSpace(data)); err != nil {
			yield(models.Page{}, fmt.Errorf("parse json: %w", err))
			return
		}
		if buf.Len() == 0 {
			return
		}
		yield(models.Page{Index: 0, Offset: 0, Text: buf.String()}, nil)
	}
}
