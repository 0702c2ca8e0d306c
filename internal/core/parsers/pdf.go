package parsers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/prepdocs/internal/models"
)

// PDFParser decodes PDF documents one page at a time.
type PDFParser struct{}

func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

func (p *PDFParser) Parse(ctx context.Context, content io.Reader) iter.Seq2[models.Page, error] {
	return func(yield func(models.Page, error) bool) {
		ra, size, err := readerAt(content)
		if err != nil {
			yield(models.Page{}, fmt.Errorf("read pdf: %w", err))
			return
		}
		if size == 0 {
			yield(models.Page{}, fmt.Errorf("empty PDF content"))
			return
		}
		r, err := pdf.NewReader(ra, size)
		if err != nil {
			yield(models.Page{}, fmt.Errorf("open pdf: %w", err))
			return
		}

		offset := 0
		for i := 1; i <= r.NumPage(); i++ {
			if err := ctx.Err(); err != nil {
				yield(models.Page{}, err)
				return
			}
			page := r.Page(i)
			if page.V.IsNull() {
				continue
			}
			text, err := page.GetPlainText(nil)
			if err != nil {
				yield(models.Page{}, fmt.Errorf("pdf page %d: %w", i, err))
				return
			}
			text = strings.TrimSpace(text)
			if !yield(models.Page{Index: i - 1, Offset: offset, Text: text}, nil) {
				return
			}
			offset += utf8.RuneCountInString(text)
		}
	}
}

// readerAt avoids buffering when the content is already seekable on disk.
func readerAt(content io.Reader) (io.ReaderAt, int64, error) {
	if f, ok := content.(*os.File); ok {
		info, err := f.Stat()
		if err != nil {
			return nil, 0, err
		}
		return f, info.Size(), nil
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}
