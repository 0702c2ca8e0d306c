package core

import (
	"context"
	"io"
	"iter"

	"github.com/markdave123-py/prepdocs/internal/models"
)

// Parser turns raw content into pages. The sequence is lazy, finite and
// not restartable; consumers must not assume they can range it twice.
type Parser interface {
	Parse(ctx context.Context, content io.Reader) iter.Seq2[models.Page, error]
}

// Splitter turns pages into bounded chunks. Splitting is deterministic:
// the same pages yield the same chunks in the same order.
type Splitter interface {
	SplitPages(pages iter.Seq2[models.Page, error]) iter.Seq2[models.SplitPage, error]
}
