package searchindex

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/prepdocs/internal/core"
	"github.com/markdave123-py/prepdocs/internal/models"
)

var testSchema = core.IndexSchema{Name: "test", Analyzer: "en.microsoft", UseACLs: true}

func newMem(t *testing.T) *BleveBackend {
	t.Helper()
	b := NewMemBackend(nil)
	require.NoError(t, b.EnsureIndex(context.Background(), testSchema))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func docs(file string, n int, oids ...string) []models.IndexDocument {
	out := make([]models.IndexDocument, n)
	for i := range out {
		out[i] = models.IndexDocument{
			ID:         fmt.Sprintf("%s-%03d", file, i),
			Content:    fmt.Sprintf("chunk %d of %s", i, file),
			SourceFile: file,
			SourcePage: file,
			OIDs:       oids,
			Embedding:  []float32{float32(i), 1},
		}
	}
	return out
}

func TestUseBeforeEnsureIndex(t *testing.T) {
	b := NewMemBackend(nil)
	_, err := b.Search(context.Background(), core.SearchQuery{})
	assert.ErrorIs(t, err, ErrIndexNotReady)
}

func TestSearchFiltersAndCounts(t *testing.T) {
	b := newMem(t)
	ctx := context.Background()
	require.NoError(t, b.Upsert(ctx, docs("a.pdf", 5)))
	require.NoError(t, b.Upsert(ctx, docs("b.txt", 3)))

	res, err := b.Search(ctx, core.SearchQuery{SourceFile: "a.pdf", Top: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Count)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "a.pdf-000", res.Hits[0].ID)

	res, err = b.Search(ctx, core.SearchQuery{})
	require.NoError(t, err)
	assert.Equal(t, 8, res.Count)

	res, err = b.Search(ctx, core.SearchQuery{SourceFile: "missing.pdf"})
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.Empty(t, res.Hits)
}

func TestSearchByOwner(t *testing.T) {
	b := newMem(t)
	ctx := context.Background()
	require.NoError(t, b.Upsert(ctx, docs("x.txt", 2, "alice")))
	require.NoError(t, b.Upsert(ctx, docs("y.txt", 1, "alice", "bob")))

	res, err := b.Search(ctx, core.SearchQuery{OID: "alice", Top: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)

	res, err = b.Search(ctx, core.SearchQuery{SourceFile: "y.txt", OID: "bob"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.ElementsMatch(t, []string{"alice", "bob"}, res.Hits[0].OIDs)

	res, err = b.Search(ctx, core.SearchQuery{SourceFile: "x.txt"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, []string{"alice"}, res.Hits[0].OIDs)
}

func TestSearchBySoleOwner(t *testing.T) {
	b := newMem(t)
	ctx := context.Background()
	require.NoError(t, b.Upsert(ctx, docs("x.txt", 2, "alice")))
	require.NoError(t, b.Upsert(ctx, docs("y.txt", 3, "alice", "bob")))
	require.NoError(t, b.Upsert(ctx, docs("z.txt", 1, "bob")))

	res, err := b.Search(ctx, core.SearchQuery{OID: "alice", SoleOwner: true, Top: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	for _, h := range res.Hits {
		assert.Equal(t, []string{"alice"}, h.OIDs)
	}

	res, err = b.Search(ctx, core.SearchQuery{SourceFile: "y.txt", OID: "alice", SoleOwner: true})
	require.NoError(t, err)
	assert.Zero(t, res.Count)
}

func TestUpsertReplacesByID(t *testing.T) {
	b := newMem(t)
	ctx := context.Background()
	require.NoError(t, b.Upsert(ctx, docs("a.pdf", 2)))
	require.NoError(t, b.Upsert(ctx, docs("a.pdf", 2)))

	n, err := b.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	doc, ok, err := b.Document(ctx, "a.pdf-001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "chunk 1 of a.pdf", doc.Content)
	assert.Equal(t, []float32{1, 1}, doc.Embedding)
}

func TestDeleteAndDeleteAll(t *testing.T) {
	b := newMem(t)
	ctx := context.Background()
	require.NoError(t, b.Upsert(ctx, docs("a.pdf", 3)))
	require.NoError(t, b.Upsert(ctx, docs("big.txt", 1200)))

	require.NoError(t, b.Delete(ctx, []string{"a.pdf-000", "a.pdf-002"}))
	res, err := b.Search(ctx, core.SearchQuery{SourceFile: "a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)

	require.NoError(t, b.DeleteAll(ctx))
	n, err := b.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFileBackendReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bleve")
	ctx := context.Background()

	b := NewBleveBackend(path, nil)
	require.NoError(t, b.EnsureIndex(ctx, testSchema))
	require.NoError(t, b.Upsert(ctx, docs("a.pdf", 2)))
	require.NoError(t, b.Close())

	again := NewBleveBackend(path, nil)
	require.NoError(t, again.EnsureIndex(ctx, testSchema))
	n, err := again.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, again.Destroy())
	assert.NoDirExists(t, path)
}
