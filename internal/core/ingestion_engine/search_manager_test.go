package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/prepdocs/internal/core"
	"github.com/markdave123-py/prepdocs/internal/models"
)

func TestSourcePage(t *testing.T) {
	assert.Equal(t, "a.pdf#page=1", SourcePage("a.pdf", 0))
	assert.Equal(t, "a.PDF#page=3", SourcePage("dir/a.PDF", 2))
	assert.Equal(t, "notes.txt", SourcePage("dir/notes.txt", 4))
}

func TestCreateIndexSchema(t *testing.T) {
	backend := newRecordingBackend(t)
	m := NewSearchManager(backend, nil, SearchOptions{IndexName: "idx", EmbeddingDim: 768}, nil)
	require.NoError(t, m.CreateIndex(context.Background()))
	require.NoError(t, m.CreateIndex(context.Background()))
	assert.Equal(t, 2, backend.ensured)
}

func TestUpdateContentBuildsDocuments(t *testing.T) {
	backend := newRecordingBackend(t)
	emb := &countingEmbedder{}
	m := NewSearchManager(backend, emb, SearchOptions{UseACLs: true, EmbedBatchSize: 2}, nil)

	file, _ := newTracked("docs/a.pdf", "")
	file.ACLs = map[string][]string{"oids": {"u1"}, "groups": {"g1"}}
	sections := sectionsFor(file, 5)
	sections[0].Category = "manual"
	images := [][]float32{{0.5}, {1.5}}

	require.NoError(t, m.UpdateContent(context.Background(), sections, images, "https://blobs/a.pdf", ""))

	docs := backend.docs()
	require.Len(t, docs, 5)
	assert.Equal(t, 3, emb.calls)
	for i, d := range docs {
		assert.Equal(t, file.FilenameToID()+"-page-"+strconv.Itoa(i), d.ID)
		assert.Equal(t, "a.pdf", d.SourceFile)
		assert.Equal(t, "https://blobs/a.pdf", d.StorageURL)
		assert.Equal(t, []string{"u1"}, d.OIDs)
		assert.Equal(t, []string{"g1"}, d.Groups)
		assert.Equal(t, []float32{float32(len(d.Content)), 1}, d.Embedding)
	}
	assert.Equal(t, "manual", docs[0].Category)
	assert.Equal(t, "a.pdf#page=1", docs[0].SourcePage)
	assert.Equal(t, "a.pdf#page=3", docs[2].SourcePage)
	assert.Equal(t, []float32{0.5}, docs[0].ImageEmbedding)
	assert.Equal(t, []float32{1.5}, docs[1].ImageEmbedding)
	assert.Nil(t, docs[2].ImageEmbedding, "page 2 has no image vector")
	assert.Equal(t, []float32{0.5}, docs[3].ImageEmbedding, "chunks share their page vector")
}

func TestUpdateContentIsIdempotent(t *testing.T) {
	backend := newRecordingBackend(t)
	m := NewSearchManager(backend, nil, SearchOptions{}, nil)
	file, _ := newTracked("a.txt", "")

	for range 2 {
		require.NoError(t, m.UpdateContent(context.Background(), sectionsFor(file, 3), nil, "", ""))
	}
	assert.Equal(t, 3, backend.count(t, "a.txt"))
	assert.Nil(t, backend.docs()[0].Embedding)
	assert.Nil(t, backend.docs()[0].OIDs, "acls off")
}

func TestUpdateContentBatches(t *testing.T) {
	backend := newRecordingBackend(t)
	m := NewSearchManager(backend, nil, SearchOptions{}, nil)
	file, _ := newTracked("big.txt", "")

	require.NoError(t, m.UpdateContent(context.Background(), sectionsFor(file, 2500), nil, "", ""))
	require.Len(t, backend.upserts, 3)
	assert.Len(t, backend.upserts[0], 1000)
	assert.Len(t, backend.upserts[2], 500)
	assert.Equal(t, file.FilenameToID()+"-page-2499", backend.upserts[2][499].ID)
}

func TestUpdateContentEmbeddingErrors(t *testing.T) {
	file, _ := newTracked("a.txt", "")

	backend := newRecordingBackend(t)
	m := NewSearchManager(backend, &countingEmbedder{err: errors.New("quota")}, SearchOptions{}, nil)
	err := m.UpdateContent(context.Background(), sectionsFor(file, 3), nil, "", "")
	assert.ErrorContains(t, err, "quota")
	assert.Empty(t, backend.upserts)

	m = NewSearchManager(backend, &countingEmbedder{short: true}, SearchOptions{}, nil)
	err = m.UpdateContent(context.Background(), sectionsFor(file, 3), nil, "", "")
	assert.ErrorIs(t, err, core.ErrEmbeddingCount)
}

func TestRemoveContent(t *testing.T) {
	ctx := context.Background()
	backend := newRecordingBackend(t)
	m := noWait(NewSearchManager(backend, nil, SearchOptions{UseACLs: true}, nil))

	a, _ := newTracked("a.txt", "")
	b, _ := newTracked("b.txt", "")
	require.NoError(t, m.UpdateContent(ctx, sectionsFor(a, 1200), nil, "", ""))
	require.NoError(t, m.UpdateContent(ctx, sectionsFor(b, 2), nil, "", ""))

	require.NoError(t, m.RemoveContent(ctx, "/some/dir/a.txt", ""))
	assert.Zero(t, backend.count(t, "a.txt"))
	assert.Equal(t, 2, backend.count(t, "b.txt"))

	require.NoError(t, m.RemoveContent(ctx, "", ""))
	assert.Zero(t, backend.count(t, ""))
}

func TestRemoveContentByOwner(t *testing.T) {
	ctx := context.Background()
	backend := newRecordingBackend(t)
	m := noWait(NewSearchManager(backend, nil, SearchOptions{UseACLs: true}, nil))

	require.NoError(t, backend.Upsert(ctx, []models.IndexDocument{
		{ID: "1", SourceFile: "u.txt", OIDs: []string{"alice"}},
		{ID: "2", SourceFile: "u.txt", OIDs: []string{"alice"}},
		{ID: "3", SourceFile: "u.txt", OIDs: []string{"alice", "bob"}},
		{ID: "4", SourceFile: "u.txt", OIDs: []string{"bob"}},
	}))

	require.NoError(t, m.RemoveContent(ctx, "u.txt", "alice"))
	res, err := backend.Search(ctx, core.SearchQuery{SourceFile: "u.txt"})
	require.NoError(t, err)
	var ids []string
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []string{"3", "4"}, ids)
}

func TestRemoveContentByOwnerPastSharedDocuments(t *testing.T) {
	ctx := context.Background()
	backend := newRecordingBackend(t)
	m := noWait(NewSearchManager(backend, nil, SearchOptions{UseACLs: true, MaxRemoveIterations: 5}, nil))

	var batch []models.IndexDocument
	for i := 0; i < 1100; i++ {
		batch = append(batch, models.IndexDocument{ID: fmt.Sprintf("a-%04d", i), SourceFile: "s.txt", OIDs: []string{"u1", "u2"}})
	}
	for i := 0; i < 5; i++ {
		batch = append(batch, models.IndexDocument{ID: fmt.Sprintf("z-%d", i), SourceFile: "s.txt", OIDs: []string{"u1"}})
	}
	require.NoError(t, backend.Upsert(ctx, batch))

	require.NoError(t, m.RemoveContent(ctx, "s.txt", "u1"))

	res, err := backend.Search(ctx, core.SearchQuery{SourceFile: "s.txt", OID: "u1", SoleOwner: true})
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.Equal(t, 1100, backend.count(t, "s.txt"))
}

func TestRemoveContentFailures(t *testing.T) {
	ctx := context.Background()
	file, _ := newTracked("a.txt", "")

	t.Run("delete error", func(t *testing.T) {
		backend := newRecordingBackend(t)
		m := noWait(NewSearchManager(backend, nil, SearchOptions{}, nil))
		require.NoError(t, m.UpdateContent(ctx, sectionsFor(file, 2), nil, "", ""))
		backend.deleteErr = errors.New("forbidden")
		assert.ErrorContains(t, m.RemoveContent(ctx, "a.txt", ""), "forbidden")
	})

	t.Run("not converged", func(t *testing.T) {
		backend := newRecordingBackend(t)
		m := noWait(NewSearchManager(backend, nil, SearchOptions{MaxRemoveIterations: 3}, nil))
		require.NoError(t, m.UpdateContent(ctx, sectionsFor(file, 2), nil, "", ""))
		stuck := &stuckBackend{recordingBackend: backend}
		m.backend = stuck
		assert.ErrorIs(t, m.RemoveContent(ctx, "a.txt", ""), core.ErrRemoveNotConverged)
		assert.Equal(t, 3, stuck.deletes)
	})

	t.Run("cancelled", func(t *testing.T) {
		backend := newRecordingBackend(t)
		m := noWait(NewSearchManager(backend, nil, SearchOptions{}, nil))
		require.NoError(t, m.UpdateContent(ctx, sectionsFor(file, 2), nil, "", ""))
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, m.RemoveContent(cctx, "a.txt", ""), context.Canceled)
	})
}

// stuckBackend acknowledges deletes without applying them.
type stuckBackend struct {
	*recordingBackend
	deletes int
}

func (s *stuckBackend) Delete(context.Context, []string) error {
	s.deletes++
	return nil
}
