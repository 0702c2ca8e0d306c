package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/prepdocs/internal/config"
	"github.com/markdave123-py/prepdocs/internal/core"
	"github.com/markdave123-py/prepdocs/internal/core/cleanup"
	"github.com/markdave123-py/prepdocs/internal/core/ingestion_engine"
	"github.com/markdave123-py/prepdocs/internal/models"
)

func offlineConfig() *config.Config {
	return &config.Config{
		SearchBackend:     config.BackendMemory,
		IndexName:         "testindex",
		SearchAnalyzer:    "en.microsoft",
		SkipBlobs:         true,
		DisableEmbeddings: true,
		TargetTokens:      500,
		OverlapTokens:     50,
		CredentialKind:    config.CredentialKeyless,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func countDocs(t *testing.T, a *App, sourcefile string) int {
	t.Helper()
	res, err := a.Backend.Search(context.Background(), core.SearchQuery{SourceFile: sourcefile, Top: 10})
	require.NoError(t, err)
	return res.Count
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	cfg := offlineConfig()
	cfg.SearchBackend = "elastic"
	_, err := NewApp(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, config.ErrUnknownBackend)

	cfg = offlineConfig()
	cfg.SearchBackend = config.BackendPostgres
	_, err = NewApp(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, config.ErrDatabaseURLMissing)
}

func TestNewAppOfflineCollaborators(t *testing.T) {
	a := newTestApp(t, offlineConfig())
	assert.Nil(t, a.Blobs)
	assert.NotNil(t, a.Search)
	assert.Contains(t, a.Processors.Extensions(), ".pdf")
	assert.NotContains(t, a.Processors.Extensions(), ".png")
}

func TestAddThenRemoveLocalFiles(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, offlineConfig())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Hello world."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.csv"), []byte("x,y"), 0o644))
	pattern := filepath.Join(dir, "*")

	add, err := a.FileStrategy(a.LocalFiles(pattern, true, nil), ingestion_engine.Options{Action: models.Add}, 0)
	require.NoError(t, err)
	require.NoError(t, add.Setup(ctx))
	res, err := add.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Failed())

	byName := map[string]models.Outcome{}
	for _, o := range res.Outcomes {
		byName[o.Name] = o
	}
	assert.Equal(t, 1, byName["a.txt"].Sections)
	assert.True(t, byName["b.csv"].Skipped)
	assert.Equal(t, 1, countDocs(t, a, "a.txt"))

	remove, err := a.FileStrategy(a.LocalFiles(pattern, false, nil), ingestion_engine.Options{Action: models.Remove}, 0)
	require.NoError(t, err)
	res, err = remove.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Outcomes, 2)
	assert.Empty(t, res.Failed())
	assert.Zero(t, countDocs(t, a, "a.txt"))
}

func TestUserFilesAndPurge(t *testing.T) {
	ctx := context.Background()
	cfg := offlineConfig()
	cfg.UseACLs = true
	a := newTestApp(t, cfg)
	require.NoError(t, a.Search.CreateIndex(ctx))

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("First line.\nSecond line."), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)

	file := models.NewFile(path, f)
	file.ACLs = map[string][]string{"oids": {"user-1"}}
	n, err := a.UserFiles("uploads").AddFile(ctx, file)
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.Positive(t, countDocs(t, a, "notes.txt"))

	res := a.Reconciler().RemoveIndexBlob(ctx, "notes.txt")
	assert.Equal(t, cleanup.Converged, res.Status)
	assert.Zero(t, countDocs(t, a, "notes.txt"))
}

func TestSetupFailsOnContentUnderstandingPreconditions(t *testing.T) {
	cfg := offlineConfig()
	cfg.UseContentUnderstanding = true
	a := newTestApp(t, cfg)

	s, err := a.FileStrategy(nil, ingestion_engine.Options{Action: models.Add}, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Setup(context.Background()), core.ErrMissingEndpoint)
}
