package app

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-annotator/internal/classifier"
	"github.com/JakeFAU/paper-annotator/internal/config"
	"github.com/JakeFAU/paper-annotator/internal/discovery"
)

type stubService struct{ label string }

func (s stubService) Classify(context.Context, string) classifier.Outcome {
	return classifier.OK(s.label)
}

func stubFactory(label string) ServiceFactory {
	return func(context.Context, config.ClassifierConfig) (classifier.Service, io.Closer, error) {
		return stubService{label: label}, nil, nil
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "papers")
	for _, f := range []string{"2023/a.pdf", "2023/b.pdf", "2022/c.pdf"} {
		p := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("not really a pdf"), 0o600))
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Discovery.LocalRoot = root
	cfg.Fetch.DownloadDir = filepath.Join(dir, "downloads")
	cfg.Output.CSVPath = filepath.Join(dir, "out.csv")
	cfg.Cache.Provider = "sqlite"
	cfg.Cache.Path = filepath.Join(dir, "cache.db")
	cfg.Classifier.ProjectID = "test-project"
	cfg.Pipeline.PaceIntervalMs = 0
	cfg.Upload.Provider = "local"
	cfg.Upload.LocalDir = filepath.Join(dir, "mirror")
	return cfg
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestEndToEndLocalRun(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a := New(cfg, zap.NewNop(), WithServiceFactory(stubFactory("nlp")))
	items, err := a.Discoverer().Discover(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)

	runID, err := a.NewRunID()
	require.NoError(t, err)
	coord, err := a.Pipeline(ctx, runID, false)
	require.NoError(t, err)
	stats, err := coord.Run(ctx, items)
	require.NoError(t, err)
	require.NoError(t, a.Close(ctx))

	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 3, stats.Degraded)
	rows := readRows(t, cfg.Output.CSVPath)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Title", "Abstract", "Category", "PDF File", "Year"}, rows[0])
	for _, row := range rows[1:] {
		assert.Equal(t, "Unknown Title", row[0])
		assert.Equal(t, "No abstract found", row[1])
		assert.Equal(t, "NLP", row[2])
	}

	// Local sources are never re-downloaded, so nothing is uploaded.
	_, err = os.Stat(filepath.Join(cfg.Upload.LocalDir, "papers"))
	assert.True(t, os.IsNotExist(err))

	// A second run finds everything in the ledger.
	b := New(cfg, zap.NewNop(), WithServiceFactory(stubFactory("nlp")))
	coord, err = b.Pipeline(ctx, "run-2", false)
	require.NoError(t, err)
	stats, err = coord.Run(ctx, items)
	require.NoError(t, err)
	require.NoError(t, b.Close(ctx))
	assert.Equal(t, 3, stats.Skipped)
	assert.Len(t, readRows(t, cfg.Output.CSVPath), 4)
}

func TestDownloadOnlyNeedsNoClassifier(t *testing.T) {
	cfg := testConfig(t)
	cfg.Classifier.ProjectID = ""
	ctx := context.Background()

	a := New(cfg, nil)
	coord, err := a.Pipeline(ctx, "run-1", true)
	require.NoError(t, err)
	items, err := a.Discoverer().Discover(ctx)
	require.NoError(t, err)
	stats, err := coord.Run(ctx, items)
	require.NoError(t, err)
	require.NoError(t, a.Close(ctx))
	assert.Equal(t, 3, stats.Processed)
	assert.NoFileExists(t, cfg.Output.CSVPath)
}

func TestClassifierRequiresProject(t *testing.T) {
	cfg := testConfig(t)
	cfg.Classifier.ProjectID = ""
	_, err := New(cfg, nil).Classifier(context.Background())
	require.Error(t, err)
}

func TestCacheProviders(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	cfg.Cache.Provider = "memory"
	a := New(cfg, nil)
	store, err := a.Cache(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "fp", "NLP"))
	assert.Equal(t, 1, store.Len())

	cfg.Cache.Provider = "redis"
	_, err = New(cfg, nil).Cache(ctx)
	require.Error(t, err)
}

func TestUploaderProviders(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	cfg.Upload.Provider = "none"
	up, err := New(cfg, nil).Uploader(ctx)
	require.NoError(t, err)
	assert.Nil(t, up)

	cfg.Upload.Provider = "memory"
	a := New(cfg, nil)
	up, err = a.Uploader(ctx)
	require.NoError(t, err)
	assert.NotNil(t, up)
	require.NoError(t, a.Close(ctx))

	cfg.Upload.Provider = "ftp"
	_, err = New(cfg, nil).Uploader(ctx)
	require.Error(t, err)
}

func TestHooksDisabledByDefault(t *testing.T) {
	hooks, err := New(testConfig(t), nil).Hooks(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Empty(t, hooks)
}

func TestDiscovererSelection(t *testing.T) {
	cfg := testConfig(t)
	assert.IsType(t, &discovery.Directory{}, New(cfg, nil).Discoverer())

	cfg.Discovery.LocalRoot = ""
	assert.IsType(t, &discovery.Crawler{}, New(cfg, nil).Discoverer())
}

func TestPacerIsShared(t *testing.T) {
	a := New(testConfig(t), nil)
	assert.Same(t, a.Pacer(), a.Pacer())
	assert.Zero(t, a.Pacer().Waited())
}
