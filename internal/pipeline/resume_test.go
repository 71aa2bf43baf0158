package pipeline

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paper-annotator/internal/fetcher/httpfetch"
	"github.com/JakeFAU/paper-annotator/internal/paper"
	"github.com/JakeFAU/paper-annotator/internal/sink/csvsink"
)

// cancelingClassifier stops the run while the first item is being classified.
type cancelingClassifier struct {
	cancel context.CancelFunc
	calls  atomic.Int32
}

func (c *cancelingClassifier) Classify(ctx context.Context, _, _ string) (paper.Classification, error) {
	c.calls.Add(1)
	c.cancel()
	<-ctx.Done()
	return paper.Classification{}, ctx.Err()
}

func TestInterruptedRunResumesFromLocalCopy(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "annotated.csv")
	fetcher := httpfetch.New(httpfetch.Config{DownloadDir: filepath.Join(dir, "downloads"), MaxAttempts: 1}, nil).
		WithHTTPClient(srv.Client())
	batch := []paper.WorkItem{{Source: srv.URL + "/2023/sparse.pdf", Group: "2023", ID: "sparse.pdf"}}

	// First run: the download lands, then the run is interrupted mid-classification.
	sink, err := csvsink.Open(out, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupting := &cancelingClassifier{cancel: cancel}
	coord, err := New(Config{Concurrency: 1}, Deps{
		Fetcher: fetcher, Extractor: &fakeExtractor{}, Classifier: interrupting, Sink: sink,
	})
	require.NoError(t, err)

	stats, err := coord.Run(ctx, batch)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stats.Canceled)
	assert.EqualValues(t, 1, interrupting.calls.Load())
	assert.Zero(t, sink.Len())
	assert.EqualValues(t, 1, hits.Load())
	assert.FileExists(t, fetcher.TargetPath(batch[0]))
	require.NoError(t, sink.Close())

	// Second run: the local copy is reused and the item is annotated.
	sink, err = csvsink.Open(out, nil)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	coord, err = New(Config{Concurrency: 1}, Deps{
		Fetcher: fetcher, Extractor: &fakeExtractor{}, Classifier: &fakeClassifier{}, Sink: sink,
	})
	require.NoError(t, err)

	stats, err = coord.Run(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.EqualValues(t, 1, hits.Load(), "resumed run must not hit the network")
	assert.Equal(t, 1, sink.Len())

	f, err := os.Open(out)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "sparse.pdf", rows[1][3])
}
