package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paper-annotator/internal/paper"
	"github.com/JakeFAU/paper-annotator/internal/pipeline"
)

type fakeProgress struct{ snap pipeline.Snapshot }

func (f fakeProgress) Snapshot() pipeline.Snapshot { return f.snap }

type fakeLedger map[string]bool

func (f fakeLedger) Contains(id string) bool { return f[id] }
func (f fakeLedger) Len() int                { return len(f) }

func do(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndReady(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil)
	assert.Equal(t, http.StatusOK, do(t, s, "/healthz").Code)
	assert.Equal(t, http.StatusOK, do(t, s, "/readyz").Code)

	notReady := NewServer(nil, nil, nil, WithReadiness(func() error { return errors.New("cache not loaded") }))
	rec := do(t, notReady, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "cache not loaded")
}

func TestProgress(t *testing.T) {
	t.Parallel()

	snap := pipeline.Snapshot{
		Stats: pipeline.Stats{
			RunID:     "run-1",
			Total:     5,
			Processed: 2,
			Skipped:   1,
			StartedAt: time.Unix(1700000000, 0).UTC(),
		},
		Running:    true,
		LastRecord: &paper.Record{DocumentID: "a.pdf", Label: "NLP"},
	}
	rec := do(t, NewServer(fakeProgress{snap: snap}, nil, nil), "/v1/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body["run_id"])
	assert.EqualValues(t, 5, body["total"])
	assert.EqualValues(t, 3, body["done"])
	assert.Equal(t, true, body["running"])
	assert.Equal(t, "a.pdf", body["last_record"].(map[string]any)["document_id"])
}

func TestProgressWithoutRun(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusNotFound, do(t, NewServer(nil, nil, nil), "/v1/progress").Code)
}

func TestDocumentLookup(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, fakeLedger{"a.pdf": true}, nil)
	rec := do(t, s, "/v1/documents/a.pdf")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"a.pdf","persisted":true}`, rec.Body.String())

	rec = do(t, s, "/v1/documents/b.pdf")
	assert.JSONEq(t, `{"id":"b.pdf","persisted":false}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, NewServer(nil, nil, nil), "/v1/documents/a.pdf").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	rec := do(t, NewServer(nil, nil, nil), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(nil, nil, nil).ListenAndServe(ctx, 0) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
