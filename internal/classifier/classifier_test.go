package classifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paper-annotator/internal/cache/memory"
	"github.com/JakeFAU/paper-annotator/internal/hash/sha256"
	"github.com/JakeFAU/paper-annotator/internal/paper"
)

// scriptedService replays outcomes in order, repeating the last one.
type scriptedService struct {
	mu       sync.Mutex
	outcomes []Outcome
	calls    atomic.Int32
	delay    time.Duration
	prompts  []string
}

func (s *scriptedService) Classify(ctx context.Context, prompt string) Outcome {
	n := int(s.calls.Add(1))
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return Failed(ctx.Err())
		case <-time.After(s.delay):
		}
	}
	if n > len(s.outcomes) {
		n = len(s.outcomes)
	}
	return s.outcomes[n-1]
}

func newClassifier(svc Service, cache paper.CacheStore) *Classifier {
	return New(Config{
		Categories:     paper.DefaultCategories,
		MaxAttempts:    3,
		RateLimitWait:  time.Millisecond,
		RequestTimeout: time.Second,
	}, svc, cache, nil)
}

func TestClassifyCacheHitSkipsService(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewStore()
	require.NoError(t, cache.Put(ctx, sha256.Fingerprint("T", "A"), "NLP"))
	svc := &scriptedService{outcomes: []Outcome{OK("Computer Vision")}}

	got, err := newClassifier(svc, cache).Classify(ctx, "T", "A")
	require.NoError(t, err)
	assert.Equal(t, paper.Classification{Label: "NLP", Source: paper.SourceCache}, got)
	assert.Zero(t, svc.calls.Load())
}

func TestClassifyServiceSuccessIsCached(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewStore()
	svc := &scriptedService{outcomes: []Outcome{OK(" \"deep learning.\" ")}}
	c := newClassifier(svc, cache)

	got, err := c.Classify(ctx, "Title", "Abstract")
	require.NoError(t, err)
	assert.Equal(t, paper.Classification{Label: "Deep Learning", Source: paper.SourceService}, got)
	assert.Equal(t, 1, cache.Puts())

	again, err := c.Classify(ctx, "Title", "Abstract")
	require.NoError(t, err)
	assert.Equal(t, paper.SourceCache, again.Source)
	assert.EqualValues(t, 1, svc.calls.Load())
	assert.Contains(t, svc.prompts[0], "Optimization & Theoretical ML")
	assert.Contains(t, svc.prompts[0], "Title: Title")
}

func TestClassifyRetriesRateLimit(t *testing.T) {
	cache := memory.NewStore()
	svc := &scriptedService{outcomes: []Outcome{
		RateLimited(errors.New("429")),
		RateLimited(errors.New("429")),
		OK("NLP"),
	}}

	got, err := newClassifier(svc, cache).Classify(context.Background(), "T", "A")
	require.NoError(t, err)
	assert.Equal(t, paper.Classification{Label: "NLP", Source: paper.SourceService}, got)
	assert.EqualValues(t, 3, svc.calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestClassifyRateLimitExhausted(t *testing.T) {
	cache := memory.NewStore()
	svc := &scriptedService{outcomes: []Outcome{RateLimited(errors.New("429"))}}

	got, err := newClassifier(svc, cache).Classify(context.Background(), "T", "A")
	require.NoError(t, err)
	assert.Equal(t, paper.Fallback(), got)
	assert.EqualValues(t, 3, svc.calls.Load())
	assert.Zero(t, cache.Len())
}

func TestClassifyServiceFailureFallsBackWithoutRetry(t *testing.T) {
	cache := memory.NewStore()
	svc := &scriptedService{outcomes: []Outcome{Failed(errors.New("boom")), OK("NLP")}}

	got, err := newClassifier(svc, cache).Classify(context.Background(), "T", "A")
	require.NoError(t, err)
	assert.Equal(t, paper.Fallback(), got)
	assert.EqualValues(t, 1, svc.calls.Load())
	assert.Zero(t, cache.Len())
}

func TestClassifyUnknownResponseNotCached(t *testing.T) {
	cache := memory.NewStore()
	svc := &scriptedService{outcomes: []Outcome{OK("Quantum Biology")}}

	got, err := newClassifier(svc, cache).Classify(context.Background(), "T", "A")
	require.NoError(t, err)
	assert.Equal(t, paper.Fallback(), got)
	assert.Zero(t, cache.Len())
}

func TestClassifyConcurrentSameKeyCallsOnce(t *testing.T) {
	cache := memory.NewStore()
	svc := &scriptedService{outcomes: []Outcome{OK("NLP")}, delay: 50 * time.Millisecond}
	c := newClassifier(svc, cache)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		sources = map[paper.LabelSource]int{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Classify(context.Background(), "Same", "Paper")
			assert.NoError(t, err)
			assert.Equal(t, "NLP", got.Label)
			mu.Lock()
			sources[got.Source]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, svc.calls.Load())
	assert.Equal(t, 1, cache.Puts())
	assert.Equal(t, 1, sources[paper.SourceService])
	assert.Equal(t, 7, sources[paper.SourceCache])
}

func TestClassifyCanceledDuringRateLimitWait(t *testing.T) {
	cache := memory.NewStore()
	svc := &scriptedService{outcomes: []Outcome{RateLimited(errors.New("429"))}}
	c := New(Config{MaxAttempts: 3, RateLimitWait: time.Hour}, svc, cache, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Classify(ctx, "T", "A")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Zero(t, cache.Len())
}

func TestClassifyRequestTimeoutIsServiceFailure(t *testing.T) {
	cache := memory.NewStore()
	svc := &scriptedService{outcomes: []Outcome{OK("NLP")}, delay: time.Second}
	c := New(Config{MaxAttempts: 3, RequestTimeout: 20 * time.Millisecond}, svc, cache, nil)

	got, err := c.Classify(context.Background(), "T", "A")
	require.NoError(t, err)
	assert.Equal(t, paper.Fallback(), got)
	assert.EqualValues(t, 1, svc.calls.Load())
}

func TestNormalizeLabel(t *testing.T) {
	t.Parallel()

	cats := paper.DefaultCategories
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"NLP", "NLP", true},
		{"nlp\n", "NLP", true},
		{"**Computer Vision**", "Computer Vision", true},
		{"Category: Reinforcement Learning.", "Reinforcement Learning", true},
		{"'optimization & theoretical ml'", "Optimization & Theoretical ML", true},
		{"Robotics", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeLabel(tt.raw, cats)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}
