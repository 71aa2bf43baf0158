package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacerSpacesTokens(t *testing.T) {
	p := New(Config{Interval: 50 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	assert.Less(t, time.Since(start), 20*time.Millisecond, "first token should be immediate")

	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Positive(t, p.Waited())
}

func TestPacerSharedAcrossWorkers(t *testing.T) {
	p := New(Config{Interval: 30 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Wait(ctx))
		}()
	}
	wg.Wait()

	// Four tokens with burst 1 need at least three intervals regardless of the worker count.
	assert.GreaterOrEqual(t, time.Since(start), 85*time.Millisecond)
}

func TestPacerDisabled(t *testing.T) {
	p := New(Config{})
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Zero(t, p.Waited())
}

func TestPacerCanceled(t *testing.T) {
	p := New(Config{Interval: time.Hour})
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pacer wait")
}
