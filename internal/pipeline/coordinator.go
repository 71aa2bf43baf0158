// Package pipeline drives WorkItems through fetch, extraction, classification
// and persistence with a bounded pool of workers. It is the only package that
// knows about concurrency; every stage it calls is synchronous.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-annotator/internal/clock/system"
	"github.com/JakeFAU/paper-annotator/internal/paper"
	"github.com/JakeFAU/paper-annotator/internal/queue/memory"
)

// Config sizes the worker pool.
type Config struct {
	RunID       string
	Concurrency int
	QueueDepth  int
	// DownloadOnly stops each item after the fetch and upload stages.
	DownloadOnly bool
}

// Deps are the stage implementations. Pacer, Uploader, Hooks, Clock and
// Tracker are optional; Extractor, Classifier and Sink may be nil only in
// DownloadOnly mode.
type Deps struct {
	Fetcher    paper.Fetcher
	Extractor  paper.Extractor
	Classifier paper.Classifier
	Sink       paper.Sink
	Pacer      paper.Pacer
	Uploader   paper.Uploader
	Hooks      []paper.RecordHook
	Clock      paper.Clock
	Tracker    *Tracker
	Logger     *zap.Logger
}

// Coordinator runs batches of WorkItems.
type Coordinator struct {
	cfg  Config
	deps Deps
}

// New validates deps and builds a Coordinator.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = cfg.Concurrency
	}
	if deps.Fetcher == nil {
		return nil, errors.New("pipeline: fetcher is required")
	}
	if !cfg.DownloadOnly && (deps.Extractor == nil || deps.Classifier == nil || deps.Sink == nil) {
		return nil, errors.New("pipeline: extractor, classifier and sink are required")
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Tracker == nil {
		deps.Tracker = NewTracker()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Coordinator{cfg: cfg, deps: deps}, nil
}

// Tracker exposes live progress.
func (c *Coordinator) Tracker() *Tracker {
	return c.deps.Tracker
}

// Stream processes items and emits one ItemResult per input item. The channel
// closes once every item has reached a terminal state.
func (c *Coordinator) Stream(ctx context.Context, items []paper.WorkItem) <-chan paper.ItemResult {
	c.deps.Tracker.start(c.cfg.RunID, len(items), c.deps.Clock.Now())
	out := make(chan paper.ItemResult, c.cfg.QueueDepth)

	pending, skipped := c.plan(items)
	c.deps.Logger.Info("run planned",
		zap.String("run_id", c.cfg.RunID),
		zap.Int("items", len(items)),
		zap.Int("pending", len(pending)),
		zap.Int("skipped", len(skipped)),
		zap.Int("workers", c.cfg.Concurrency),
	)

	emit := func(res paper.ItemResult) {
		c.deps.Tracker.observe(res)
		out <- res
	}

	queue := memory.NewQueue(c.cfg.QueueDepth)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer queue.Close()
		for _, res := range skipped {
			emit(res)
		}
		for i, item := range pending {
			if err := queue.Enqueue(ctx, item); err != nil {
				for _, rest := range pending[i:] {
					emit(paper.ItemResult{Item: rest, Status: paper.ItemCanceled, Err: err})
				}
				return
			}
		}
	}()

	for i := 0; i < c.cfg.Concurrency; i++ {
		w := &worker{cfg: c.cfg, deps: c.deps, logger: c.deps.Logger.With(zap.Int("worker", i))}
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Dequeue ignores ctx so buffered items are still drained and reported as canceled.
			for {
				item, err := queue.Dequeue(context.Background())
				if err != nil {
					return
				}
				emit(w.process(ctx, item))
			}
		}()
	}

	go func() {
		wg.Wait()
		c.deps.Tracker.finish(c.deps.Clock.Now())
		close(out)
	}()
	return out
}

// Run processes items and blocks until all are done.
func (c *Coordinator) Run(ctx context.Context, items []paper.WorkItem) (Stats, error) {
	for range c.Stream(ctx, items) {
	}
	stats := c.deps.Tracker.Snapshot().Stats
	c.deps.Logger.Info("run finished",
		zap.String("run_id", stats.RunID),
		zap.Int("processed", stats.Processed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Int("canceled", stats.Canceled),
		zap.Int("fallback", stats.Fallback),
		zap.Int("degraded", stats.Degraded),
		zap.Duration("elapsed", stats.FinishedAt.Sub(stats.StartedAt)),
	)
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("run canceled: %w", err)
	}
	return stats, nil
}

// plan drops items already in the ledger and duplicate IDs within the batch.
func (c *Coordinator) plan(items []paper.WorkItem) ([]paper.WorkItem, []paper.ItemResult) {
	seen := make(map[string]struct{}, len(items))
	pending := make([]paper.WorkItem, 0, len(items))
	var skipped []paper.ItemResult
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			skipped = append(skipped, paper.ItemResult{Item: item, Status: paper.ItemSkipped})
			continue
		}
		seen[item.ID] = struct{}{}
		if !c.cfg.DownloadOnly && c.deps.Sink.Contains(item.ID) {
			skipped = append(skipped, paper.ItemResult{Item: item, Status: paper.ItemSkipped})
			continue
		}
		pending = append(pending, item)
	}
	return pending, skipped
}
