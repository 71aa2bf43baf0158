// Package classifier assigns each paper a category using a cache in front of
// a rate-limited text classification service.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/paper-annotator/internal/hash/sha256"
	"github.com/JakeFAU/paper-annotator/internal/metrics"
	"github.com/JakeFAU/paper-annotator/internal/paper"
)

// Config controls retries and the category set.
type Config struct {
	Categories     []string
	MaxAttempts    int
	RateLimitWait  time.Duration
	RequestTimeout time.Duration
}

// Classifier implements paper.Classifier.
type Classifier struct {
	cfg     Config
	service Service
	cache   paper.CacheStore
	logger  *zap.Logger
	group   singleflight.Group
}

// New constructs a Classifier.
func New(cfg Config, service Service, cache paper.CacheStore, logger *zap.Logger) *Classifier {
	if len(cfg.Categories) == 0 {
		cfg.Categories = paper.DefaultCategories
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{cfg: cfg, service: service, cache: cache, logger: logger}
}

// Classify returns the label for (title, abstract). The only error is context cancellation.
func (c *Classifier) Classify(ctx context.Context, title, abstract string) (paper.Classification, error) {
	fp := sha256.Fingerprint(title, abstract)
	for {
		if err := ctx.Err(); err != nil {
			return paper.Classification{}, fmt.Errorf("classify canceled: %w", err)
		}
		if label, ok := c.lookup(ctx, fp); ok {
			metrics.ObserveClassification(string(paper.SourceCache))
			return paper.Classification{Label: label, Source: paper.SourceCache}, nil
		}

		leader := false
		v, err, _ := c.group.Do(fp, func() (any, error) {
			leader = true
			return c.classifyUncached(ctx, fp, title, abstract)
		})
		if err != nil {
			// The flight belonged to a caller that was canceled; retry under our own context.
			if !leader && ctx.Err() == nil {
				continue
			}
			return paper.Classification{}, err
		}
		class, _ := v.(paper.Classification)
		if !leader && class.Source == paper.SourceService {
			class.Source = paper.SourceCache
		}
		metrics.ObserveClassification(string(class.Source))
		return class, nil
	}
}

func (c *Classifier) lookup(ctx context.Context, fp string) (string, bool) {
	label, ok, err := c.cache.Get(ctx, fp)
	if err != nil {
		c.logger.Warn("classification cache read failed", zap.String("fingerprint", fp), zap.Error(err))
		return "", false
	}
	return label, ok
}

func (c *Classifier) classifyUncached(ctx context.Context, fp, title, abstract string) (paper.Classification, error) {
	// Another flight may have filled the cache between our lookup and the Do call.
	if label, ok := c.lookup(ctx, fp); ok {
		return paper.Classification{Label: label, Source: paper.SourceCache}, nil
	}

	prompt := BuildPrompt(c.cfg.Categories, title, abstract)
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		out := c.call(ctx, prompt)
		if err := ctx.Err(); err != nil {
			return paper.Classification{}, fmt.Errorf("classify canceled: %w", err)
		}

		switch out.Kind {
		case OutcomeOK:
			label, ok := NormalizeLabel(out.Text, c.cfg.Categories)
			if !ok {
				c.logger.Warn("classification response matched no category",
					zap.String("fingerprint", fp),
					zap.String("response", out.Text),
				)
				return paper.Fallback(), nil
			}
			if err := c.cache.Put(ctx, fp, label); err != nil {
				c.logger.Error("classification cache write failed",
					zap.String("fingerprint", fp),
					zap.String("label", label),
					zap.Error(err),
				)
			}
			return paper.Classification{Label: label, Source: paper.SourceService}, nil

		case OutcomeRateLimited:
			if attempt == c.cfg.MaxAttempts {
				c.logger.Warn("classification rate limit retries exhausted",
					zap.String("fingerprint", fp),
					zap.Int("attempts", attempt),
					zap.Error(out.Err),
				)
				return paper.Fallback(), nil
			}
			metrics.ObserveClassifierRetry()
			c.logger.Info("classification rate limited, waiting",
				zap.String("fingerprint", fp),
				zap.Int("attempt", attempt),
				zap.Duration("wait", c.cfg.RateLimitWait),
			)
			if err := sleep(ctx, c.cfg.RateLimitWait); err != nil {
				return paper.Classification{}, fmt.Errorf("classify canceled: %w", err)
			}

		default:
			c.logger.Warn("classification service failed",
				zap.String("fingerprint", fp),
				zap.Int("attempt", attempt),
				zap.Error(out.Err),
			)
			return paper.Fallback(), nil
		}
	}
	return paper.Fallback(), nil
}

func (c *Classifier) call(ctx context.Context, prompt string) Outcome {
	callCtx := ctx
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}
	start := time.Now()
	out := c.service.Classify(callCtx, prompt)
	if out.Kind == OutcomeOK && out.Err != nil {
		out = Failed(out.Err)
	}
	if out.Kind == OutcomeServiceFailed && out.Err == nil {
		out.Err = errors.New("unspecified service failure")
	}
	metrics.ObserveClassifierCall(out.Kind.String(), time.Since(start))
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
