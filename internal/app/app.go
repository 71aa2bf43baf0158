// Package app builds the long-lived services a command needs from Config and
// owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-annotator/internal/cache/memory"
	"github.com/JakeFAU/paper-annotator/internal/cache/sqlite"
	"github.com/JakeFAU/paper-annotator/internal/classifier"
	"github.com/JakeFAU/paper-annotator/internal/clock/system"
	"github.com/JakeFAU/paper-annotator/internal/config"
	"github.com/JakeFAU/paper-annotator/internal/discovery"
	"github.com/JakeFAU/paper-annotator/internal/extractor"
	"github.com/JakeFAU/paper-annotator/internal/extractor/pdftext"
	"github.com/JakeFAU/paper-annotator/internal/fetcher/httpfetch"
	"github.com/JakeFAU/paper-annotator/internal/id/uuid"
	"github.com/JakeFAU/paper-annotator/internal/paper"
	"github.com/JakeFAU/paper-annotator/internal/pipeline"
	"github.com/JakeFAU/paper-annotator/internal/policy/ratelimit"
	"github.com/JakeFAU/paper-annotator/internal/publisher"
	pubsubpublisher "github.com/JakeFAU/paper-annotator/internal/publisher/pubsub"
	"github.com/JakeFAU/paper-annotator/internal/sink/csvsink"
	"github.com/JakeFAU/paper-annotator/internal/sink/postgres"
	"github.com/JakeFAU/paper-annotator/internal/storage/gcs"
	"github.com/JakeFAU/paper-annotator/internal/storage/local"
	memorystorage "github.com/JakeFAU/paper-annotator/internal/storage/memory"
	"github.com/JakeFAU/paper-annotator/internal/uploader"
)

// ServiceFactory opens the remote classification service.
type ServiceFactory func(ctx context.Context, cfg config.ClassifierConfig) (classifier.Service, io.Closer, error)

// VertexFactory opens a Vertex AI generative model.
func VertexFactory(ctx context.Context, cfg config.ClassifierConfig) (classifier.Service, io.Closer, error) {
	svc, err := classifier.NewVertexService(ctx, cfg.ProjectID, cfg.Region, cfg.Model)
	if err != nil {
		return nil, nil, err
	}
	return svc, svc, nil
}

// App owns every service built for one command invocation.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	clock   paper.Clock
	ids     paper.IDGenerator
	service ServiceFactory

	closers  []func(context.Context) error
	uploader *uploader.Uploader
	sink     *csvsink.Sink
	pacer    *ratelimit.Pacer
}

// Option customizes an App.
type Option func(*App)

// WithServiceFactory replaces the Vertex AI factory.
func WithServiceFactory(f ServiceFactory) Option {
	return func(a *App) { a.service = f }
}

// WithClock replaces the system clock.
func WithClock(c paper.Clock) Option {
	return func(a *App) { a.clock = c }
}

// New creates an App. Services are built lazily by the Build* methods.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:     cfg,
		logger:  logger,
		clock:   system.New(),
		ids:     uuid.New(),
		service: VertexFactory,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// NewRunID returns a fresh time-ordered run identifier.
func (a *App) NewRunID() (string, error) {
	id, err := a.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Discoverer lists a local tree when discovery.local_root is set and crawls the archive otherwise.
func (a *App) Discoverer() paper.Discoverer {
	d := a.cfg.Discovery
	if d.LocalRoot != "" {
		return discovery.NewDirectory(d.LocalRoot, d.Years, d.Parallelism, a.logger)
	}
	return discovery.NewCrawler(discovery.CrawlerConfig{
		BaseURL:     d.BaseURL,
		Years:       d.Years,
		UserAgent:   d.UserAgent,
		Parallelism: d.Parallelism,
		Timeout:     a.cfg.DiscoveryTimeout(),
	}, a.logger)
}

// Fetcher builds the streaming HTTP downloader.
func (a *App) Fetcher() *httpfetch.Fetcher {
	f := a.cfg.Fetch
	return httpfetch.New(httpfetch.Config{
		DownloadDir: f.DownloadDir,
		UserAgent:   f.UserAgent,
		Timeout:     a.cfg.FetchTimeout(),
		MaxAttempts: f.MaxAttempts,
		Backoff:     a.cfg.FetchBackoff(),
	}, a.logger)
}

// Extractor builds the PDF heuristics extractor.
func (a *App) Extractor() *extractor.Extractor {
	e := a.cfg.Extract
	return extractor.New(extractor.Config{
		MaxPages:         e.MaxPages,
		TitleScanLines:   e.TitleScanLines,
		TitleMinLength:   e.TitleMinLength,
		AbstractMaxChars: e.AbstractMaxChars,
	}, pdftext.New(), a.logger)
}

// Cache opens the configured classification cache.
func (a *App) Cache(ctx context.Context) (paper.CacheStore, error) {
	switch a.cfg.Cache.Provider {
	case "memory":
		return memory.NewStore(), nil
	case "", "sqlite":
		store, err := sqlite.Open(ctx, a.cfg.Cache.Path, a.logger)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return store.Close() })
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache provider %q", a.cfg.Cache.Provider)
	}
}

// Classifier opens the cache and the remote service and combines them.
func (a *App) Classifier(ctx context.Context) (*classifier.Classifier, error) {
	if err := a.cfg.RequireClassifier(); err != nil {
		return nil, err
	}
	cache, err := a.Cache(ctx)
	if err != nil {
		return nil, err
	}
	svc, closer, err := a.service(ctx, a.cfg.Classifier)
	if err != nil {
		return nil, fmt.Errorf("open classification service: %w", err)
	}
	if closer != nil {
		a.onClose(func(context.Context) error { return closer.Close() })
	}
	c := a.cfg.Classifier
	return classifier.New(classifier.Config{
		Categories:     c.Categories,
		MaxAttempts:    c.MaxAttempts,
		RateLimitWait:  a.cfg.RateLimitWait(),
		RequestTimeout: a.cfg.ClassifierRequestTimeout(),
	}, svc, cache, a.logger), nil
}

// Sink opens the CSV output and rebuilds its ledger. Later calls return the same sink.
func (a *App) Sink() (*csvsink.Sink, error) {
	if a.sink != nil {
		return a.sink, nil
	}
	sink, err := csvsink.Open(a.cfg.Output.CSVPath, a.logger)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return sink.Close() })
	a.sink = sink
	return sink, nil
}

// Pacer returns the shared token bucket, building it on first use.
func (a *App) Pacer() *ratelimit.Pacer {
	if a.pacer == nil {
		a.pacer = ratelimit.New(ratelimit.Config{Interval: a.cfg.PaceInterval()})
	}
	return a.pacer
}

// Uploader starts the configured uploader, or returns nil when uploads are disabled.
func (a *App) Uploader(ctx context.Context) (paper.Uploader, error) {
	u := a.cfg.Upload
	var store paper.BlobStore
	switch u.Provider {
	case "", "none":
		return nil, nil
	case "memory":
		store = memorystorage.NewBlobStore()
	case "local":
		s, err := local.New(u.LocalDir)
		if err != nil {
			return nil, err
		}
		store = s
	case "gcs":
		s, err := gcs.Open(ctx, u.GCSBucket)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return s.Close() })
		store = s
	default:
		return nil, fmt.Errorf("unknown upload provider %q", u.Provider)
	}
	up, err := uploader.New(uploader.Config{
		Prefix:     u.Prefix,
		QueueDepth: u.QueueDepth,
		Timeout:    a.cfg.UploadTimeout(),
	}, store, a.logger)
	if err != nil {
		return nil, err
	}
	a.uploader = up
	a.logger.Info("uploading downloaded documents", zap.String("provider", u.Provider))
	return up, nil
}

// Hooks builds the optional post-persist hooks: the Postgres mirror and Pub/Sub notifications.
func (a *App) Hooks(ctx context.Context, runID string) ([]paper.RecordHook, error) {
	var hooks []paper.RecordHook
	if a.cfg.Postgres.DSN != "" {
		m, err := postgres.Open(ctx, postgres.Config{
			DSN:      a.cfg.Postgres.DSN,
			Table:    a.cfg.Postgres.Table,
			MaxConns: a.cfg.Postgres.MaxConns,
		}, runID, a.clock)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { m.Close(); return nil })
		hooks = append(hooks, m)
	}
	if a.cfg.PubSub.ProjectID != "" && a.cfg.PubSub.TopicName != "" {
		pub, err := pubsubpublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return pub.Close() })
		hooks = append(hooks, publisher.NewRecordHook(pub, a.cfg.PubSub.TopicName, runID, a.clock))
	}
	return hooks, nil
}

// Pipeline assembles a coordinator. downloadOnly skips extraction, classification and persistence.
func (a *App) Pipeline(ctx context.Context, runID string, downloadOnly bool) (*pipeline.Coordinator, error) {
	deps := pipeline.Deps{
		Fetcher: a.Fetcher(),
		Pacer:   a.Pacer(),
		Clock:   a.clock,
		Tracker: pipeline.NewTracker(),
		Logger:  a.logger.With(zap.String("run_id", runID)),
	}
	up, err := a.Uploader(ctx)
	if err != nil {
		return nil, err
	}
	if up != nil {
		deps.Uploader = up
	}
	if !downloadOnly {
		deps.Extractor = a.Extractor()
		if deps.Classifier, err = a.Classifier(ctx); err != nil {
			return nil, err
		}
		if deps.Sink, err = a.Sink(); err != nil {
			return nil, err
		}
		if deps.Hooks, err = a.Hooks(ctx, runID); err != nil {
			return nil, err
		}
	}
	return pipeline.New(pipeline.Config{
		RunID:        runID,
		Concurrency:  a.cfg.Pipeline.Concurrency,
		QueueDepth:   a.cfg.Pipeline.QueueDepth,
		DownloadOnly: downloadOnly,
	}, deps)
}

// Close drains pending uploads and releases services in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.uploader != nil {
		if err := a.uploader.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		a.uploader = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.sink = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
		return err
	}
	return nil
}
