package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-annotator/internal/metrics"
	"github.com/JakeFAU/paper-annotator/internal/paper"
)

type worker struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

func (w *worker) process(ctx context.Context, item paper.WorkItem) paper.ItemResult {
	res := w.run(ctx, item)
	metrics.ObserveItem(string(res.Status))
	return res
}

func (w *worker) run(ctx context.Context, item paper.WorkItem) paper.ItemResult {
	if err := ctx.Err(); err != nil {
		return canceled(item, err)
	}
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	log := w.logger.With(zap.String("document_id", item.ID), zap.String("group", item.Group))

	doc, err := w.deps.Fetcher.Fetch(ctx, item)
	if err != nil {
		if ctx.Err() != nil {
			return canceled(item, err)
		}
		log.Warn("fetch failed", zap.String("source", item.Source), zap.Error(err))
		w.pace(ctx)
		return paper.ItemResult{Item: item, Status: paper.ItemFailed, Err: err}
	}
	if !doc.Skipped && w.deps.Uploader != nil {
		if !w.deps.Uploader.Submit(doc) {
			log.Warn("upload queue full, dropping upload")
		}
	}
	if w.cfg.DownloadOnly {
		if !doc.Skipped {
			w.pace(ctx)
		}
		return paper.ItemResult{Item: item, Status: paper.ItemProcessed}
	}

	meta := w.deps.Extractor.Extract(ctx, doc)
	if err := ctx.Err(); err != nil {
		return canceled(item, err)
	}

	class, err := w.deps.Classifier.Classify(ctx, meta.Title, meta.Abstract)
	if err != nil {
		return canceled(item, err)
	}

	record := paper.NewRecord(item, meta, class)
	if err := w.deps.Sink.Persist(ctx, record); err != nil {
		switch {
		case errors.Is(err, paper.ErrAlreadyPersisted):
			return paper.ItemResult{Item: item, Status: paper.ItemSkipped}
		case ctx.Err() != nil:
			return canceled(item, err)
		default:
			log.Error("persist failed", zap.Error(err))
			return paper.ItemResult{Item: item, Status: paper.ItemFailed, Err: err}
		}
	}

	for _, hook := range w.deps.Hooks {
		if err := hook.AfterPersist(ctx, record); err != nil {
			metrics.ObserveHookError(hook.Name())
			log.Warn("record hook failed", zap.String("hook", hook.Name()), zap.Error(err))
		}
	}

	log.Info("document annotated",
		zap.String("title", record.Title),
		zap.String("label", record.Label),
		zap.String("label_source", string(class.Source)),
		zap.Bool("extraction_ok", meta.OK),
	)
	w.pace(ctx)
	return paper.ItemResult{
		Item:           item,
		Status:         paper.ItemProcessed,
		Record:         &record,
		Classification: class,
		Degraded:       !meta.OK,
	}
}

// pace blocks on the shared limiter after an item that did real work.
func (w *worker) pace(ctx context.Context) {
	if w.deps.Pacer == nil {
		return
	}
	if err := w.deps.Pacer.Wait(ctx); err != nil && ctx.Err() == nil {
		w.logger.Warn("pacer wait failed", zap.Error(err))
	}
}

func canceled(item paper.WorkItem, err error) paper.ItemResult {
	return paper.ItemResult{Item: item, Status: paper.ItemCanceled, Err: err}
}
