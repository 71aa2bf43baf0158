// Package extractor recovers a best-effort title and abstract from a
// document's leading pages. Extraction never fails: unreadable documents
// degrade to the sentinel values.
package extractor

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-annotator/internal/metrics"
	"github.com/JakeFAU/paper-annotator/internal/paper"
)

// TextSource yields the non-empty text lines of a document's first maxPages pages.
type TextSource interface {
	Lines(ctx context.Context, path string, maxPages int) ([]string, error)
}

// Config tunes the heuristics.
type Config struct {
	MaxPages         int
	TitleScanLines   int
	TitleMinLength   int
	AbstractMaxChars int
}

// DefaultConfig mirrors the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{MaxPages: 2, TitleScanLines: 5, TitleMinLength: 5, AbstractMaxChars: 1000}
}

// Extractor implements paper.Extractor.
type Extractor struct {
	cfg    Config
	source TextSource
	logger *zap.Logger
}

// New constructs an Extractor.
func New(cfg Config, source TextSource, logger *zap.Logger) *Extractor {
	def := DefaultConfig()
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.TitleScanLines <= 0 {
		cfg.TitleScanLines = def.TitleScanLines
	}
	if cfg.TitleMinLength <= 0 {
		cfg.TitleMinLength = def.TitleMinLength
	}
	if cfg.AbstractMaxChars <= 0 {
		cfg.AbstractMaxChars = def.AbstractMaxChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, source: source, logger: logger}
}

// Extract returns the document's metadata, falling back to sentinels.
func (e *Extractor) Extract(ctx context.Context, doc paper.Document) paper.Metadata {
	lines, err := e.source.Lines(ctx, doc.Path, e.cfg.MaxPages)
	if err != nil {
		e.logger.Warn("text extraction failed",
			zap.String("document_id", doc.Item.ID),
			zap.String("path", doc.Path),
			zap.Error(err),
		)
		metrics.ObserveExtraction(false)
		return paper.Metadata{Title: paper.UnknownTitle, Abstract: paper.NoAbstract}
	}
	meta := FromLines(lines, e.cfg)
	if !meta.OK {
		e.logger.Debug("extraction degraded",
			zap.String("document_id", doc.Item.ID),
			zap.String("title", meta.Title),
			zap.Bool("abstract_found", meta.Abstract != paper.NoAbstract),
		)
	}
	metrics.ObserveExtraction(meta.OK)
	return meta
}

// FromLines applies both heuristics to already extracted text lines.
func FromLines(lines []string, cfg Config) paper.Metadata {
	title := ExtractTitle(lines, cfg.TitleScanLines, cfg.TitleMinLength)
	abstract := ExtractAbstract(lines, cfg.AbstractMaxChars)
	return paper.Metadata{
		Title:    title,
		Abstract: abstract,
		OK:       title != paper.UnknownTitle && abstract != paper.NoAbstract,
	}
}
