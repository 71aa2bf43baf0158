// Package paper defines the core types shared across the annotation pipeline.
package paper

import "strings"

// Sentinel values written when extraction or classification cannot produce a result.
const (
	UnknownTitle    = "Unknown Title"
	NoAbstract      = "No abstract found"
	UnknownCategory = "Unknown"
)

// DefaultCategories is the taxonomy used when none is configured.
var DefaultCategories = []string{
	"Deep Learning",
	"NLP",
	"Computer Vision",
	"Reinforcement Learning",
	"Optimization & Theoretical ML",
}

// WorkItem identifies one candidate document discovered for processing.
type WorkItem struct {
	// Source is a URL or a local filesystem path.
	Source string `json:"source"`
	// Group is the logical grouping key, the publication year for the archive.
	Group string `json:"group"`
	// ID is stable across runs (the PDF filename).
	ID string `json:"id"`
}

// IsRemote reports whether the source must be fetched over HTTP.
func (w WorkItem) IsRemote() bool {
	return strings.HasPrefix(w.Source, "http://") || strings.HasPrefix(w.Source, "https://")
}

// Document points at the local copy of a WorkItem's bytes.
type Document struct {
	Item WorkItem
	Path string
	// Skipped is true when the file was already present and no download happened.
	Skipped bool
	Bytes   int64
}

// Metadata is the best-effort bibliographic information recovered from a document.
type Metadata struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	// OK is false when either heuristic fell back to its sentinel.
	OK bool `json:"extraction_ok"`
}

// LabelSource records where a classification label came from.
type LabelSource string

// Label sources.
const (
	SourceCache    LabelSource = "cache"
	SourceService  LabelSource = "service"
	SourceFallback LabelSource = "fallback"
)

// Classification is the label assigned to a document.
type Classification struct {
	Label  string      `json:"label"`
	Source LabelSource `json:"source"`
}

// Fallback returns the sentinel classification.
func Fallback() Classification {
	return Classification{Label: UnknownCategory, Source: SourceFallback}
}

// Record is the terminal, persisted unit: one row per document.
type Record struct {
	Title      string `json:"title"`
	Abstract   string `json:"abstract"`
	Label      string `json:"label"`
	DocumentID string `json:"document_id"`
	Group      string `json:"group"`
}

// NewRecord assembles a Record from the outputs of each stage.
func NewRecord(item WorkItem, meta Metadata, class Classification) Record {
	return Record{
		Title:      meta.Title,
		Abstract:   meta.Abstract,
		Label:      class.Label,
		DocumentID: item.ID,
		Group:      item.Group,
	}
}

// ItemStatus is the terminal state of one WorkItem within a run.
type ItemStatus string

// Item status values reported by the pipeline.
const (
	ItemProcessed ItemStatus = "processed"
	ItemSkipped   ItemStatus = "skipped"
	ItemFailed    ItemStatus = "failed"
	ItemCanceled  ItemStatus = "canceled"
)

// ItemResult is streamed by the pipeline for every dispatched WorkItem.
type ItemResult struct {
	Item   WorkItem
	Status ItemStatus
	Record *Record
	// Classification is set for processed items.
	Classification Classification
	Degraded       bool
	Err            error
}
