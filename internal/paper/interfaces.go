package paper

import (
	"context"
	"io"
	"time"
)

// Fetcher brings a WorkItem's bytes to local storage.
type Fetcher interface {
	Fetch(ctx context.Context, item WorkItem) (Document, error)
}

// Extractor recovers title and abstract from a local document. It never fails.
type Extractor interface {
	Extract(ctx context.Context, doc Document) Metadata
}

// Classifier assigns a category label. Only context cancellation is returned as an error.
type Classifier interface {
	Classify(ctx context.Context, title, abstract string) (Classification, error)
}

// Sink appends records durably and answers ledger lookups.
type Sink interface {
	Persist(ctx context.Context, record Record) error
	Ledger
}

// Ledger is the set of document identifiers that already have a record.
type Ledger interface {
	Contains(documentID string) bool
	Len() int
}

// CacheStore is a durable fingerprint to label mapping.
type CacheStore interface {
	Get(ctx context.Context, fingerprint string) (string, bool, error)
	Put(ctx context.Context, fingerprint, label string) error
	Len() int
}

// Discoverer enumerates candidate WorkItems.
type Discoverer interface {
	Discover(ctx context.Context) ([]WorkItem, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Uploader accepts downloaded documents for asynchronous upload.
type Uploader interface {
	Submit(doc Document) bool
}

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RecordHook runs after a record has been persisted. Failures never affect the ledger.
type RecordHook interface {
	Name() string
	AfterPersist(ctx context.Context, record Record) error
}

// Pacer bounds the aggregate rate of completed items across workers.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
