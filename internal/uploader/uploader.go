// Package uploader copies freshly downloaded documents to a blob store in the
// background so that uploads never hold up the annotation pipeline.
package uploader

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-annotator/internal/metrics"
	"github.com/JakeFAU/paper-annotator/internal/paper"
)

const contentType = "application/pdf"

// Config tunes the upload queue.
type Config struct {
	Prefix     string
	QueueDepth int
	Workers    int
	Timeout    time.Duration
}

// Uploader drains a bounded queue of documents into a BlobStore.
type Uploader struct {
	cfg    Config
	store  paper.BlobStore
	logger *zap.Logger

	jobs   chan paper.Document
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	statsMu  sync.Mutex
	uploaded int
	failed   int
	dropped  int
}

// New starts the upload workers.
func New(cfg Config, store paper.BlobStore, logger *zap.Logger) (*Uploader, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	u := &Uploader{
		cfg:    cfg,
		store:  store,
		logger: logger,
		jobs:   make(chan paper.Document, cfg.QueueDepth),
	}
	for i := 0; i < cfg.Workers; i++ {
		u.wg.Add(1)
		go u.loop()
	}
	return u, nil
}

// Submit queues doc without blocking. It returns false when the queue is full or closed.
func (u *Uploader) Submit(doc paper.Document) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.closed {
		return false
	}
	select {
	case u.jobs <- doc:
		return true
	default:
		u.statsMu.Lock()
		u.dropped++
		u.statsMu.Unlock()
		metrics.ObserveUpload("dropped")
		u.logger.Warn("upload queue full; dropping document", zap.String("id", doc.Item.ID))
		return false
	}
}

// Close stops intake and waits for queued uploads, or for ctx to expire.
func (u *Uploader) Close(ctx context.Context) error {
	u.mu.Lock()
	if !u.closed {
		u.closed = true
		close(u.jobs)
	}
	u.mu.Unlock()

	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		u.statsMu.Lock()
		u.logger.Info("uploads drained",
			zap.Int("uploaded", u.uploaded),
			zap.Int("failed", u.failed),
			zap.Int("dropped", u.dropped),
		)
		u.statsMu.Unlock()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for uploads: %w", ctx.Err())
	}
}

// Stats returns counts of uploaded, failed and dropped documents.
func (u *Uploader) Stats() (uploaded, failed, dropped int) {
	u.statsMu.Lock()
	defer u.statsMu.Unlock()
	return u.uploaded, u.failed, u.dropped
}

// ObjectPath is <prefix>/<group>/<id>.
func ObjectPath(prefix string, item paper.WorkItem) string {
	parts := make([]string, 0, 3)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	if item.Group != "" {
		parts = append(parts, item.Group)
	}
	parts = append(parts, item.ID)
	return path.Join(parts...)
}

func (u *Uploader) loop() {
	defer u.wg.Done()
	for doc := range u.jobs {
		err := u.upload(doc)
		u.statsMu.Lock()
		if err != nil {
			u.failed++
		} else {
			u.uploaded++
		}
		u.statsMu.Unlock()
	}
}

func (u *Uploader) upload(doc paper.Document) error {
	ctx, cancel := context.WithTimeout(context.Background(), u.cfg.Timeout)
	defer cancel()

	f, err := os.Open(doc.Path)
	if err != nil {
		metrics.ObserveUpload("error")
		u.logger.Warn("open document for upload", zap.String("path", doc.Path), zap.Error(err))
		return fmt.Errorf("open %s: %w", doc.Path, err)
	}
	defer func() { _ = f.Close() }()

	objectPath := ObjectPath(u.cfg.Prefix, doc.Item)
	uri, err := u.store.PutObject(ctx, objectPath, contentType, f)
	if err != nil {
		metrics.ObserveUpload("error")
		u.logger.Warn("upload failed", zap.String("object", objectPath), zap.Error(err))
		return fmt.Errorf("upload %s: %w", objectPath, err)
	}
	metrics.ObserveUpload("success")
	u.logger.Debug("uploaded document", zap.String("id", doc.Item.ID), zap.String("uri", uri))
	return nil
}
