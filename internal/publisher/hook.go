// Package publisher turns persisted records into outbound notifications.
package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/paper-annotator/internal/paper"
)

// HookName identifies the notifier in logs and metrics.
const HookName = "pubsub"

// Notification is the JSON body published for each persisted record.
type Notification struct {
	RunID       string    `json:"run_id"`
	DocumentID  string    `json:"document_id"`
	Group       string    `json:"group"`
	Title       string    `json:"title"`
	Label       string    `json:"label"`
	PersistedAt time.Time `json:"persisted_at"`
}

// RecordHook publishes a Notification after every persisted record.
type RecordHook struct {
	pub   paper.Publisher
	topic string
	runID string
	clock paper.Clock
}

// NewRecordHook wires a Publisher into the pipeline's post-persist hooks.
func NewRecordHook(pub paper.Publisher, topic, runID string, clock paper.Clock) *RecordHook {
	return &RecordHook{pub: pub, topic: topic, runID: runID, clock: clock}
}

// Name implements paper.RecordHook.
func (h *RecordHook) Name() string { return HookName }

// AfterPersist implements paper.RecordHook.
func (h *RecordHook) AfterPersist(ctx context.Context, record paper.Record) error {
	msg := Notification{
		RunID:       h.runID,
		DocumentID:  record.DocumentID,
		Group:       record.Group,
		Title:       record.Title,
		Label:       record.Label,
		PersistedAt: h.clock.Now(),
	}
	if _, err := h.pub.Publish(ctx, h.topic, msg); err != nil {
		return fmt.Errorf("notify %s: %w", record.DocumentID, err)
	}
	return nil
}
