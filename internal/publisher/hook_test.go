package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paper-annotator/internal/clock/system"
	"github.com/JakeFAU/paper-annotator/internal/paper"
	"github.com/JakeFAU/paper-annotator/internal/publisher/memory"
)

func TestRecordHookPublishes(t *testing.T) {
	pub := memory.New()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	hook := NewRecordHook(pub, "records", "run-1", system.Fixed{At: at})
	assert.Equal(t, "pubsub", hook.Name())

	rec := paper.Record{Title: "T", Abstract: "A", Label: "NLP", DocumentID: "a.pdf", Group: "2023"}
	require.NoError(t, hook.AfterPersist(context.Background(), rec))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "records", msgs[0].Topic)
	var got Notification
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, Notification{
		RunID: "run-1", DocumentID: "a.pdf", Group: "2023", Title: "T", Label: "NLP", PersistedAt: at,
	}, got)
}

func TestRecordHookPropagatesErrors(t *testing.T) {
	pub := memory.New()
	boom := errors.New("down")
	pub.FailWith(boom)
	hook := NewRecordHook(pub, "records", "run-1", system.Fixed{At: time.Now()})

	err := hook.AfterPersist(context.Background(), paper.Record{DocumentID: "a.pdf"})
	require.ErrorIs(t, err, boom)
}
