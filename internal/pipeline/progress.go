package pipeline

import (
	"sync"
	"time"

	"github.com/JakeFAU/paper-annotator/internal/paper"
)

// Stats summarizes one run.
type Stats struct {
	RunID      string    `json:"run_id"`
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Canceled   int       `json:"canceled"`
	Fallback   int       `json:"fallback"`
	Degraded   int       `json:"degraded"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Done reports how many items reached a terminal state.
func (s Stats) Done() int {
	return s.Processed + s.Skipped + s.Failed + s.Canceled
}

// Tracker accumulates Stats while a run is in flight. It is safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	stats Stats
	last  *paper.Record
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) start(runID string, total int, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = Stats{RunID: runID, Total: total, StartedAt: at}
	t.last = nil
}

func (t *Tracker) observe(res paper.ItemResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch res.Status {
	case paper.ItemProcessed:
		t.stats.Processed++
		if res.Classification.Source == paper.SourceFallback && res.Record != nil {
			t.stats.Fallback++
		}
		if res.Degraded {
			t.stats.Degraded++
		}
		if res.Record != nil {
			rec := *res.Record
			t.last = &rec
		}
	case paper.ItemSkipped:
		t.stats.Skipped++
	case paper.ItemFailed:
		t.stats.Failed++
	case paper.ItemCanceled:
		t.stats.Canceled++
	}
}

func (t *Tracker) finish(at time.Time) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.FinishedAt = at
	return t.stats
}

// Snapshot is a point-in-time view of a run for the progress endpoint.
type Snapshot struct {
	Stats
	Running    bool          `json:"running"`
	LastRecord *paper.Record `json:"last_record,omitempty"`
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := Snapshot{
		Stats:   t.stats,
		Running: !t.stats.StartedAt.IsZero() && t.stats.FinishedAt.IsZero(),
	}
	if t.last != nil {
		rec := *t.last
		snap.LastRecord = &rec
	}
	return snap
}
