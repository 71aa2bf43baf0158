package paper

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by pipeline components.
var (
	// ErrTransientFetch marks a download that failed after exhausting its retries.
	ErrTransientFetch = errors.New("transient fetch error")
	// ErrAlreadyPersisted is returned by a sink when the document already has a record.
	ErrAlreadyPersisted = errors.New("document already persisted")
)

// FetchError reports a WorkItem that could not be downloaded in this run.
type FetchError struct {
	Item     WorkItem
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s) after %d attempt(s): %v", e.Item.ID, e.Item.Source, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
