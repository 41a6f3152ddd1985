package reading

import (
	"fmt"
	"time"
)

// Phase names one step of a synchronization.
type Phase string

// Synchronization phases.
const (
	PhaseLogin   Phase = "login"
	PhasePush    Phase = "push"
	PhaseFolders Phase = "folders"
	PhaseFeeds   Phase = "feeds"
	PhaseItems   Phase = "items"
	PhaseState   Phase = "state"
)

// FeedError records the failure of a single feed.
type FeedError struct {
	FeedID   int64
	FeedURL  string
	FeedName string
	Err      error
}

func (e FeedError) Error() string {
	name := e.FeedName
	if name == "" {
		name = e.FeedURL
	}
	return fmt.Sprintf("%s: %v", name, e.Err)
}

// PhaseError records the failure of a whole phase.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

// Mutations counts local store changes made by a sync.
type Mutations struct {
	Inserted     int
	Updated      int
	Deleted      int
	StateChanged int
}

// Total returns the number of net local mutations.
func (m Mutations) Total() int {
	return m.Inserted + m.Updated + m.Deleted + m.StateChanged
}

// Count adds one upsert outcome.
func (m *Mutations) Count(c Change) {
	switch c {
	case Inserted:
		m.Inserted++
	case Updated:
		m.Updated++
	}
}

// FetchReport summarizes the per-feed fetch fan-out.
type FetchReport struct {
	Requested   int
	Succeeded   int
	NotModified int
	Failed      int
	TimedOut    int
}

// SyncStatus is the user-visible outcome of a sync.
type SyncStatus int

const (
	// SyncSuccess means every feed and phase completed.
	SyncSuccess SyncStatus = iota
	// SyncSuccessWithErrors means some feeds or phases failed.
	SyncSuccessWithErrors
	// SyncFailed means every feed or every phase failed.
	SyncFailed
)

// String implements fmt.Stringer.
func (s SyncStatus) String() string {
	switch s {
	case SyncSuccessWithErrors:
		return "success with errors"
	case SyncFailed:
		return "failed"
	default:
		return "success"
	}
}

// SyncResult aggregates the outcome of one account synchronization.
type SyncResult struct {
	AccountID  int64
	SyncID     string
	StartedAt  time.Time
	FinishedAt time.Time

	Mutations Mutations
	Fetch     FetchReport

	FeedsAttempted  int
	PhasesAttempted int
	FeedErrors      []FeedError
	PhaseErrors     []PhaseError

	NeedsReauth bool
}

// AddFeedError records a per-feed failure.
func (r *SyncResult) AddFeedError(feed Feed, err error) {
	if err == nil {
		return
	}
	if IsAuth(err) {
		r.NeedsReauth = true
	}
	r.FeedErrors = append(r.FeedErrors, FeedError{
		FeedID:   feed.ID,
		FeedURL:  feed.URL,
		FeedName: feed.Name,
		Err:      err,
	})
}

// AddPhaseError records a per-phase failure.
func (r *SyncResult) AddPhaseError(phase Phase, err error) {
	if err == nil {
		return
	}
	if IsAuth(err) {
		r.NeedsReauth = true
	}
	r.PhaseErrors = append(r.PhaseErrors, PhaseError{Phase: phase, Err: err})
}

// HasErrors reports whether anything failed.
func (r SyncResult) HasErrors() bool {
	return len(r.FeedErrors) > 0 || len(r.PhaseErrors) > 0
}

// Status classifies the result.
func (r SyncResult) Status() SyncStatus {
	if !r.HasErrors() {
		return SyncSuccess
	}
	if r.FeedsAttempted > 0 && len(r.FeedErrors) >= r.FeedsAttempted {
		return SyncFailed
	}
	if r.PhasesAttempted > 0 && len(r.PhaseErrors) >= r.PhasesAttempted {
		return SyncFailed
	}
	return SyncSuccessWithErrors
}

// ErrorSummaries returns one line per failure for display.
func (r SyncResult) ErrorSummaries() []string {
	out := make([]string, 0, len(r.FeedErrors)+len(r.PhaseErrors))
	for _, e := range r.PhaseErrors {
		out = append(out, e.Error())
	}
	for _, e := range r.FeedErrors {
		out = append(out, e.Error())
	}
	return out
}
