package status

import (
	"sync"
	"time"

	"sonatabench/internal/bench"
)

// PhaseTiming is a finished phase.
type PhaseTiming struct {
	Phase   bench.Phase `json:"phase"`
	Seconds float64     `json:"seconds"`
}

// Snapshot is the progress of a run at one point in time.
type Snapshot struct {
	Example   string        `json:"example"`
	NVP       int           `json:"nvp"`
	StartedAt time.Time     `json:"started_at"`
	Current   bench.Phase   `json:"current,omitempty"`
	Completed []PhaseTiming `json:"completed"`
	Finished  bool          `json:"finished"`
	Error     string        `json:"error,omitempty"`
}

// Tracker records run progress. It implements bench.Observer and is safe
// for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	snap   Snapshot
	report *bench.Report
}

// NewTracker creates a Tracker for a run of example.
func NewTracker(example string, nvp int, started time.Time) *Tracker {
	return &Tracker{snap: Snapshot{Example: example, NVP: nvp, StartedAt: started.UTC(), Completed: []PhaseTiming{}}}
}

// PhaseStarted implements bench.Observer.
func (t *Tracker) PhaseStarted(p bench.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Current = p
}

// PhaseFinished implements bench.Observer.
func (t *Tracker) PhaseFinished(p bench.Phase, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Current == p {
		t.snap.Current = ""
	}
	t.snap.Completed = append(t.snap.Completed, PhaseTiming{Phase: p, Seconds: elapsed.Seconds()})
}

// WriteReport stores the final report, so a Tracker can sit among the
// output writers.
func (t *Tracker) WriteReport(r bench.Report) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report = &r
	t.snap.Current = ""
	t.snap.Finished = true
	return nil
}

// Fail marks the run as failed.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Finished = true
	t.snap.Current = ""
	if err != nil {
		t.snap.Error = err.Error()
	}
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.snap
	s.Completed = append([]PhaseTiming(nil), t.snap.Completed...)
	return s
}

// Report returns the final report once the run has finished.
func (t *Tracker) Report() (bench.Report, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.report == nil {
		return bench.Report{}, false
	}
	return *t.report, true
}
