// Package stats accumulates process-lifetime backup counters and renders
// the minimal status line shown on the unit display.
package stats

import (
	"fmt"
	"sync"
	"time"
)

// ExtensionCount holds lifetime attempt/success counters for one extension
type ExtensionCount struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
}

// RunSummary is the snapshot of the most recent completed run
type RunSummary struct {
	ID        string `json:"id"`
	Trigger   string `json:"trigger"`
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// Reporter aggregates per-extension counters across runs. All methods are
// safe for concurrent use; readers never block on an in-flight run.
type Reporter struct {
	mu           sync.RWMutex
	running      bool
	lastRun      *RunSummary
	lastSuccess  time.Time
	perExtension map[string]ExtensionCount
}

// NewReporter creates an empty reporter
func NewReporter() *Reporter {
	return &Reporter{
		perExtension: make(map[string]ExtensionCount),
	}
}

// RunStarted marks a run as in progress
func (r *Reporter) RunStarted() {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()
}

// RunFinished records the outcome of a completed run. The last-success
// timestamp only advances when every attempted file succeeded; a run with
// failures, or one cut short by shutdown with files still pending, keeps
// the prior known-good time visible.
func (r *Reporter) RunFinished(summary RunSummary, perExtension map[string]ExtensionCount, finished time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = false
	r.lastRun = &summary

	for ext, count := range perExtension {
		total := r.perExtension[ext]
		total.Attempted += count.Attempted
		total.Succeeded += count.Succeeded
		r.perExtension[ext] = total
	}

	if summary.Succeeded == summary.Attempted {
		r.lastSuccess = finished
	}
}

// RunAborted clears the running flag without recording a result (used when
// a run fails its prerequisites).
func (r *Reporter) RunAborted() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// Running reports whether a run is in progress
func (r *Reporter) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// LastSuccess returns the timestamp of the last fully successful run, or
// the zero time if no run has completed cleanly yet.
func (r *Reporter) LastSuccess() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSuccess
}

// LastRun returns a copy of the most recent run summary, or nil
func (r *Reporter) LastRun() *RunSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastRun == nil {
		return nil
	}
	summary := *r.lastRun
	return &summary
}

// PerExtension returns a copy of the lifetime per-extension counters
func (r *Reporter) PerExtension() map[string]ExtensionCount {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ExtensionCount, len(r.perExtension))
	for ext, count := range r.perExtension {
		out[ext] = count
	}
	return out
}

// StatusLine renders the minimal sync indicator: "Sync: ..." while a run
// is in progress, "Sync: OK HH:MM" after a clean run, "Sync: OK" before
// any run has completed.
func (r *Reporter) StatusLine() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.running {
		return "Sync: ..."
	}
	if r.lastSuccess.IsZero() {
		return "Sync: OK"
	}
	return fmt.Sprintf("Sync: OK %s", r.lastSuccess.Format("15:04"))
}
