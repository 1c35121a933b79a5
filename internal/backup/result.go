package backup

import (
	"time"

	"github.com/AWWShuck/pwnycloud/internal/stats"
)

// Trigger identifies what requested a backup run
type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerSchedule Trigger = "schedule"
	TriggerEvent    Trigger = "event"
	TriggerRemote   Trigger = "remote-trigger"
	TriggerManual   Trigger = "manual"
)

// Result summarizes one backup run. It is ephemeral: only the most recent
// result survives, in the reporter's last-run snapshot.
type Result struct {
	ID           string
	Trigger      Trigger
	Attempted    int
	Succeeded    int
	Failed       int
	PerExtension map[string]stats.ExtensionCount
	Started      time.Time
	Duration     time.Duration
	TestMode     bool
}

// Summary converts the result into the reporter's run snapshot
func (r *Result) Summary() stats.RunSummary {
	return stats.RunSummary{
		ID:        r.ID,
		Trigger:   string(r.Trigger),
		Attempted: r.Attempted,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
	}
}

// recordSuccess counts one uploaded file
func (r *Result) recordSuccess(ext string) {
	r.Succeeded++
	count := r.PerExtension[ext]
	count.Attempted++
	count.Succeeded++
	r.PerExtension[ext] = count
}

// recordFailure counts one file that exhausted its attempts
func (r *Result) recordFailure(ext string) {
	r.Failed++
	count := r.PerExtension[ext]
	count.Attempted++
	r.PerExtension[ext] = count
}
