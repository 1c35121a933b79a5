package server

import (
	"context"
	"time"

	"github.com/AWWShuck/pwnycloud/internal/backup"
	"github.com/AWWShuck/pwnycloud/internal/capture"
)

// scheduleLoop performs an immediate startup run, then triggers a run at
// every interval tick. A tick that lands while a run is in flight simply
// observes the skip; the following tick retries naturally.
func (s *Server) scheduleLoop(ctx context.Context) {
	s.runBackground(ctx, backup.TriggerStartup)

	ticker := time.NewTicker(s.cfg.Backup.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runBackground(ctx, backup.TriggerSchedule)
		}
	}
}

// eventLoop consumes capture events and schedules a debounced run. A
// burst of captures collapses into one run, fired debounce-delay after
// the last event. Events for files already tracked and unchanged are
// ignored so re-writes of uploaded captures do not churn the schedule.
func (s *Server) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case path, ok := <-s.events:
			if !ok {
				return
			}

			relPath, err := capture.RelativePath(s.cfg.Source.HandshakesDir, path)
			if err == nil && s.engine.Tracked(relPath) {
				s.logger.Debug("capture already tracked, not scheduling", "path", relPath)
				continue
			}

			s.logger.Info("new capture observed, scheduling debounced backup",
				"path", path, "debounce", s.cfg.Backup.Debounce)

			s.debounce.trigger(func() {
				s.runBackground(s.runCtx, backup.TriggerEvent)
			})
		}
	}
}

// runBackground executes a run and logs the outcome; Skipped is routine
func (s *Server) runBackground(ctx context.Context, trigger backup.Trigger) {
	if ctx.Err() != nil {
		return
	}

	if _, err := s.engine.Run(ctx, trigger); err != nil && err != backup.ErrRunInProgress {
		s.logger.Error("backup run failed", "trigger", trigger, "error", err)
	}
}
