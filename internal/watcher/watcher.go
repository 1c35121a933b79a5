// Package watcher turns filesystem activity in the handshake directory
// into capture events the scheduler can debounce into backup runs.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/AWWShuck/pwnycloud/internal/capture"
)

// Watcher monitors the handshake directory for new capture files
type Watcher struct {
	dir     string
	matcher *capture.Matcher
	watcher *fsnotify.Watcher
	events  chan string
	logger  *slog.Logger

	closeOnce sync.Once
}

// New creates a watcher for the given directory
func New(dir string, matcher *capture.Matcher, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		dir:     dir,
		matcher: matcher,
		watcher: fsWatcher,
		events:  make(chan string, 64),
		logger:  logger,
	}, nil
}

// Events returns the channel that receives paths of new or updated
// capture files. It is closed when the watcher stops.
func (w *Watcher) Events() <-chan string {
	return w.events
}

// Start begins watching the handshake directory. The run loop exits when
// ctx is cancelled. On error the watcher is unusable; the caller must
// Close it to release the fsnotify descriptor.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", w.dir, err)
	}

	w.logger.Info("watching handshake directory", "dir", w.dir)
	go w.run(ctx)
	return nil
}

// run processes fsnotify events until cancellation
func (w *Watcher) run(ctx context.Context) {
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.matcher.IsCaptureFile(event.Name) {
				continue
			}

			w.logger.Debug("capture activity observed", "path", event.Name, "op", event.Op.String())

			select {
			case w.events <- event.Name:
			default:
				// A burst beyond the buffer collapses into the events
				// already queued; the debounced run picks everything up.
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// Close shuts the fsnotify watcher and the events channel down. The run
// loop calls it on cancellation; callers only need it when Start was
// never reached or failed. Safe to call more than once.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		_ = w.watcher.Close()
		close(w.events)
	})
}
