package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AWWShuck/pwnycloud/internal/capture"
	"github.com/AWWShuck/pwnycloud/internal/config"
	"github.com/AWWShuck/pwnycloud/internal/manifest"
	"github.com/AWWShuck/pwnycloud/internal/rclone"
	"github.com/AWWShuck/pwnycloud/internal/stats"
)

var (
	// ErrRunInProgress is returned when a run request arrives while
	// another run holds the lock. The request is not queued; the next
	// scheduled tick or event retries naturally.
	ErrRunInProgress = errors.New("backup run already in progress")

	// ErrNoSourceDir means the handshake directory is missing
	ErrNoSourceDir = errors.New("handshake directory does not exist")

	// ErrTransferUnavailable means rclone is missing or misconfigured
	ErrTransferUnavailable = errors.New("transfer tool unavailable")

	// ErrNoNetwork means the remote could not be reached
	ErrNoNetwork = errors.New("remote not reachable")
)

// Engine orchestrates backup runs. It owns the run lock and is the only
// component that mutates the manifest; everything else reads snapshots.
type Engine struct {
	cfg      *config.Config
	store    *manifest.Store
	transfer rclone.Client
	reporter *stats.Reporter
	matcher  *capture.Matcher
	logger   *slog.Logger

	lock runLock

	mu      sync.Mutex // guards current
	current *manifest.Manifest
}

// NewEngine creates the orchestrator and loads the persisted manifest
func NewEngine(cfg *config.Config, store *manifest.Store, transfer rclone.Client, reporter *stats.Reporter, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		transfer: transfer,
		reporter: reporter,
		matcher:  capture.NewMatcher(cfg.Source.Extensions),
		logger:   logger,
		current:  store.Load(),
	}
}

// Run executes one backup run. Overlapping requests observe
// ErrRunInProgress; prerequisite failures release the lock and return one
// of the sentinel errors. Per-file failures never abort the run.
func (e *Engine) Run(ctx context.Context, trigger Trigger) (*Result, error) {
	started := time.Now()

	token, acquired, wasStuck := e.lock.TryAcquire(started, e.cfg.Backup.StuckLockTimeout)
	if !acquired {
		e.logger.Info("backup already running, skipping", "trigger", trigger)
		return nil, ErrRunInProgress
	}
	defer e.lock.Release(token)

	if wasStuck {
		e.logger.Warn("cleared stuck run lock held past maximum duration",
			"stuck_lock_timeout", e.cfg.Backup.StuckLockTimeout)
	}

	e.reporter.RunStarted()

	if err := e.checkPrerequisites(ctx); err != nil {
		e.reporter.RunAborted()
		e.logger.Error("backup prerequisites not met", "trigger", trigger, "error", err)
		return nil, err
	}

	working := e.snapshot()
	files, err := e.changedFiles(working)
	if err != nil {
		e.reporter.RunAborted()
		return nil, err
	}

	result := &Result{
		ID:           uuid.NewString(),
		Trigger:      trigger,
		Attempted:    len(files),
		PerExtension: make(map[string]stats.ExtensionCount),
		Started:      started,
		TestMode:     e.cfg.Backup.TestMode,
	}

	e.logger.Info("starting backup run",
		"run_id", result.ID,
		"trigger", trigger,
		"files", len(files),
		"generation", working.Generation,
		"test_mode", e.cfg.Backup.TestMode)

	if e.cfg.Backup.TestMode {
		for _, f := range files {
			e.logger.Info("[test mode] would upload", "path", f.relPath, "size", f.size)
		}
		result.Duration = time.Since(started)
		e.reporter.RunAborted()
		e.logger.Info("test mode run complete, no changes applied", "run_id", result.ID)
		return result, nil
	}

	for _, f := range files {
		if ctx.Err() != nil {
			e.logger.Info("shutdown requested, stopping run early",
				"run_id", result.ID, "remaining", result.Attempted-result.Succeeded-result.Failed)
			break
		}

		if err := e.uploadWithRetry(ctx, f); err != nil {
			e.logger.Error("file upload failed", "run_id", result.ID, "path", f.relPath, "error", err)
			result.recordFailure(f.extension)
			continue
		}

		working.Record(manifest.FileRecord{
			Path:       f.relPath,
			Size:       f.size,
			ModTime:    f.modTime,
			UploadedAt: time.Now(),
			Extension:  f.extension,
		})
		result.recordSuccess(f.extension)
	}

	// Persist once per run, including partial progress on early abort.
	if err := e.persist(working); err != nil {
		e.logger.Error("failed to persist manifest", "run_id", result.ID, "error", err)
	}

	result.Duration = time.Since(started)
	e.reporter.RunFinished(result.Summary(), result.PerExtension, time.Now())

	e.logger.Info("backup run complete",
		"run_id", result.ID,
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"duration", result.Duration)

	return result, nil
}

// checkPrerequisites verifies the source directory and the transfer
// collaborator before any work starts.
func (e *Engine) checkPrerequisites(ctx context.Context) error {
	info, err := os.Stat(e.cfg.Source.HandshakesDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNoSourceDir, e.cfg.Source.HandshakesDir)
	}

	if err := e.transfer.IsAvailable(ctx); err != nil {
		return fmt.Errorf("%w: %s", ErrTransferUnavailable, err)
	}

	if err := e.transfer.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s", ErrNoNetwork, err)
	}

	return nil
}

// uploadWithRetry transfers one file, retrying transient failures with
// linear backoff. Permanent failures and shutdown stop the attempts; the
// file's prior manifest record, if any, stays untouched.
func (e *Engine) uploadWithRetry(ctx context.Context, f candidate) error {
	remoteDir := e.remoteDirFor(f.relPath)

	var lastErr error
	for attempt := 1; attempt <= e.cfg.Backup.Retries; attempt++ {
		lastErr = e.transfer.Copy(ctx, f.absPath, remoteDir)
		if lastErr == nil {
			e.logger.Info("uploaded file", "path", f.relPath, "attempt", attempt)
			return nil
		}

		var perm *rclone.PermanentError
		if errors.As(lastErr, &perm) {
			return lastErr
		}

		if attempt == e.cfg.Backup.Retries {
			break
		}

		backoff := time.Duration(attempt) * e.cfg.Backup.RetryBackoff
		e.logger.Warn("transient upload failure, retrying",
			"path", f.relPath, "attempt", attempt, "backoff", backoff, "error", lastErr)

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", e.cfg.Backup.Retries, lastErr)
}

// remoteDirFor maps a relative source path to its destination directory,
// preserving any subdirectory structure under the remote target.
func (e *Engine) remoteDirFor(relPath string) string {
	target := e.cfg.RemoteTarget()
	if dir := filepath.Dir(relPath); dir != "." {
		target = target + "/" + path.Clean(filepath.ToSlash(dir))
	}
	return target
}

// snapshot returns a working copy of the current manifest
func (e *Engine) snapshot() *manifest.Manifest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Clone()
}

// persist installs and saves the run's working manifest, unless a reset
// bumped the generation mid-run, in which case the run's records belong to
// a discarded generation and are dropped.
func (e *Engine) persist(working *manifest.Manifest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current.Generation != working.Generation {
		e.logger.Warn("manifest reset during run, discarding run records",
			"run_generation", working.Generation, "current_generation", e.current.Generation)
		return nil
	}

	if err := e.store.Save(working); err != nil {
		return err
	}
	e.current = working
	return nil
}

// Reset clears the manifest and persists the empty copy immediately. The
// next run re-uploads every file currently present.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	fresh, err := e.store.Reset(e.current)
	if err != nil {
		return err
	}
	e.current = fresh
	return nil
}

// Running reports whether a run currently holds the lock
func (e *Engine) Running() bool {
	running, _ := e.lock.State()
	return running
}

// Generation returns the current manifest generation
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Generation
}

// Tracked reports whether relPath already has a manifest record. The
// watcher uses this to avoid scheduling runs for captures that are
// already uploaded and unchanged.
func (e *Engine) Tracked(relPath string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.current.Lookup(relPath)
	return ok
}

// VerifyTransfer checks rclone availability with a few retries, for use
// at daemon startup. Failure is logged by the caller, not fatal: every
// run re-checks its prerequisites.
func (e *Engine) VerifyTransfer(ctx context.Context, attempts int, delay time.Duration) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = e.transfer.IsAvailable(ctx); err == nil {
			return nil
		}
		e.logger.Warn("transfer tool verification failed",
			"attempt", i, "attempts", attempts, "error", err)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
	return err
}
