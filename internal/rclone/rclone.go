// Package rclone shells out to the rclone binary to move capture files to
// the configured remote. The engine only depends on the Client interface;
// transfer semantics (auth, protocol, dedup) belong to rclone itself.
package rclone

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Client provides file transfer operations against a configured remote
type Client interface {
	// IsAvailable verifies the rclone binary is installed and the
	// configured remote exists in its configuration.
	IsAvailable(ctx context.Context) error

	// Ping verifies the remote is reachable over the network.
	Ping(ctx context.Context) error

	// Copy transfers a single local file into remoteDir. Failures are
	// returned as *TransientError or *PermanentError.
	Copy(ctx context.Context, localPath, remoteDir string) error
}

// TransientError marks a failure worth retrying (network hiccup, timeout,
// rate limit).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that retrying cannot fix (vanished source
// file, bad usage, auth rejection).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// ShellClient implements Client by invoking the rclone command
type ShellClient struct {
	remoteName     string
	configPath     string
	bandwidthLimit string
	extraArgs      []string
	copyTimeout    time.Duration
}

// NewShellClient creates a client for the named rclone remote. configPath
// and bandwidthLimit may be empty; extraArgs are appended to every copy.
func NewShellClient(remoteName, configPath, bandwidthLimit string, extraArgs []string, copyTimeout time.Duration) *ShellClient {
	return &ShellClient{
		remoteName:     remoteName,
		configPath:     configPath,
		bandwidthLimit: bandwidthLimit,
		extraArgs:      extraArgs,
		copyTimeout:    copyTimeout,
	}
}

// IsAvailable checks for the rclone binary and the configured remote
func (c *ShellClient) IsAvailable(ctx context.Context) error {
	if _, err := exec.LookPath("rclone"); err != nil {
		return fmt.Errorf("rclone binary not found: %w", err)
	}

	args := c.baseArgs()
	args = append(args, "listremotes")

	cmd := exec.CommandContext(ctx, "rclone", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("rclone listremotes failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	want := c.remoteName + ":"
	for _, line := range strings.Split(string(output), "\n") {
		if strings.TrimSpace(line) == want {
			return nil
		}
	}
	return fmt.Errorf("remote %q not found in rclone configuration", c.remoteName)
}

// Ping lists the remote root to confirm it is reachable
func (c *ShellClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	args := c.baseArgs()
	args = append(args, "lsf", "--max-depth", "1", c.remoteName+":")

	cmd := exec.CommandContext(ctx, "rclone", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("remote %q not reachable: %w: %s", c.remoteName, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Copy uploads one file into remoteDir
func (c *ShellClient) Copy(ctx context.Context, localPath, remoteDir string) error {
	if c.copyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.copyTimeout)
		defer cancel()
	}

	args := c.baseArgs()
	args = append(args, "copy", localPath, remoteDir)
	if c.bandwidthLimit != "" {
		args = append(args, "--bwlimit", c.bandwidthLimit)
	}
	args = append(args, c.extraArgs...)

	cmd := exec.CommandContext(ctx, "rclone", args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	return classify(ctx, err, strings.TrimSpace(string(output)), localPath)
}

// baseArgs returns the flags common to every rclone invocation
func (c *ShellClient) baseArgs() []string {
	var args []string
	if c.configPath != "" {
		args = append(args, "--config", c.configPath)
	}
	return args
}

// rclone exit codes, per its documented conventions. Codes that indicate
// missing objects or operator error are not retryable; temporary and
// unclassified failures are.
const (
	exitUsage        = 1
	exitDirNotFound  = 3
	exitFileNotFound = 4
	exitTemporary    = 5
	exitFatal        = 7
)

// classify buckets a failed copy into transient or permanent
func classify(ctx context.Context, err error, output, localPath string) error {
	// Context expiry (timeout or shutdown) counts as transient so a later
	// run retries the file.
	if ctx.Err() != nil {
		return &TransientError{Err: fmt.Errorf("rclone copy interrupted for %s: %w", localPath, ctx.Err())}
	}

	wrapped := fmt.Errorf("rclone copy failed for %s: %w: %s", localPath, err, output)

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case exitUsage, exitDirNotFound, exitFileNotFound, exitFatal:
			return &PermanentError{Err: wrapped}
		case exitTemporary:
			return &TransientError{Err: wrapped}
		}
	}

	return &TransientError{Err: wrapped}
}
