package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AWWShuck/pwnycloud/internal/backup"
	"github.com/AWWShuck/pwnycloud/internal/capture"
	"github.com/AWWShuck/pwnycloud/internal/config"
	"github.com/AWWShuck/pwnycloud/internal/manifest"
	"github.com/AWWShuck/pwnycloud/internal/rclone"
	"github.com/AWWShuck/pwnycloud/internal/server"
	"github.com/AWWShuck/pwnycloud/internal/stats"
	"github.com/AWWShuck/pwnycloud/internal/watcher"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pwnycloudd",
	Short: "Mirror captured handshakes to a cloud remote via rclone",
	Long: `pwnycloudd incrementally backs up captured wireless handshake files to any
rclone-configured cloud remote.

It can run as a oneshot sync or as a long-running daemon that backs up on a
schedule, reacts to freshly captured files, and exposes a remote trigger and
status endpoint.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the backup daemon",
	Long: `Run starts the long-running backup daemon: an immediate startup backup,
a periodic schedule, a debounced trigger for freshly captured handshakes,
and the control plane HTTP server for remote trigger/reset/status.`,
	RunE: runDaemon,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Perform a one-time backup run",
	Long: `Sync scans the handshake directory, compares each capture against the
upload manifest, and transfers new or modified files to the remote.

Files already uploaded and unchanged are skipped, so repeated runs are cheap.`,
	RunE: runSync,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pwnycloudd %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/pwnycloud/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Sync command flags
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be uploaded without transferring anything")

	// Add commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(versionCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine, reporter := buildEngine(cfg, logger)

	// Not fatal: every run re-checks its prerequisites, so a remote that
	// comes up later just makes the first runs fail cleanly.
	if err := engine.VerifyTransfer(ctx, 3, 5*time.Second); err != nil {
		logger.Error("rclone verification failed, runs will retry", "error", err)
	}

	var events <-chan string
	matcher := capture.NewMatcher(cfg.Source.Extensions)
	w, err := watcher.New(cfg.Source.HandshakesDir, matcher, logger)
	if err != nil {
		logger.Warn("capture watcher unavailable, relying on schedule only", "error", err)
	} else if err := w.Start(ctx); err != nil {
		logger.Warn("capture watcher failed to start, relying on schedule only", "error", err)
		w.Close()
	} else {
		events = w.Events()
	}

	srv := server.NewServer(cfg, engine, reporter, events, logger)

	logger.Info("starting backup daemon",
		"handshakes_dir", cfg.Source.HandshakesDir,
		"remote", cfg.RemoteTarget(),
		"interval", cfg.Backup.Interval,
		"serve", cfg.Serve.Enabled)

	return srv.Start(ctx)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dryRun {
		cfg.Backup.TestMode = true
	}

	engine, _ := buildEngine(cfg, logger)

	logger.Info("starting backup run")
	result, err := engine.Run(ctx, backup.TriggerManual)
	if err != nil {
		logger.Error("backup failed", "error", err)
		return err
	}

	if result.Failed > 0 {
		return errors.New("backup completed with failures")
	}
	return nil
}

// buildEngine wires the store, transfer client, reporter and engine
func buildEngine(cfg *config.Config, logger *slog.Logger) (*backup.Engine, *stats.Reporter) {
	store := manifest.NewStore(cfg.ManifestPath(), logger)
	transfer := rclone.NewShellClient(
		cfg.Remote.Name,
		cfg.Remote.RcloneConfig,
		cfg.Remote.BandwidthLimit,
		cfg.Remote.ExtraArgs,
		cfg.Backup.TransferTimeout,
	)
	reporter := stats.NewReporter()
	engine := backup.NewEngine(cfg, store, transfer, reporter, logger)
	return engine, reporter
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/pwnycloud/config.yaml", home)
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"handshakes_dir", cfg.Source.HandshakesDir,
		"remote", cfg.RemoteTarget(),
		"interval", cfg.Backup.Interval,
		"state_dir", cfg.State.Dir)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
