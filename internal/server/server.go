// Package server hosts the control plane HTTP surface and the trigger
// hub: the periodic schedule, the debounced capture-event trigger and the
// remote trigger all funnel into the backup engine, which serializes them
// through its run lock.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/AWWShuck/pwnycloud/internal/activation"
	"github.com/AWWShuck/pwnycloud/internal/backup"
	"github.com/AWWShuck/pwnycloud/internal/config"
	"github.com/AWWShuck/pwnycloud/internal/stats"
)

// Server implements the control plane and owns the trigger hub
type Server struct {
	cfg      *config.Config
	engine   *backup.Engine
	reporter *stats.Reporter
	logger   *slog.Logger
	events   <-chan string
	debounce *debouncer

	// runCtx is the lifecycle context background runs execute under, so
	// shutdown reaches an in-flight run.
	runCtx context.Context
}

// statusPayload is the JSON body for trigger?cmd=status
type statusPayload struct {
	State        string                          `json:"state"`
	StatusLine   string                          `json:"statusLine"`
	LastSuccess  *string                         `json:"lastSuccess"`
	LastRun      *stats.RunSummary               `json:"lastRun"`
	PerExtension map[string]stats.ExtensionCount `json:"perExtension"`
	Generation   uint64                          `json:"generation"`
}

// NewServer creates the control plane around an engine. events may be nil
// when no capture watcher is running (oneshot mode).
func NewServer(cfg *config.Config, engine *backup.Engine, reporter *stats.Reporter, events <-chan string, logger *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		engine:   engine,
		reporter: reporter,
		logger:   logger,
		events:   events,
		debounce: &debouncer{delay: cfg.Backup.Debounce},
	}
}

// Start runs the trigger hub and, when enabled, the HTTP server, until
// ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.runCtx = ctx

	go s.scheduleLoop(ctx)
	if s.events != nil {
		go s.eventLoop(ctx)
	}
	defer s.debounce.stop()

	if !s.cfg.Serve.Enabled {
		<-ctx.Done()
		return nil
	}

	router := mux.NewRouter()
	router.HandleFunc("/trigger", s.handleTrigger).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	server := &http.Server{
		Addr:              s.cfg.Serve.ListenAddr,
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	listener, err := s.listener()
	if err != nil {
		return err
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control plane listening", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down control plane")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// listener prefers a systemd-activated socket over the configured address
func (s *Server) listener() (net.Listener, error) {
	listeners, err := activation.Listeners()
	if err != nil {
		return nil, fmt.Errorf("failed to check socket activation: %w", err)
	}
	if len(listeners) > 0 {
		s.logger.Info("using systemd-activated socket")
		return listeners[0], nil
	}

	listener, err := net.Listen("tcp", s.cfg.Serve.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.cfg.Serve.ListenAddr, err)
	}
	return listener, nil
}

// handleTrigger dispatches /trigger and its cmd variants
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	switch cmd := r.URL.Query().Get("cmd"); cmd {
	case "":
		s.runAndRespond(w, r)

	case "reset":
		if err := s.engine.Reset(); err != nil {
			s.logger.Error("manifest reset failed", "error", err)
			errorResponse(w, http.StatusInternalServerError, fmt.Sprintf("reset failed: %v", err))
			return
		}
		s.runAndRespond(w, r)

	case "status":
		s.handleStatus(w)

	default:
		errorResponse(w, http.StatusBadRequest, fmt.Sprintf("unknown command %q", cmd))
	}
}

// runAndRespond executes a remote-triggered run synchronously and reports
// started or skipped. An overlapping request is confirmed skipped, never
// silently dropped.
func (s *Server) runAndRespond(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Run(r.Context(), backup.TriggerRemote)
	switch {
	case err == backup.ErrRunInProgress:
		jsonResponse(w, http.StatusOK, map[string]string{
			"status": "skipped(already-running)",
		})

	case err != nil:
		errorResponse(w, http.StatusServiceUnavailable, err.Error())

	default:
		jsonResponse(w, http.StatusOK, map[string]any{
			"status": "started",
			"run":    result.Summary(),
		})
	}
}

// handleStatus returns a consistent snapshot of lock state and counters
// without waiting on any in-flight run.
func (s *Server) handleStatus(w http.ResponseWriter) {
	payload := statusPayload{
		State:        "idle",
		StatusLine:   s.reporter.StatusLine(),
		LastRun:      s.reporter.LastRun(),
		PerExtension: s.reporter.PerExtension(),
		Generation:   s.engine.Generation(),
	}

	if s.engine.Running() {
		payload.State = "running"
	}

	if last := s.reporter.LastSuccess(); !last.IsZero() {
		formatted := last.Format(time.RFC3339)
		payload.LastSuccess = &formatted
	}

	jsonResponse(w, http.StatusOK, payload)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Response helpers
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}
