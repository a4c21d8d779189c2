// Package daemonrun wires configuration, storage, and the daemon lifecycle
// into the vocalisd process entrypoint.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"vocalis/internal/artifacts"
	"vocalis/internal/config"
	"vocalis/internal/daemon"
	"vocalis/internal/daemonctl"
	"vocalis/internal/logging"
	"vocalis/internal/notify"
	"vocalis/internal/queue"
	"vocalis/internal/submission"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the vocalis daemon runtime loop and blocks until the process
// receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "vocalisd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	jobs, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer jobs.Close()

	submissions, err := submission.Open(cfg)
	if err != nil {
		logger.Error("open submission store", logging.Error(err))
		return err
	}
	defer submissions.Close()

	recordings, err := artifacts.NewFromConfig(signalCtx, cfg)
	if err != nil {
		logger.Error("open artifact store", logging.Error(err))
		return err
	}

	hub := notify.NewHub(cfg.Notifications.BufferSize)
	d, err := daemon.New(cfg, jobs, submissions, recordings, hub, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Stop()

	if err := d.Start(signalCtx); err != nil {
		return err
	}
	daemonctl.RecordEndpoint(cfg, d.APIAddr())

	<-signalCtx.Done()
	logger.Info("vocalis daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
