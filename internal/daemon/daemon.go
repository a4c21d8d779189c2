package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"vocalis/internal/analysis"
	"vocalis/internal/api"
	"vocalis/internal/artifacts"
	"vocalis/internal/config"
	"vocalis/internal/logging"
	"vocalis/internal/notify"
	"vocalis/internal/pipeline"
	"vocalis/internal/queue"
	"vocalis/internal/submission"
)

// Daemon coordinates the analysis pipeline and enforces single-instance execution.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	jobs        *queue.Store
	submissions *submission.Store
	recordings  artifacts.Store
	hub         *notify.Hub
	pipeline    *pipeline.Manager
	analysis    *analysis.Client
	service     *api.SubmissionService

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool
	PID              int
	QueueDBPath      string
	SubmissionDBPath string
	LockFilePath     string
	Queue            map[queue.State]int
	Submissions      map[submission.Status]int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, jobs *queue.Store, submissions *submission.Store, recordings artifacts.Store, hub *notify.Hub, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || jobs == nil || submissions == nil || recordings == nil || logger == nil {
		return nil, errors.New("daemon requires config, stores, artifact store, and logger")
	}
	if hub == nil {
		hub = notify.NewHub(cfg.Notifications.BufferSize)
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "vocalisd.lock")
	d := &Daemon{
		cfg:         cfg,
		logger:      logger,
		jobs:        jobs,
		submissions: submissions,
		recordings:  recordings,
		hub:         hub,
		pipeline:    pipeline.NewManager(cfg, jobs, submissions, recordings, hub, logger),
		analysis:    analysis.NewClient(cfg, logger),
		service:     api.NewSubmissionService(jobs, submissions, recordings),
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock and launches the pipeline and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vocalis daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.pipeline.Start(d.ctx)
	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			d.pipeline.Stop()
			_ = d.lock.Unlock()
			d.cancel()
			d.ctx = nil
			d.cancel = nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("vocalis daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
	}
	d.pipeline.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("vocalis daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.jobs != nil {
		errs = append(errs, d.jobs.Close())
	}
	if d.submissions != nil {
		errs = append(errs, d.submissions.Close())
	}
	return errors.Join(errs...)
}

// APIAddr returns the bound API listener address, or empty when the API is
// not serving.
func (d *Daemon) APIAddr() string {
	if d.api == nil || d.api.listener == nil {
		return ""
	}
	return d.api.listener.Addr().String()
}

// Events exposes the owner event hub.
func (d *Daemon) Events() *notify.Hub {
	return d.hub
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:          d.running.Load(),
		PID:              os.Getpid(),
		QueueDBPath:      d.jobs.Path(),
		SubmissionDBPath: d.submissions.Path(),
		LockFilePath:     d.lockPath,
	}
	if stats, err := d.jobs.Stats(ctx); err == nil {
		status.Queue = stats
	} else {
		d.logger.Warn("queue stats unavailable", logging.Error(err))
	}
	if stats, err := d.submissions.Stats(ctx); err == nil {
		status.Submissions = stats
	} else {
		d.logger.Warn("submission stats unavailable", logging.Error(err))
	}
	return status
}
