package pipeline

import (
	"context"
	"log/slog"

	"vocalis/internal/analysis"
	"vocalis/internal/artifacts"
	"vocalis/internal/config"
	"vocalis/internal/notify"
	"vocalis/internal/queue"
	"vocalis/internal/submission"
)

// Manager bundles the worker pool and the reconciler behind one lifecycle.
type Manager struct {
	pool       *Pool
	reconciler *Reconciler
}

// NewManager wires the full pipeline from configuration and shared stores.
func NewManager(cfg *config.Config, jobs *queue.Store, submissions *submission.Store, recordings artifacts.Store, publisher notify.Publisher, logger *slog.Logger) *Manager {
	processor := NewProcessor(jobs, submissions, recordings, analysis.NewClient(cfg, logger), publisher, logger)
	return &Manager{
		pool:       NewPool(cfg, jobs, processor, logger),
		reconciler: NewReconciler(cfg, jobs, submissions, logger),
	}
}

// Start launches the workers and the reconciliation sweep.
func (m *Manager) Start(ctx context.Context) {
	m.pool.Start(ctx)
	m.reconciler.Start(ctx)
}

// Stop halts both and waits for in-flight work to settle.
func (m *Manager) Stop() {
	m.pool.Stop()
	m.reconciler.Stop()
}
