package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vocalis/internal/config"
	"vocalis/internal/logging"
	"vocalis/internal/queue"
	"vocalis/internal/services"
)

// Pool runs a fixed number of workers that claim and process jobs.
type Pool struct {
	jobs      *queue.Store
	processor *Processor
	limiter   *Limiter
	logger    *slog.Logger

	concurrency  int
	pollInterval time.Duration
	leaseTimeout time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool constructs a worker pool from configuration.
func NewPool(cfg *config.Config, jobs *queue.Store, processor *Processor, logger *slog.Logger) *Pool {
	return &Pool{
		jobs:         jobs,
		processor:    processor,
		limiter:      NewLimiter(cfg.Queue.RateLimit, cfg.RateWindow()),
		logger:       logging.NewComponentLogger(logger, "workers"),
		concurrency:  cfg.Queue.Concurrency,
		pollInterval: cfg.PollInterval(),
		leaseTimeout: cfg.LeaseTimeout(),
	}
}

// Start launches the workers. It is a no-op when the pool is already running.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.run(runCtx, i)
	}
	p.logger.Info("worker pool started", logging.Int("concurrency", p.concurrency))
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, worker int) {
	defer p.wg.Done()

	ctx = services.WithWorkerID(ctx, worker)
	log := logging.WithContext(ctx, p.logger)

	for {
		if ctx.Err() != nil {
			return
		}

		if !p.limiter.Allow() {
			if !sleep(ctx, p.pollInterval) {
				return
			}
			continue
		}

		job, err := p.jobs.Claim(ctx, p.leaseTimeout)
		if err != nil {
			p.limiter.Refund()
			if ctx.Err() != nil {
				return
			}
			log.Error("claim failed", logging.Error(err))
			if !sleep(ctx, p.pollInterval) {
				return
			}
			continue
		}
		if job == nil {
			// Empty poll. Hand the token back so idle polling cannot
			// starve the window.
			p.limiter.Refund()
			if !sleep(ctx, p.pollInterval) {
				return
			}
			continue
		}

		if err := p.processor.Process(ctx, job); err != nil {
			log.Error("delivery left unresolved",
				logging.Error(err),
				logging.String(logging.FieldJobID, job.ID),
			)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
