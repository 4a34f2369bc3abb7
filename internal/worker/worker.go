// Package worker drains the job queue. A pool of goroutines claims
// uploaded jobs, runs the extraction pipeline on the stored PDF, and
// writes the result or failure back. A panic in one job is contained
// to that job.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/insightdelivered/statement-extractor/internal/assembler"
	"github.com/insightdelivered/statement-extractor/internal/extractor"
	"github.com/insightdelivered/statement-extractor/internal/metrics"
	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/store"
)

// internalError marks failures that are not part of the extraction
// error taxonomy: unreadable files, marshalling, panics.
const internalError = "INTERNAL_ERROR"

const defaultPollEvery = 2 * time.Second

type Pool struct {
	store     *store.Store
	asm       *assembler.Assembler
	workers   int
	pollEvery time.Duration
	logger    *slog.Logger

	wake chan struct{}
	wg   sync.WaitGroup
}

func NewPool(st *store.Store, asm *assembler.Assembler, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		store:     st,
		asm:       asm,
		workers:   workers,
		pollEvery: defaultPollEvery,
		logger:    logger,
		wake:      make(chan struct{}, 1),
	}
}

// Wake nudges the pool after a job is enqueued. Never blocks.
func (p *Pool) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start requeues jobs orphaned by a previous run and launches the
// workers. Workers exit when ctx is cancelled; Wait blocks until the
// job in hand finishes.
func (p *Pool) Start(ctx context.Context) {
	if n, err := p.store.RequeueStale(ctx); err != nil {
		p.logger.Error("requeue of stale jobs failed", "error", err)
	} else if n > 0 {
		p.logger.Info("requeued jobs from previous run", "count", n)
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Info("worker pool started", "workers", p.workers)
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	p.drain(ctx, id)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-ticker.C:
		}
		p.drain(ctx, id)
	}
}

// drain claims and processes jobs until the queue is empty or ctx is
// cancelled.
func (p *Pool) drain(ctx context.Context, id int) {
	for ctx.Err() == nil {
		job, ok, err := p.store.ClaimNextUploaded(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Error("job claim failed", "worker", id, "error", err)
			}
			return
		}
		if !ok {
			return
		}
		p.process(ctx, id, job)
	}
}

func (p *Pool) process(ctx context.Context, id int, job store.Job) {
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	start := time.Now()
	logger := p.logger.With("worker", id, "job", job.ID, "bank", job.Bank)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", r)
			p.fail(job.ID, internalError, fmt.Sprintf("internal error: %v", r), logger)
		}
	}()

	data, err := os.ReadFile(job.FilePath)
	if err != nil {
		logger.Error("stored pdf unreadable", "path", job.FilePath, "error", err)
		p.fail(job.ID, internalError, "stored file could not be read", logger)
		return
	}

	resp, err := p.asm.Process(ctx, data, models.BankID(job.Bank), job.Password)
	if err != nil {
		code := string(extractor.CodeOf(err))
		if code == "" {
			code = internalError
		}
		logger.Warn("job failed", "code", code, "error", err)
		p.fail(job.ID, code, err.Error(), logger)
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		logger.Error("response marshal failed", "error", err)
		p.fail(job.ID, internalError, "result could not be encoded", logger)
		return
	}

	if err := p.store.MarkCompleted(ctx, job.ID, payload); err != nil {
		logger.Error("job completion not recorded", "error", err)
		return
	}
	metrics.JobsTotal.WithLabelValues(store.StatusCompleted).Inc()
	logger.Info("job completed",
		"transactions", resp.TotalTransactions,
		"duration", time.Since(start).Round(time.Millisecond))
}

// fail records a failure with its own context: the job's ctx may
// already be cancelled during shutdown and the failure must still
// land in the store.
func (p *Pool) fail(jobID, code, message string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.MarkFailed(ctx, jobID, code, message); err != nil {
		logger.Error("job failure not recorded", "error", err)
		return
	}
	metrics.JobsTotal.WithLabelValues(store.StatusFailed).Inc()
}
