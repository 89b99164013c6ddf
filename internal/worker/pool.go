// Package worker implements a bounded worker pool for background snapshot flushes.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Saver persists some state when a job runs.
type Saver interface {
	Save() error
}

// Job represents a flush request. Reason and RecordID only feed the logs.
type Job struct {
	Ctx      context.Context
	RecordID string
	Reason   string
}

// Result holds the outcome of processing a single job.
type Result struct {
	RecordID string
	Reason   string
	Latency  time.Duration
	Err      error
}

// Pool manages a fixed set of worker goroutines that process Jobs from a channel
// and emit Results to another channel.
type Pool struct {
	workers int
	saver   Saver
	jobs    chan Job
	results chan Result
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a pool with the given number of workers.
// Call Start() to launch the goroutines.
func NewPool(workers int, saver Saver, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers: workers,
		saver:   saver,
		jobs:    make(chan Job, workers*2), // small buffer for backpressure
		results: make(chan Result, workers*2),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Start launches worker goroutines. Each reads from the jobs channel until it is
// closed or the context is cancelled.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues a job without blocking. It returns false when the queue is
// full or the pool is shutting down.
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	case <-p.ctx.Done():
		return false
	default:
		p.logger.Warn("flush queue full, dropping job",
			slog.String("record_id", job.RecordID),
			slog.String("reason", job.Reason),
		)
		return false
	}
}

// Results returns the read-only results channel for the consumer.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Shutdown closes the jobs channel, waits for all workers to finish,
// then closes the results channel. Safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs) // signal workers to drain and exit
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	close(p.results)
}

// worker is the goroutine body. It processes jobs until the channel is closed
// or the context is cancelled.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				p.logger.Debug("worker exiting", slog.Int("worker_id", id))
				return
			}
			p.process(id, job)

		case <-p.ctx.Done():
			p.logger.Info("worker cancelled", slog.Int("worker_id", id))
			return
		}
	}
}

// process runs one flush and sends its result.
func (p *Pool) process(workerID int, job Job) {
	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	res := Result{RecordID: job.RecordID, Reason: job.Reason}

	if err := ctx.Err(); err != nil {
		res.Err = fmt.Errorf("job cancelled before processing: %w", err)
		p.results <- res
		return
	}

	start := time.Now()
	err := p.saver.Save()
	res.Latency = time.Since(start)

	if err != nil {
		p.logger.Error("flush failed",
			slog.Int("worker_id", workerID),
			slog.String("record_id", job.RecordID),
			slog.Duration("latency", res.Latency),
			slog.String("error", err.Error()),
		)
		res.Err = err
	}
	p.results <- res
}
