package pipeline

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/billtruong003/video-to-subtitle-converter/internal/metrics"
	"github.com/billtruong003/video-to-subtitle-converter/pkg/models"
)

// Processor runs one job to completion
type Processor interface {
	ProcessJob(ctx context.Context, job *models.Job) error
	Abandon(ctx context.Context, job *models.Job, err error) error
}

// Pool runs jobs with bounded concurrency
type Pool struct {
	processor Processor
	workers   int
	sem       *semaphore.Weighted
	wg        sync.WaitGroup

	mu      sync.Mutex
	queued  int
	running int
}

// NewPool creates a pool running at most workers jobs at once
func NewPool(processor Processor, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		processor: processor,
		workers:   workers,
		sem:       semaphore.NewWeighted(int64(workers)),
	}
}

// Workers returns the concurrency limit
func (p *Pool) Workers() int {
	return p.workers
}

// Submit queues a job and returns immediately. The job runs under ctx once
// a worker slot frees up.
func (p *Pool) Submit(ctx context.Context, job *models.Job) {
	p.wg.Add(1)
	p.adjust(1, 0)

	go func() {
		defer p.wg.Done()

		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.adjust(-1, 0)
			p.processor.Abandon(ctx, job, err)
			return
		}
		defer p.sem.Release(1)

		p.run(ctx, job)
	}()
}

// Wait blocks until every submitted job has finished
func (p *Pool) Wait() {
	p.wg.Wait()
}

// RunAll runs every job and waits for them. A failing job does not stop the
// others; the returned error joins every job failure.
func (p *Pool) RunAll(ctx context.Context, jobs []*models.Job) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	errs := make([]error, len(jobs))
	p.adjust(len(jobs), 0)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			errs[i] = p.run(ctx, job)
			return nil
		})
	}
	g.Wait()

	return errors.Join(errs...)
}

func (p *Pool) run(ctx context.Context, job *models.Job) error {
	p.adjust(-1, 1)
	defer p.adjust(0, -1)

	return p.processor.ProcessJob(ctx, job)
}

func (p *Pool) adjust(queued, running int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.queued += queued
	p.running += running
	metrics.UpdateJobMetrics(p.running, p.queued)
}

// Stats returns the number of queued and running jobs
func (p *Pool) Stats() (queued, running int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queued, p.running
}
