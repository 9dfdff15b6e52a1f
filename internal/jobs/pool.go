package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JinxX404/BookNest-fullstack/pkg/logger"
)

var ErrQueueFull = errors.New("job queue is full")

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is an observable status record for one background task.
type Job struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     Status     `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type task struct {
	id string
	fn func(context.Context) error
}

// Pool runs training and generation off the request path on a fixed set of
// workers. Job status transitions are broadcast to watchers (the /ws/jobs
// stream) and kept in memory for polling.
type Pool struct {
	queue chan task

	mu          sync.RWMutex
	jobs        map[string]*Job
	watchers    map[int]chan Job
	nextWatcher int

	workers int
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
}

func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 16
	}
	return &Pool{
		queue:    make(chan task, queueSize),
		jobs:     make(map[string]*Job),
		watchers: make(map[int]chan Job),
		workers:  workers,
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	logger.Info("Job pool started", zap.Int("workers", p.workers))
}

// Stop cancels running jobs, waits for the workers to exit, and fails any
// job still sitting in the queue. Nothing stays queued after shutdown.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()

	for {
		select {
		case t := <-p.queue:
			p.failUnstarted(t.id)
		default:
			return
		}
	}
}

func (p *Pool) failUnstarted(id string) {
	now := time.Now()
	p.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = "job pool stopped before the job started"
		j.FinishedAt = &now
	})
}

// Submit enqueues a job and returns its id. A full queue is reported to the
// caller instead of blocking the request path.
func (p *Pool) Submit(kind string, fn func(context.Context) error) (string, error) {
	job := &Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}

	p.mu.Lock()
	p.jobs[job.ID] = job
	p.mu.Unlock()

	select {
	case p.queue <- task{id: job.ID, fn: fn}:
		p.broadcast(*job)
		return job.ID, nil
	default:
		p.mu.Lock()
		delete(p.jobs, job.ID)
		p.mu.Unlock()
		return "", ErrQueueFull
	}
}

func (p *Pool) Get(id string) (Job, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	job, ok := p.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Watch subscribes to job status transitions. Slow watchers drop updates.
func (p *Pool) Watch() (<-chan Job, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextWatcher
	p.nextWatcher++
	ch := make(chan Job, 32)
	p.watchers[id] = ch

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.watchers[id]; ok {
			delete(p.watchers, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (p *Pool) worker(ctx context.Context, n int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.queue:
			// A task dequeued after cancellation never starts; Stop
			// reports it as failed rather than running it half-dead.
			if ctx.Err() != nil {
				p.failUnstarted(t.id)
				return
			}
			p.run(ctx, t, n)
		}
	}
}

func (p *Pool) run(ctx context.Context, t task, worker int) {
	now := time.Now()
	p.update(t.id, func(j *Job) {
		j.Status = StatusRunning
		j.StartedAt = &now
	})

	err := t.fn(ctx)

	done := time.Now()
	p.update(t.id, func(j *Job) {
		j.FinishedAt = &done
		if err != nil {
			j.Status = StatusFailed
			j.Error = err.Error()
		} else {
			j.Status = StatusSucceeded
		}
	})

	if err != nil {
		logger.Error("Background job failed",
			zap.String("job_id", t.id),
			zap.Int("worker", worker),
			zap.Error(err),
		)
	} else {
		logger.Info("Background job finished",
			zap.String("job_id", t.id),
			zap.Int("worker", worker),
			zap.Duration("took", done.Sub(now)),
		)
	}
}

func (p *Pool) update(id string, mutate func(*Job)) {
	p.mu.Lock()
	job, ok := p.jobs[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	mutate(job)
	snapshot := *job
	p.mu.Unlock()

	p.broadcast(snapshot)
}

func (p *Pool) broadcast(job Job) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.watchers {
		select {
		case ch <- job:
		default:
		}
	}
}
