package engine

import (
	"log/slog"
	"sync"
)

// Pool size limits.
const (
	MinWorkers       = 1
	MaxWorkers       = 4
	DefaultQueueSize = 16
)

// Pool is a bounded worker pool with caller-runs overload handling.
//
// Jobs go to a buffered channel drained by a fixed set of goroutines. When
// the channel is full, Submit runs the job on the calling goroutine instead
// of queuing without bound or dropping it.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine
//   - Close(): safe from any goroutine; later Submits run on the caller
type Pool struct {
	jobs   chan func()
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

// NewPool starts a pool. workers is clamped to [MinWorkers, MaxWorkers];
// a queueSize below zero selects DefaultQueueSize.
func NewPool(workers, queueSize int, logger *slog.Logger) *Pool {
	workers = min(max(workers, MinWorkers), MaxWorkers)
	if queueSize < 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		jobs:   make(chan func(), queueSize),
		logger: logger,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

// Submit schedules job. It returns true if the job ran on the caller because
// the queue was full or the pool was closed.
func (p *Pool) Submit(job func()) (ranOnCaller bool) {
	p.mu.RLock()
	if !p.closed {
		select {
		case p.jobs <- job:
			p.mu.RUnlock()
			return false
		default:
		}
	}
	closed := p.closed
	p.mu.RUnlock()

	if closed {
		p.logger.Warn("pool closed, running job on caller")
	} else {
		p.logger.Warn("pool saturated, running job on caller")
	}
	callerRunsTotal.Inc()
	job()
	return true
}

// Close stops accepting queued work and waits for queued jobs to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
