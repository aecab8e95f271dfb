// Package workerpool runs a bounded set of worker goroutines draining a
// fixed-depth job queue, the concurrency shape the smoke-test CLI uses to
// drive many synthetic backends against the cache at once.
package workerpool

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
)

// Job is one unit of smoke-test work: the smoke test submits one job per
// backend, replaying that backend's whole operation sequence. Unlike friggdb's job pool, results
// here are side effects (cache state, counters) rather than a value the
// caller waits on, so Job just returns an error.
type Job func() error

type Config struct {
	MaxWorkers int
	QueueDepth int
}

func DefaultConfig() Config {
	return Config{MaxWorkers: 16, QueueDepth: 4096}
}

// Pool is a fixed pool of workers draining a buffered job queue.
type Pool struct {
	cfg       Config
	workQueue chan Job
	size      *atomic.Int32

	queueLength prometheus.Gauge
	jobErrors   prometheus.Counter
}

// New starts cfg.MaxWorkers workers and returns a Pool ready to accept
// jobs. reg may be nil.
func New(cfg Config, reg prometheus.Registerer) *Pool {
	f := promauto.With(reg)
	p := &Pool{
		cfg:       cfg,
		workQueue: make(chan Job, cfg.QueueDepth),
		size:      atomic.NewInt32(0),
		queueLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ljx",
			Subsystem: "smoketest",
			Name:      "queue_length",
			Help:      "Current number of queued smoke-test jobs.",
		}),
		jobErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ljx",
			Subsystem: "smoketest",
			Name:      "job_errors_total",
			Help:      "Total number of smoke-test jobs that returned an error.",
		}),
	}
	for i := 0; i < cfg.MaxWorkers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues job. If the queue is already at QueueDepth, Submit
// returns an error immediately rather than blocking the caller.
func (p *Pool) Submit(job Job) error {
	select {
	case p.workQueue <- job:
		p.size.Inc()
		p.queueLength.Set(float64(p.size.Load()))
		return nil
	default:
		return fmt.Errorf("workerpool: queue full (depth %d)", p.cfg.QueueDepth)
	}
}

func (p *Pool) worker() {
	for job := range p.workQueue {
		p.size.Dec()
		if err := job(); err != nil {
			p.jobErrors.Inc()
		}
	}
}

// Shutdown stops accepting new jobs. Workers drain whatever remains
// queued and then exit.
func (p *Pool) Shutdown() {
	close(p.workQueue)
}
