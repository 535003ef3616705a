// Package workers runs diagram tasks off the request path on a bounded pool.
//
// The pool keeps CoreWorkers goroutines alive for its whole life. Submit
// queues a task while the backlog has room; once it is full an extra worker
// is started for the task (up to MaxWorkers) and exits after KeepAlive of
// idleness. With every worker busy and the backlog full, Submit fails fast
// with common.ErrSaturated.
package workers

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrijs2005/schemadiagram/internal/common"
	"github.com/dmitrijs2005/schemadiagram/internal/logging"
)

// Task is a unit of work. Name and Args only feed logs.
//
// Reject, when set, is called instead of Run for a task the pool drops
// because Shutdown ran out of time before reaching it.
type Task struct {
	Name   string
	Args   []any
	Run    func(ctx context.Context) error
	Reject func(err error)
}

type Options struct {
	CoreWorkers   int
	MaxWorkers    int
	QueueCapacity int
	KeepAlive     time.Duration
	NamePrefix    string

	// StopGrace bounds how long Shutdown keeps waiting for canceled tasks
	// once its own deadline has passed.
	StopGrace time.Duration

	// Registerer receives the pool metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

func DefaultOptions() Options {
	return Options{
		CoreWorkers:   2,
		MaxWorkers:    5,
		QueueCapacity: 500,
		KeepAlive:     60 * time.Second,
		NamePrefix:    "AsyncExecutor-",
		StopGrace:     10 * time.Second,
	}
}

func (o Options) normalize() Options {
	d := DefaultOptions()
	if o.CoreWorkers <= 0 {
		o.CoreWorkers = d.CoreWorkers
	}
	if o.MaxWorkers < o.CoreWorkers {
		o.MaxWorkers = o.CoreWorkers
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = d.QueueCapacity
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = d.KeepAlive
	}
	if o.NamePrefix == "" {
		o.NamePrefix = d.NamePrefix
	}
	if o.StopGrace <= 0 {
		o.StopGrace = d.StopGrace
	}
	return o
}

type Pool struct {
	opts    Options
	logger  logging.Logger
	metrics *metrics

	ctx    context.Context
	cancel context.CancelFunc

	queue chan Task

	mu      sync.Mutex
	closed  bool
	workers int
	seq     int
	wg      sync.WaitGroup
}

func New(opts Options, l logging.Logger) *Pool {
	opts = opts.normalize()
	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		opts:   opts,
		logger: l.With("module", "workers"),
		ctx:    ctx,
		cancel: cancel,
		queue:  make(chan Task, opts.QueueCapacity),
	}
	p.metrics = newMetrics(opts.Registerer, func() float64 { return float64(len(p.queue)) })

	p.mu.Lock()
	for i := 0; i < opts.CoreWorkers; i++ {
		p.spawnLocked(nil, true)
	}
	p.mu.Unlock()

	return p
}

// Submit never blocks.
func (p *Pool) Submit(t Task) error {
	if t.Run == nil {
		return fmt.Errorf("task %q has no body", t.Name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return common.ErrPoolClosed
	}

	select {
	case p.queue <- t:
		return nil
	default:
	}

	if p.workers < p.opts.MaxWorkers {
		p.spawnLocked(&t, false)
		return nil
	}

	p.metrics.rejected.Inc()
	p.logger.Warn(p.ctx, "task rejected, pool saturated",
		"task", t.Name, "workers", p.workers, "queued", len(p.queue))
	return common.ErrSaturated
}

// Workers reports the number of live workers.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Queued reports the backlog length.
func (p *Pool) Queued() int { return len(p.queue) }

// Shutdown stops accepting tasks and waits until the backlog is drained and
// every worker has exited. If ctx ends first, running tasks see their
// context canceled, every task still queued is rejected with
// common.ErrPoolClosed, and Shutdown waits up to StopGrace more for the
// workers before returning ctx.Err().
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
	}

	p.cancel()
	// workers that finish a canceled task reject what is left as well
	for t := range p.queue {
		p.reject(t, common.ErrPoolClosed)
	}

	grace := time.NewTimer(p.opts.StopGrace)
	defer grace.Stop()
	select {
	case <-done:
	case <-grace.C:
		p.logger.Warn(ctx, "workers still running after shutdown", "workers", p.Workers())
	}
	return ctx.Err()
}

func (p *Pool) reject(t Task, cause error) {
	p.metrics.tasks.WithLabelValues(outcomeRejected).Inc()
	p.logger.Warn(p.ctx, "task dropped", "task", t.Name, "args", t.Args, "error", cause)
	if t.Reject == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(p.ctx, "uncaught panic in task rejection",
				"task", t.Name, "panic", fmt.Sprint(r))
		}
	}()
	t.Reject(cause)
}

func (p *Pool) spawnLocked(first *Task, core bool) {
	p.seq++
	p.workers++
	p.metrics.workers.Inc()
	name := fmt.Sprintf("%s%d", p.opts.NamePrefix, p.seq)

	p.wg.Add(1)
	go p.loop(name, first, core)
}

func (p *Pool) loop(name string, first *Task, core bool) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.workers--
		p.mu.Unlock()
		p.metrics.workers.Dec()
	}()

	if first != nil {
		p.run(name, *first)
	}

	if core {
		for t := range p.queue {
			p.run(name, t)
		}
		return
	}

	idle := time.NewTimer(p.opts.KeepAlive)
	defer idle.Stop()
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.run(name, t)
			idle.Reset(p.opts.KeepAlive)
		case <-idle.C:
			p.logger.Debug(p.ctx, "idle worker exiting", "worker", name)
			return
		}
	}
}

func (p *Pool) run(worker string, t Task) {
	if p.ctx.Err() != nil {
		p.reject(t, common.ErrPoolClosed)
		return
	}

	p.metrics.busy.Inc()
	defer p.metrics.busy.Dec()

	defer func() {
		if r := recover(); r != nil {
			p.metrics.tasks.WithLabelValues(outcomePanic).Inc()
			p.logger.Error(p.ctx, "uncaught panic in task",
				"worker", worker, "task", t.Name, "args", t.Args,
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	if err := t.Run(p.ctx); err != nil {
		p.metrics.tasks.WithLabelValues(outcomeError).Inc()
		p.logger.Error(p.ctx, "uncaught error in task",
			"worker", worker, "task", t.Name, "args", t.Args, "error", err)
		return
	}
	p.metrics.tasks.WithLabelValues(outcomeOK).Inc()
}
