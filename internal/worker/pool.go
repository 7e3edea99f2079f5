package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	// ErrQueueFull is returned by Submit when the backlog is at capacity.
	ErrQueueFull = errors.New("worker queue full")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("worker pool closed")
)

// TaskFunc is a unit of background work.
type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	fn       TaskFunc
	queuedAt time.Time
}

// Pool runs submitted tasks on a fixed set of goroutines fed by a bounded queue.
// Submit never blocks; failures and panics are logged and counted, never returned.
type Pool struct {
	logger *log.Logger
	queue  chan task
	wg     conc.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	taskCounter otelmetric.Int64Counter
	waitHist    otelmetric.Float64Histogram
}

// NewPool starts workers goroutines draining a queue of queueSize tasks.
func NewPool(logger *log.Logger, workers, queueSize int, meter otelmetric.Meter) *Pool {
	if logger == nil {
		logger = log.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger: logger,
		queue:  make(chan task, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	if meter != nil {
		var err error
		p.taskCounter, err = meter.Int64Counter("worker_tasks_total",
			otelmetric.WithDescription("Background tasks by final status"))
		if err != nil {
			logger.Printf("warn: create task counter failed: %v", err)
		}
		p.waitHist, err = meter.Float64Histogram("worker_queue_wait_ms",
			otelmetric.WithDescription("Time a task spent queued before a worker picked it up"),
			otelmetric.WithUnit("ms"))
		if err != nil {
			logger.Printf("warn: create wait histogram failed: %v", err)
		}
	}
	for i := 0; i < workers; i++ {
		p.wg.Go(p.loop)
	}
	return p
}

// Submit enqueues fn without waiting for it to run.
func (p *Pool) Submit(name string, fn TaskFunc) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- task{name: name, fn: fn, queuedAt: time.Now()}:
		return nil
	default:
		p.record("rejected")
		return fmt.Errorf("%w: %s", ErrQueueFull, name)
	}
}

// Pending reports the current backlog.
func (p *Pool) Pending() int { return len(p.queue) }

// Close stops accepting work and waits for queued tasks to finish or ctx to expire.
// On expiry the context handed to running tasks is cancelled.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
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
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) loop() {
	for t := range p.queue {
		p.run(t)
	}
}

func (p *Pool) run(t task) {
	if p.waitHist != nil {
		p.waitHist.Record(p.ctx, float64(time.Since(t.queuedAt).Milliseconds()))
	}
	var err error
	var pc panics.Catcher
	pc.Try(func() { err = t.fn(p.ctx) })
	if r := pc.Recovered(); r != nil {
		p.logger.Printf("task %s panicked: %v\n%s", t.name, r.Value, r.Stack)
		p.record("panic")
		return
	}
	if err != nil {
		p.logger.Printf("task %s failed: %v", t.name, err)
		p.record("error")
		return
	}
	p.record("ok")
}

func (p *Pool) record(status string) {
	if p.taskCounter != nil {
		p.taskCounter.Add(context.Background(), 1, otelmetric.WithAttributes(attribute.String("status", status)))
	}
}
