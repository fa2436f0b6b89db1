package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"ahorrove/internal/logger"
	sentryutil "ahorrove/internal/sentry"
)

const maxFailures = 100

// Failure is one sink write that did not succeed.
type Failure struct {
	RecordID  string    `json:"record_id"`
	Sink      string    `json:"sink"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats are counters since startup.
type Stats struct {
	Queued    int   `json:"queued"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Options tune the dispatcher. Zero values pick the defaults.
type Options struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

// Dispatcher fans records out to every sink from a bounded queue.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	queue   chan Record

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group

	failuresMu sync.Mutex
	failures   []Failure

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewDispatcher starts the workers. Call Close to drain and stop them.
func NewDispatcher(opts Options, sinks ...Sink) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sinks:   sinks,
		timeout: opts.Timeout,
		queue:   make(chan Record, opts.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		g:       &errgroup.Group{},
	}
	for i := 0; i < opts.Workers; i++ {
		d.g.Go(d.worker)
	}
	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	logger.Info("audit dispatcher started", map[string]interface{}{
		"sinks":   names,
		"workers": opts.Workers,
		"queue":   opts.QueueSize,
	})
	return d
}

// Submit enqueues r without blocking. It returns false when the record was
// dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Submit(r Record) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return false
	}
	select {
	case d.queue <- r:
		return true
	default:
		d.dropped.Add(1)
		logger.Warn("audit queue full, record dropped", map[string]interface{}{"id": r.ID})
		return false
	}
}

func (d *Dispatcher) worker() error {
	for r := range d.queue {
		// After a Close deadline the rest of the queue is discarded unwritten.
		if d.ctx.Err() != nil {
			d.dropped.Add(1)
			continue
		}
		for _, s := range d.sinks {
			d.deliver(s, r)
		}
	}
	return nil
}

func (d *Dispatcher) deliver(s Sink, r Record) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()
	if err := s.Write(ctx, r); err != nil {
		d.failed.Add(1)
		d.addFailure(Failure{RecordID: r.ID, Sink: s.Name(), Error: err.Error(), Timestamp: time.Now().UTC()})
		logger.Error("audit sink write failed", map[string]interface{}{
			"sink":  s.Name(),
			"id":    r.ID,
			"error": err.Error(),
		})
		sentryutil.CaptureError(err, map[string]string{"component": "audit", "sink": s.Name()})
		return
	}
	d.delivered.Add(1)
}

func (d *Dispatcher) addFailure(f Failure) {
	d.failuresMu.Lock()
	defer d.failuresMu.Unlock()
	d.failures = append(d.failures, f)
	if len(d.failures) > maxFailures {
		d.failures = d.failures[len(d.failures)-maxFailures:]
	}
}

// Failures returns the most recent failures, newest first.
func (d *Dispatcher) Failures() []Failure {
	d.failuresMu.Lock()
	defer d.failuresMu.Unlock()
	out := make([]Failure, len(d.failures))
	copy(out, d.failures)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queued:    len(d.queue),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

// Close stops accepting records and waits for the queue to drain. If ctx ends
// first, in-flight writes are cancelled, records still queued are counted as
// dropped, and ctx.Err() is returned once the workers have exited.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = d.g.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		logger.Info("audit dispatcher drained", map[string]interface{}{"delivered": d.delivered.Load()})
		return nil
	case <-ctx.Done():
		pending := len(d.queue)
		d.cancel()
		<-done
		logger.Warn("audit dispatcher stopped before draining", map[string]interface{}{
			"pending": pending,
			"dropped": d.dropped.Load(),
		})
		return ctx.Err()
	}
}
