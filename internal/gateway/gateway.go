// Package gateway serializes and throttles all calls to the external
// issue-tracking backend. Every component routes its tracker calls through
// a single Queue, which enforces a sliding-window rate ceiling, keeps
// requests ordered by priority, and retries throttled operations with
// exponential backoff.
package gateway

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// ErrCleared is returned to callers whose queued request was rejected by Clear.
var ErrCleared = errors.New("request cleared before execution")

// ErrQueueFull is returned when the pending queue exceeds the burst allowance.
var ErrQueueFull = errors.New("request queue full")

// Priority levels for submitted operations. Status-changing calls such as
// comment creation should use PriorityHigh so they are not starved by
// background reads.
const (
	PriorityLow  = 1
	PriorityHigh = 2
)

// Operation is a single pending call to the external API.
type Operation func() (interface{}, error)

// Result carries the eventual outcome of a submitted operation.
type Result struct {
	Value interface{}
	Err   error
}

// Stats is an observability snapshot of the queue.
type Stats struct {
	// QueueDepth is the number of requests waiting to start.
	QueueDepth int `json:"queue_depth"`
	// Processing indicates whether the drain loop is active.
	Processing bool `json:"processing"`
	// WindowCount is the number of requests within the trailing 1s window.
	WindowCount int `json:"window_count"`
}

// Config contains tuning options for the Queue.
type Config struct {
	// RequestsPerSecond is the ceiling on the trailing 1-second window.
	RequestsPerSecond int
	// Burst is the maximum number of queued-not-started requests.
	Burst int
	// InterRequestDelay is applied after every operation regardless of the
	// window, to avoid bursting the backend.
	InterRequestDelay time.Duration
	// MaxRetries is the number of retries for throttled operations.
	MaxRetries int
	// RetryDelay seeds the exponential backoff between retries.
	RetryDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 10
	}
	if c.Burst <= 0 {
		c.Burst = 50
	}
	if c.InterRequestDelay <= 0 {
		c.InterRequestDelay = 50 * time.Millisecond
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
}

// request is one queued call. It lives only between enqueue and completion.
type request struct {
	id         string
	op         Operation
	priority   int
	seq        uint64
	enqueuedAt time.Time
	done       chan Result
}

// Queue is the rate-limited request gateway. At most one operation executes
// at a time; the drain loop is started lazily by Submit and exits when the
// queue empties.
type Queue struct {
	cfg Config

	mu         sync.Mutex
	pending    []*request
	processing bool
	window     []time.Time
	seq        uint64
}

// New creates a Queue with the given configuration.
func New(cfg Config) *Queue {
	cfg.applyDefaults()
	return &Queue{cfg: cfg}
}

// Submit enqueues op with the given priority and returns a channel that
// receives exactly one Result. The queue is kept sorted by descending
// priority, FIFO within equal priority.
func (q *Queue) Submit(op Operation, priority int) <-chan Result {
	r := &request{
		id:         uuid.New().String()[:8],
		op:         op,
		priority:   priority,
		enqueuedAt: time.Now(),
		done:       make(chan Result, 1),
	}

	q.mu.Lock()
	if len(q.pending) >= q.cfg.Burst {
		q.mu.Unlock()
		r.done <- Result{Err: fmt.Errorf("%w: %d pending", ErrQueueFull, q.cfg.Burst)}
		return r.done
	}
	q.seq++
	r.seq = q.seq
	q.insertLocked(r)
	if !q.processing {
		q.processing = true
		go q.drain()
	}
	q.mu.Unlock()

	return r.done
}

// insertLocked places r in priority order, after any queued request of the
// same priority. Callers must hold q.mu.
func (q *Queue) insertLocked(r *request) {
	i := len(q.pending)
	for ; i > 0; i-- {
		if q.pending[i-1].priority >= r.priority {
			break
		}
	}
	q.pending = append(q.pending, nil)
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = r
}

// Clear rejects all queued requests with ErrCleared and empties the queue.
// An operation already in flight is not affected.
func (q *Queue) Clear() {
	q.mu.Lock()
	cleared := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, r := range cleared {
		r.done <- Result{Err: ErrCleared}
	}
	if len(cleared) > 0 {
		log.Printf("[gateway] cleared %d queued requests", len(cleared))
	}
}

// Stats returns a snapshot of queue depth, drain-loop activity, and the
// trailing-window request count.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pruneWindowLocked(time.Now())
	return Stats{
		QueueDepth:  len(q.pending),
		Processing:  q.processing,
		WindowCount: len(q.window),
	}
}

// drain executes queued requests one at a time until the queue empties.
// Only one drain loop runs at a time, guarded by q.processing.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.processing = false
			q.mu.Unlock()
			return
		}
		r := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.waitForWindow()

		q.mu.Lock()
		q.window = append(q.window, time.Now())
		q.mu.Unlock()

		r.done <- q.execute(r)

		time.Sleep(q.cfg.InterRequestDelay)
	}
}

// waitForWindow blocks until the trailing 1-second window has room for one
// more request, sleeping until the oldest timestamp falls out and rechecking.
func (q *Queue) waitForWindow() {
	for {
		q.mu.Lock()
		now := time.Now()
		q.pruneWindowLocked(now)
		if len(q.window) < q.cfg.RequestsPerSecond {
			q.mu.Unlock()
			return
		}
		oldest := q.window[0]
		q.mu.Unlock()

		time.Sleep(time.Second - now.Sub(oldest))
	}
}

// pruneWindowLocked drops timestamps older than one second. Callers must
// hold q.mu.
func (q *Queue) pruneWindowLocked(now time.Time) {
	cutoff := now.Add(-time.Second)
	i := 0
	for i < len(q.window) && q.window[i].Before(cutoff) {
		i++
	}
	q.window = q.window[i:]
}

// execute runs one operation, retrying throttled failures with exponential
// backoff. Non-throttling errors propagate to the caller immediately.
func (q *Queue) execute(r *request) Result {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = q.cfg.RetryDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	var lastErr error
	for attempt := 0; attempt <= q.cfg.MaxRetries; attempt++ {
		value, err := r.op()
		if err == nil {
			return Result{Value: value}
		}
		if !IsThrottle(err) {
			return Result{Err: err}
		}
		lastErr = err

		if attempt < q.cfg.MaxRetries {
			delay := retryDelay(err, bo)
			log.Printf("[gateway] request %s throttled, retry %d/%d in %s",
				r.id, attempt+1, q.cfg.MaxRetries, delay)
			time.Sleep(delay)
		}
	}
	return Result{Err: fmt.Errorf("rate limited after %d retries: %w", q.cfg.MaxRetries, lastErr)}
}

// retryAfterHinter is implemented by errors that carry a server-provided
// retry-after hint in seconds.
type retryAfterHinter interface {
	RetryAfterSeconds() int
}

// retryDelay returns the server-provided retry-after hint when present and
// positive, otherwise the next computed exponential backoff interval.
func retryDelay(err error, bo backoff.BackOff) time.Duration {
	computed := bo.NextBackOff()
	var hinter retryAfterHinter
	if errors.As(err, &hinter) {
		if secs := hinter.RetryAfterSeconds(); secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return computed
}
