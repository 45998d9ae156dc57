package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluesky-social/herald/util"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("dispatch")

var ErrQueueClosed = errors.New("dispatch queue closed")

// A unit of work, usually a single call to the platform API.
type Task func(ctx context.Context) error

type Config struct {
	// Window for the random pause after each successful task. Defaults to 1.5s-3.5s.
	MinDelay time.Duration
	MaxDelay time.Duration

	// Maps a retry count to a pause before the failed task runs again. Defaults to [ExponentialBackoff].
	Backoff func(retryCount int) time.Duration

	// When false (the default), the retry count handed to Backoff is the queue length after the failed task was put back, not the number of times that task has failed. See DESIGN.md.
	PerTaskRetryCount bool

	// Optional classifier for failures which should not be retried; a task failing this way is finished as if it had returned [Abandon].
	Permanent func(err error) bool

	// Optional hard ceiling on request rate, applied before each attempt.
	Limiter *rate.Limiter

	Logger *slog.Logger
}

type entry struct {
	ctx      context.Context
	name     string
	run      Task
	attempts int
	done     chan error
}

type Queue struct {
	logger  *slog.Logger
	config  Config
	lk      sync.Mutex
	items   []*entry
	running bool
	closed  bool

	// lifecycle of the queue itself; cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc

	// in-flight task count; never exceeds one
	inflight atomic.Int32

	// overridable for tests
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(min, max time.Duration) time.Duration
}

func NewQueue(config Config) *Queue {
	if config.MinDelay == 0 && config.MaxDelay == 0 {
		config.MinDelay = 1500 * time.Millisecond
		config.MaxDelay = 3500 * time.Millisecond
	}
	if config.Backoff == nil {
		config.Backoff = ExponentialBackoff
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		logger: logger.With("component", "dispatch"),
		config: config,
		ctx:    ctx,
		cancel: cancel,
		sleep:  util.SleepContext,
		jitter: util.RandomDuration,
	}
}

// Enqueues a task and blocks until it succeeds, is abandoned, or ctx is done.
//
// The name is only used for logging and metrics. If ctx is cancelled before the task has succeeded, Submit returns the context error, and the task will not be run (or retried) again.
func (q *Queue) Submit(ctx context.Context, name string, task Task) error {
	e := &entry{
		ctx:  ctx,
		name: name,
		run:  task,
		done: make(chan error, 1),
	}

	q.lk.Lock()
	if q.closed {
		q.lk.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, e)
	queueDepth.Set(float64(len(q.items)))
	if !q.running {
		q.running = true
		go q.process()
	}
	q.lk.Unlock()

	select {
	case err := <-e.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Generic helper for tasks which produce a value.
func Do[T any](ctx context.Context, q *Queue, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := q.Submit(ctx, name, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		// the task may still be running if the caller gave up
		var zero T
		return zero, err
	}
	return out, nil
}

// Number of tasks waiting (not counting one currently running).
func (q *Queue) Len() int {
	q.lk.Lock()
	defer q.lk.Unlock()
	return len(q.items)
}

// Stops processing. Waiting and future submissions fail with [ErrQueueClosed]; a task which is already running is not interrupted.
func (q *Queue) Close() {
	q.lk.Lock()
	q.closed = true
	q.lk.Unlock()
	q.cancel()
}

func (q *Queue) pop() *entry {
	q.lk.Lock()
	defer q.lk.Unlock()
	if len(q.items) == 0 {
		q.running = false
		return nil
	}
	e := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	queueDepth.Set(float64(len(q.items)))
	return e
}

// puts a failed task back at the head of the queue, returning the new queue length
func (q *Queue) requeue(e *entry) int {
	q.lk.Lock()
	defer q.lk.Unlock()
	q.items = append([]*entry{e}, q.items...)
	queueDepth.Set(float64(len(q.items)))
	return len(q.items)
}

func (q *Queue) drain(err error) {
	q.lk.Lock()
	items := q.items
	q.items = nil
	q.running = false
	queueDepth.Set(0)
	q.lk.Unlock()
	for _, e := range items {
		e.done <- err
	}
}

func (q *Queue) process() {
	for {
		if q.ctx.Err() != nil {
			q.drain(ErrQueueClosed)
			return
		}
		e := q.pop()
		if e == nil {
			return
		}

		// caller gave up while the task was waiting
		if e.ctx.Err() != nil {
			taskCount.WithLabelValues("abandoned").Inc()
			e.done <- e.ctx.Err()
			continue
		}

		if q.config.Limiter != nil {
			if err := q.config.Limiter.Wait(e.ctx); err != nil {
				taskCount.WithLabelValues("abandoned").Inc()
				e.done <- err
				continue
			}
		}

		err := q.execute(e)
		if err == nil {
			taskCount.WithLabelValues("success").Inc()
			e.done <- nil
			q.sleep(q.ctx, q.jitter(q.config.MinDelay, q.config.MaxDelay))
			continue
		}

		var ab *abandonError
		if errors.As(err, &ab) {
			err = ab.err
		}
		if ab != nil || (q.config.Permanent != nil && q.config.Permanent(err)) {
			q.logger.Warn("dispatch task abandoned", "task", e.name, "attempts", e.attempts, "err", err)
			taskCount.WithLabelValues("abandoned").Inc()
			e.done <- err
			continue
		}

		n := q.requeue(e)
		retryCount := n
		if q.config.PerTaskRetryCount {
			retryCount = e.attempts
		}
		delay := q.config.Backoff(retryCount)
		q.logger.Warn("dispatch task failed, will retry", "task", e.name, "attempts", e.attempts, "queueLen", n, "backoff", delay, "err", err)
		taskCount.WithLabelValues("retry").Inc()
		q.sleep(q.ctx, delay)
	}
}

func (q *Queue) execute(e *entry) (err error) {
	ctx, span := tracer.Start(e.ctx, "dispatch.task")
	span.SetAttributes(attribute.String("task", e.name))
	defer span.End()

	if n := q.inflight.Add(1); n != 1 {
		// would mean two tasks running concurrently; process() is the only caller
		panic(fmt.Sprintf("dispatch: %d tasks in flight", n))
	}
	defer q.inflight.Add(-1)

	// a panicking task counts as a failure, not a crash of the whole queue
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch task panic: %v", r)
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	e.attempts++
	start := time.Now()
	err = e.run(ctx)
	taskDuration.Observe(time.Since(start).Seconds())
	return err
}
