package schedule

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
)

var tracer = otel.Tracer("schedule")

// One execution of a stream's work. A nil error counts as a successful action, and updates the stream's last-action timestamp.
type Action func(ctx context.Context) error

// Returned by an [Action] which decided there was nothing to do; the loop logs it quietly and does not update the last-action timestamp.
var ErrNothingToDo = errors.New("nothing to do this cycle")

type StreamConfig struct {
	// Name of the logical stream; also the key for its persisted timestamp.
	Name     string
	MinDelay time.Duration
	MaxDelay time.Duration
	// Run on the first iteration regardless of the persisted timestamp.
	Immediate bool
}

type Outcome string

const (
	OutcomeNotDue  Outcome = "not-due"
	OutcomeStarted Outcome = "started"
	OutcomeBusy    Outcome = "skipped-busy"
	OutcomeStopped Outcome = "stopped"
)

type Stream struct {
	config StreamConfig
	action Action
	state  *StateStore
	clock  Clock
	logger *slog.Logger

	// set while a cycle is running
	running atomic.Bool
	stopped atomic.Bool
	stopCh  chan struct{}
	stopMu  sync.Once
	first   bool
	cycles  sync.WaitGroup

	// overridable for tests
	jitter func(min, max time.Duration) time.Duration
}

func NewStream(config StreamConfig, action Action, state *StateStore, clock Clock, logger *slog.Logger) (*Stream, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	if config.MinDelay <= 0 || config.MaxDelay < config.MinDelay {
		return nil, fmt.Errorf("invalid delay window for stream %s: %s-%s", config.Name, config.MinDelay, config.MaxDelay)
	}
	if clock == nil {
		clock = RealClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		config: config,
		action: action,
		state:  state,
		clock:  clock,
		logger: logger.With("stream", config.Name),
		stopCh: make(chan struct{}),
		first:  true,
		jitter: util.RandomDuration,
	}, nil
}

func (s *Stream) Name() string {
	return s.config.Name
}

// Runs one loop iteration: draws the next delay, and starts a cycle if enough time has passed since the last action. Returns the drawn delay, which is when the next iteration should happen.
func (s *Stream) Tick(ctx context.Context) (time.Duration, Outcome) {
	delay := s.jitter(s.config.MinDelay, s.config.MaxDelay)
	if s.stopped.Load() {
		return delay, OutcomeStopped
	}

	immediate := s.first && s.config.Immediate
	s.first = false

	if !immediate {
		last, err := s.state.LastAction(ctx, s.config.Name)
		if err != nil {
			// without a trustworthy timestamp, don't risk a burst; try again next iteration
			s.logger.Error("failed to read last action timestamp", "err", err)
			cycleCount.WithLabelValues(s.config.Name, "state-error").Inc()
			return delay, OutcomeNotDue
		}
		if !s.clock.Now().After(last.Add(delay)) {
			s.logger.Debug("stream not due", "last", last, "delay", delay)
			cycleCount.WithLabelValues(s.config.Name, string(OutcomeNotDue)).Inc()
			return delay, OutcomeNotDue
		}
	}

	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous cycle still running, skipping")
		cycleCount.WithLabelValues(s.config.Name, string(OutcomeBusy)).Inc()
		return delay, OutcomeBusy
	}
	cycleCount.WithLabelValues(s.config.Name, string(OutcomeStarted)).Inc()
	s.cycles.Add(1)
	go s.runCycle(ctx)
	return delay, OutcomeStarted
}

func (s *Stream) runCycle(ctx context.Context) {
	defer s.cycles.Done()
	defer s.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stream cycle panic", "err", r)
			cycleCount.WithLabelValues(s.config.Name, "panic").Inc()
		}
	}()

	ctx, span := tracer.Start(ctx, "schedule.cycle")
	span.SetAttributes(attribute.String("stream", s.config.Name))
	defer span.End()

	start := s.clock.Now()
	err := s.action(ctx)
	cycleDuration.WithLabelValues(s.config.Name).Observe(s.clock.Now().Sub(start).Seconds())
	if errors.Is(err, ErrNothingToDo) {
		s.logger.Info("cycle had nothing to do")
		cycleCount.WithLabelValues(s.config.Name, "nothing-to-do").Inc()
		return
	}
	if err != nil {
		s.logger.Error("stream cycle failed", "err", err)
		cycleCount.WithLabelValues(s.config.Name, "failed").Inc()
		return
	}
	cycleCount.WithLabelValues(s.config.Name, "success").Inc()
	if err := s.state.SetLastAction(ctx, s.config.Name, s.clock.Now()); err != nil {
		s.logger.Error("failed to persist last action timestamp", "err", err)
	}
}

// Loops until Stop is called or ctx is done, then waits for any in-flight cycle to finish.
//
// Stop is cooperative and never interrupts a running cycle. Cancelling ctx is the hard stop: the context is passed down to the cycle.
func (s *Stream) Run(ctx context.Context) error {
	s.logger.Info("starting stream", "minDelay", s.config.MinDelay, "maxDelay", s.config.MaxDelay)
	defer s.cycles.Wait()
	for {
		if s.stopped.Load() {
			return nil
		}
		delay, _ := s.Tick(ctx)
		select {
		case <-s.clock.After(delay):
		case <-s.stopCh:
			s.logger.Info("stream stopped")
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Sets the stop flag; the loop exits before its next iteration.
func (s *Stream) Stop() {
	s.stopMu.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
	})
}

// Blocks until any in-flight cycle has finished.
func (s *Stream) Wait() {
	s.cycles.Wait()
}

// True while a cycle is executing.
func (s *Stream) Busy() bool {
	return s.running.Load()
}
