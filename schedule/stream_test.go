package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bluesky-social/herald/cachestore"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testStream(t *testing.T, config StreamConfig, state *StateStore, clock *ManualClock, action Action) *Stream {
	t.Helper()
	if config.Name == "" {
		config.Name = "post"
	}
	if config.MinDelay == 0 {
		config.MinDelay = 30 * time.Minute
		config.MaxDelay = 60 * time.Minute
	}
	s, err := NewStream(config, action, state, clock, nil)
	require.NoError(t, err)
	// always draw the window minimum
	s.jitter = func(min, max time.Duration) time.Duration { return min }
	return s
}

func testState() *StateStore {
	return &StateStore{Cache: cachestore.NewMemCacheStore(100), Namespace: "herald.example.com"}
}

func TestStreamFirstRun(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	clock := NewManualClock(epoch)
	state := testState()

	var calls atomic.Int32
	s := testStream(t, StreamConfig{}, state, clock, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	delay, outcome := s.Tick(ctx)
	s.Wait()
	assert.Equal(30*time.Minute, delay)
	assert.Equal(OutcomeStarted, outcome)
	assert.Equal(int32(1), calls.Load())

	last, err := state.LastAction(ctx, "post")
	assert.NoError(err)
	assert.True(epoch.Equal(last))
}

func TestStreamCycleDurationUsesClock(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	clock := NewManualClock(epoch)

	s := testStream(t, StreamConfig{Name: "slow-cycle"}, testState(), clock, func(ctx context.Context) error {
		clock.Advance(5 * time.Minute)
		return nil
	})
	_, outcome := s.Tick(ctx)
	s.Wait()
	assert.Equal(OutcomeStarted, outcome)

	var m dto.Metric
	require.NoError(t, cycleDuration.WithLabelValues("slow-cycle").(prometheus.Metric).Write(&m))
	assert.Equal(uint64(1), m.GetHistogram().GetSampleCount())
	assert.Equal((5 * time.Minute).Seconds(), m.GetHistogram().GetSampleSum())
}

func TestStreamRespectsLastAction(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	clock := NewManualClock(epoch)
	state := testState()

	var calls atomic.Int32
	action := func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}
	s := testStream(t, StreamConfig{}, state, clock, action)

	_, outcome := s.Tick(ctx)
	s.Wait()
	assert.Equal(OutcomeStarted, outcome)

	clock.Advance(10 * time.Minute)
	_, outcome = s.Tick(ctx)
	assert.Equal(OutcomeNotDue, outcome)

	// exactly at the boundary is still not due
	clock.Advance(20 * time.Minute)
	_, outcome = s.Tick(ctx)
	assert.Equal(OutcomeNotDue, outcome)

	clock.Advance(time.Second)
	_, outcome = s.Tick(ctx)
	s.Wait()
	assert.Equal(OutcomeStarted, outcome)
	assert.Equal(int32(2), calls.Load())
}

func TestStreamRestartDoesNotBurst(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	clock := NewManualClock(epoch)
	state := testState()
	assert.NoError(state.SetLastAction(ctx, "post", epoch.Add(-5*time.Minute)))

	var calls atomic.Int32
	action := func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}

	// a "restarted" process sharing the persisted state
	s := testStream(t, StreamConfig{}, state, clock, action)
	_, outcome := s.Tick(ctx)
	assert.Equal(OutcomeNotDue, outcome)
	assert.Equal(int32(0), calls.Load())

	// unless configured to act immediately on start
	s = testStream(t, StreamConfig{Immediate: true}, state, clock, action)
	_, outcome = s.Tick(ctx)
	s.Wait()
	assert.Equal(OutcomeStarted, outcome)
	assert.Equal(int32(1), calls.Load())

	// which only applies to the first iteration
	_, outcome = s.Tick(ctx)
	assert.Equal(OutcomeNotDue, outcome)
}

func TestStreamSkipsWhenBusy(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	clock := NewManualClock(epoch)

	release := make(chan struct{})
	var calls atomic.Int32
	s := testStream(t, StreamConfig{}, testState(), clock, func(ctx context.Context) error {
		calls.Add(1)
		<-release
		return nil
	})

	_, outcome := s.Tick(ctx)
	assert.Equal(OutcomeStarted, outcome)
	require.Eventually(t, s.Busy, time.Second, time.Millisecond)

	// timestamp hasn't been written yet, so the stream is still "due"
	clock.Advance(2 * time.Hour)
	_, outcome = s.Tick(ctx)
	assert.Equal(OutcomeBusy, outcome)

	close(release)
	s.Wait()
	assert.False(s.Busy())
	assert.Equal(int32(1), calls.Load())
}

func TestStreamFailuresDoNotRecord(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	clock := NewManualClock(epoch)
	state := testState()

	results := []func() error{
		func() error { return errors.New("generation failed") },
		func() error { panic("boom") },
		func() error { return ErrNothingToDo },
	}
	var idx atomic.Int32
	s := testStream(t, StreamConfig{}, state, clock, func(ctx context.Context) error {
		return results[idx.Add(1)-1]()
	})

	for range results {
		_, outcome := s.Tick(ctx)
		s.Wait()
		assert.Equal(OutcomeStarted, outcome)
		assert.False(s.Busy())
		last, err := state.LastAction(ctx, "post")
		assert.NoError(err)
		assert.True(last.IsZero())
	}
	assert.Equal(int32(3), idx.Load())
}

func TestStreamRunAndStop(t *testing.T) {
	ctx := context.Background()
	clock := NewManualClock(epoch)

	var calls atomic.Int32
	s := testStream(t, StreamConfig{}, testState(), clock, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	done := make(chan error)
	go func() {
		done <- s.Run(ctx)
	}()

	require.Eventually(t, func() bool { return clock.Waiters() == 1 && !s.Busy() }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	// next iteration draws 30m; last action was at epoch, so this one is due
	clock.Advance(31 * time.Minute)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stream did not stop")
	}

	// stopped streams never start cycles
	_, outcome := s.Tick(ctx)
	assert.Equal(t, OutcomeStopped, outcome)
}

func TestStreamRunContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := NewManualClock(epoch)
	s := testStream(t, StreamConfig{}, testState(), clock, func(ctx context.Context) error { return nil })

	done := make(chan error)
	go func() {
		done <- s.Run(ctx)
	}()
	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stream did not exit on cancel")
	}
}

func TestNewStreamValidation(t *testing.T) {
	assert := assert.New(t)
	noop := func(ctx context.Context) error { return nil }

	_, err := NewStream(StreamConfig{MinDelay: time.Minute, MaxDelay: time.Hour}, noop, testState(), nil, nil)
	assert.Error(err)
	_, err = NewStream(StreamConfig{Name: "post", MinDelay: time.Hour, MaxDelay: time.Minute}, noop, testState(), nil, nil)
	assert.Error(err)
	_, err = NewStream(StreamConfig{Name: "post", MinDelay: 0, MaxDelay: time.Minute}, noop, testState(), nil, nil)
	assert.Error(err)
	s, err := NewStream(StreamConfig{Name: "post", MinDelay: time.Minute, MaxDelay: time.Minute}, noop, testState(), nil, nil)
	assert.NoError(err)
	assert.Equal("post", s.Name())
}

func TestStateStoreCorrupt(t *testing.T) {
	ctx := context.Background()
	state := testState()
	assert.NoError(t, state.Cache.Set(ctx, "last-action", "herald.example.com/post", "yesterday", time.Time{}))
	_, err := state.LastAction(ctx, "post")
	assert.Error(t, err)

	// other namespaces are unaffected
	other := &StateStore{Cache: state.Cache, Namespace: "other.example.com"}
	last, err := other.LastAction(ctx, "post")
	assert.NoError(t, err)
	assert.True(t, last.IsZero())
}
