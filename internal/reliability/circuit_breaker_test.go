package reliability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(clock *fakeClock, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := NewCircuitBreaker(opts...)
	cb.now = clock.Now
	return cb
}

type recordingListener struct {
	mu          sync.Mutex
	transitions []State
	done        chan struct{}
}

func (l *recordingListener) OnStateChange(name string, from, to State, reason string) {
	l.mu.Lock()
	l.transitions = append(l.transitions, to)
	l.mu.Unlock()
	l.done <- struct{}{}
}

var errDial = errors.New("dial failed")

func fail() error    { return errDial }
func succeed() error { return nil }

func TestCircuitBreaker(t *testing.T) {
	ctx := context.Background()

	t.Run("starts in closed state", func(t *testing.T) {
		cb := NewCircuitBreaker()
		assert.Equal(t, StateClosed, cb.GetState())
		assert.Equal(t, "default", cb.Name())
	})

	t.Run("passes through the function error while closed", func(t *testing.T) {
		cb := NewCircuitBreaker(WithFailureThreshold(3))

		assert.ErrorIs(t, cb.Execute(ctx, fail), errDial)
		assert.NoError(t, cb.Execute(ctx, succeed))
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("opens after consecutive failures and rejects without calling", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1000, 0)}
		cb := newTestBreaker(clock, WithFailureThreshold(3), WithTimeout(5*time.Second), WithName("zmq-reconnect"))

		for i := 0; i < 3; i++ {
			assert.ErrorIs(t, cb.Execute(ctx, fail), errDial)
		}
		assert.Equal(t, StateOpen, cb.GetState())

		called := false
		err := cb.Execute(ctx, func() error {
			called = true
			return nil
		})
		assert.False(t, called)

		var cbErr *CircuitBreakerError
		require.ErrorAs(t, err, &cbErr)
		assert.Equal(t, StateOpen, cbErr.State)
		assert.Equal(t, "zmq-reconnect", cbErr.Name)
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.False(t, isRetryableError(err))
	})

	t.Run("success in closed state resets the failure count", func(t *testing.T) {
		cb := NewCircuitBreaker(WithFailureThreshold(2))

		cb.Execute(ctx, fail)
		cb.Execute(ctx, succeed)
		cb.Execute(ctx, fail)

		assert.Equal(t, StateClosed, cb.GetState())
		assert.Equal(t, 1, cb.GetMetrics().CurrentFailures)
	})

	t.Run("trial call after cooldown closes the circuit on success", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1000, 0)}
		cb := newTestBreaker(clock, WithFailureThreshold(1), WithTimeout(5*time.Second))

		cb.Execute(ctx, fail)
		assert.Equal(t, StateOpen, cb.GetState())

		clock.Advance(4 * time.Second)
		assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)

		clock.Advance(2 * time.Second)
		assert.NoError(t, cb.Execute(ctx, succeed))
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("failed trial call reopens the circuit", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1000, 0)}
		cb := newTestBreaker(clock, WithFailureThreshold(1), WithTimeout(time.Second))

		cb.Execute(ctx, fail)
		clock.Advance(2 * time.Second)

		assert.ErrorIs(t, cb.Execute(ctx, fail), errDial)
		assert.Equal(t, StateOpen, cb.GetState())
		assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)
	})

	t.Run("success threshold above one keeps the circuit half-open", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1000, 0)}
		cb := newTestBreaker(clock,
			WithFailureThreshold(1),
			WithSuccessThreshold(2),
			WithHalfOpenRequests(2),
			WithTimeout(time.Second))

		cb.Execute(ctx, fail)
		clock.Advance(2 * time.Second)

		assert.NoError(t, cb.Execute(ctx, succeed))
		assert.Equal(t, StateHalfOpen, cb.GetState())
		assert.NoError(t, cb.Execute(ctx, succeed))
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("half-open admits a limited number of concurrent trial calls", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1000, 0)}
		cb := newTestBreaker(clock, WithFailureThreshold(1), WithTimeout(time.Second))

		cb.Execute(ctx, fail)
		clock.Advance(2 * time.Second)

		release := make(chan struct{})
		trialErr := make(chan error, 1)
		started := make(chan struct{})
		go func() {
			trialErr <- cb.Execute(ctx, func() error {
				close(started)
				<-release
				return nil
			})
		}()
		<-started

		err := cb.Execute(ctx, succeed)
		var cbErr *CircuitBreakerError
		require.ErrorAs(t, err, &cbErr)
		assert.Equal(t, StateHalfOpen, cbErr.State)

		close(release)
		assert.NoError(t, <-trialErr)
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("Reset clears state", func(t *testing.T) {
		cb := NewCircuitBreaker(WithFailureThreshold(1))

		cb.Execute(ctx, fail)
		require.Equal(t, StateOpen, cb.GetState())

		cb.Reset()
		assert.Equal(t, StateClosed, cb.GetState())
		assert.Equal(t, 0, cb.GetMetrics().CurrentFailures)
	})

	t.Run("cancelled context is returned before running", func(t *testing.T) {
		cb := NewCircuitBreaker()
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		called := false
		err := cb.Execute(cancelled, func() error {
			called = true
			return nil
		})
		assert.Equal(t, context.Canceled, err)
		assert.False(t, called)
	})

	t.Run("listeners are notified of transitions", func(t *testing.T) {
		listener := &recordingListener{done: make(chan struct{}, 4)}
		cb := NewCircuitBreaker(WithFailureThreshold(1), WithListener(listener))

		cb.Execute(ctx, fail)
		cb.Reset()

		for i := 0; i < 2; i++ {
			select {
			case <-listener.done:
			case <-time.After(time.Second):
				t.Fatal("listener not notified")
			}
		}
		listener.mu.Lock()
		defer listener.mu.Unlock()
		assert.ElementsMatch(t, []State{StateOpen, StateClosed}, listener.transitions)
	})

	t.Run("metrics count calls, failures and rejections", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1000, 0)}
		cb := newTestBreaker(clock, WithFailureThreshold(2), WithName("metrics"))

		cb.Execute(ctx, succeed)
		cb.Execute(ctx, fail)
		cb.Execute(ctx, fail)
		cb.Execute(ctx, succeed)

		m := cb.GetMetrics()
		assert.Equal(t, "metrics", m.Name)
		assert.Equal(t, StateOpen, m.State)
		assert.Equal(t, int64(4), m.TotalCalls)
		assert.Equal(t, int64(2), m.TotalFailures)
		assert.Equal(t, int64(1), m.TotalRejected)
		assert.Equal(t, clock.Now(), m.LastFailureTime)
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
