package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errBoom = errors.New("boom")

func newBreaker(clock *manualClock, cfg Config) *CircuitBreaker {
	cfg.Name = "test"
	cfg.Now = clock.Now
	return New(cfg)
}

func TestClosedAllowsCalls(t *testing.T) {
	cb := newBreaker(&manualClock{}, Config{FailureThreshold: 3})
	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestOpensAfterThreshold(t *testing.T) {
	cb := newBreaker(&manualClock{}, Config{FailureThreshold: 3})
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return errBoom }), errBoom)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := newBreaker(&manualClock{}, Config{FailureThreshold: 2})
	_ = cb.Execute(context.Background(), func(context.Context) error { return errBoom })
	_ = cb.Execute(context.Background(), func(context.Context) error { return nil })
	_ = cb.Execute(context.Background(), func(context.Context) error { return errBoom })
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenLifecycle(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	cb := newBreaker(clock, Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Minute})

	_ = cb.Execute(context.Background(), func(context.Context) error { return errBoom })
	require.Equal(t, StateOpen, cb.GetState())

	clock.Advance(30 * time.Second)
	assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return nil }), ErrCircuitOpen)

	clock.Advance(31 * time.Second)
	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.GetState())
	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	cb := newBreaker(clock, Config{FailureThreshold: 1, Timeout: time.Second})
	_ = cb.Execute(context.Background(), func(context.Context) error { return errBoom })
	clock.Advance(2 * time.Second)
	assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestIgnoredErrorsDoNotTrip(t *testing.T) {
	benign := errors.New("table missing")
	cb := newBreaker(&manualClock{}, Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, benign) },
	})
	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return benign }), benign)
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCanceledContextDoesNotTrip(t *testing.T) {
	cb := newBreaker(&manualClock{}, Config{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestConcurrentCalls(t *testing.T) {
	cb := newBreaker(&manualClock{}, Config{FailureThreshold: 1000})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = cb.Execute(context.Background(), func(context.Context) error {
				if i%2 == 0 {
					return errBoom
				}
				return nil
			})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
