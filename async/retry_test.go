package async

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// immediateScheduler runs scheduled tasks synchronously, so retry tests
// don't depend on wall-clock timing.
type immediateScheduler struct {
	delays []time.Duration
}

func (s *immediateScheduler) Schedule(delay time.Duration, f func()) {
	s.delays = append(s.delays, delay)
	f()
}

var errTransient = errors.New("transient")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	sched := &immediateScheduler{}
	attempts := 0
	var got string
	Retry(sched, DefaultRetryPolicy, isTransient,
		func(l Listener[string]) {
			attempts++
			if attempts < 3 {
				l.OnFailure(errTransient)
				return
			}
			l.OnResponse("ok")
		},
		ListenerFuncs[string]{Response: func(v string) { got = v }},
	)

	assert.Equal(t, 3, attempts)
	assert.Equal(t, "ok", got)
	assert.Len(t, sched.delays, 2)
	for i := 1; i < len(sched.delays); i++ {
		assert.GreaterOrEqual(t, sched.delays[i], time.Duration(0))
	}
}

func TestRetry_NonRetryableSurfacesImmediately(t *testing.T) {
	sched := &immediateScheduler{}
	fatal := errors.New("fatal")
	attempts := 0
	var got error
	Retry(sched, DefaultRetryPolicy, isTransient,
		func(l Listener[string]) {
			attempts++
			l.OnFailure(fatal)
		},
		ListenerFuncs[string]{Failure: func(err error) { got = err }},
	)

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, got, fatal)
	assert.Empty(t, sched.delays)
}

func TestRetry_BoundedByMaxElapsed(t *testing.T) {
	// A real timer scheduler with a tight budget: the retries must stop
	// once the cumulative backoff passes MaxElapsed.
	done := make(chan error, 1)
	policy := RetryPolicy{InitialDelay: 5 * time.Millisecond, MaxElapsed: 50 * time.Millisecond}
	Retry(TimerScheduler{}, policy, isTransient,
		func(l Listener[string]) { l.OnFailure(errTransient) },
		ListenerFuncs[string]{Failure: func(err error) { done <- err }},
	)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errTransient)
	case <-time.After(5 * time.Second):
		t.Fatal("retry loop did not terminate")
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := NewPool(2)
	var running, maxSeen atomic.Int64
	gate := make(chan struct{})

	for i := 0; i < 8; i++ {
		pool.Execute(func() {
			n := running.Add(1)
			for {
				seen := maxSeen.Load()
				if n <= seen || maxSeen.CompareAndSwap(seen, n) {
					break
				}
			}
			<-gate
			running.Add(-1)
		})
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	pool.Drain()
	require.LessOrEqual(t, maxSeen.Load(), int64(2), "no more than pool-size tasks run at once")
}
