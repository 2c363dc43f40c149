package async

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Scheduler defers a task by a delay. The repository is handed one by the
// host; TimerScheduler is the standalone implementation.
type Scheduler interface {
	Schedule(delay time.Duration, f func())
}

// TimerScheduler schedules on plain timers.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(delay time.Duration, f func()) {
	time.AfterFunc(delay, f)
}

// RetryPolicy bounds the exponential backoff of a retrying operation.
type RetryPolicy struct {
	InitialDelay time.Duration
	// MaxElapsed caps the cumulative retry duration; once exceeded the last
	// failure is surfaced.
	MaxElapsed time.Duration
}

// DefaultRetryPolicy matches the bounded backoff used for transient shard
// transport failures.
var DefaultRetryPolicy = RetryPolicy{InitialDelay: 50 * time.Millisecond, MaxElapsed: 1000 * time.Millisecond}

// Retry runs op and, when it fails with an error the classifier deems
// retryable, reschedules it on the scheduler after the next backoff delay.
// Non-retryable failures and retryable failures past the policy bound are
// surfaced to done.
func Retry[T any](sched Scheduler, policy RetryPolicy, retryable func(error) bool, op func(Listener[T]), done Listener[T]) {
	b := backoff.NewExponentialBackOff()
	if policy.InitialDelay > 0 {
		b.InitialInterval = policy.InitialDelay
	}
	b.MaxElapsedTime = policy.MaxElapsed
	b.Reset()

	var attempt func()
	attempt = func() {
		op(ListenerFuncs[T]{
			Response: done.OnResponse,
			Failure: func(err error) {
				if !retryable(err) {
					done.OnFailure(err)
					return
				}
				delay := b.NextBackOff()
				if delay == backoff.Stop {
					done.OnFailure(err)
					return
				}
				sched.Schedule(delay, attempt)
			},
		})
	}
	attempt()
}
