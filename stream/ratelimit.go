// Package stream provides the input-stream adapters the repository threads
// its uploads and restores through: bandwidth throttling, multi-part
// concatenation, and cooperative abort.
package stream

import (
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedReader throttles an io.Reader against a shared token bucket
// sized in bytes per second. When the bucket is starved the calling worker
// sleeps, and the slept nanoseconds are accumulated into throttledNanos so
// operators can measure throttle pressure.
type RateLimitedReader struct {
	r              io.Reader
	limiter        *rate.Limiter
	throttledNanos *atomic.Int64
}

// NewRateLimitedReader wraps r. A nil limiter bypasses throttling entirely.
func NewRateLimitedReader(r io.Reader, limiter *rate.Limiter, throttledNanos *atomic.Int64) io.Reader {
	if limiter == nil {
		return r
	}
	return &RateLimitedReader{r: r, limiter: limiter, throttledNanos: throttledNanos}
}

func (r *RateLimitedReader) Read(p []byte) (int, error) {
	// Cap each read at the bucket's burst so a single large buffer cannot
	// demand more tokens than the limiter can ever grant.
	if burst := r.limiter.Burst(); len(p) > burst && burst > 0 {
		p = p[:burst]
	}
	n, err := r.r.Read(p)
	if n > 0 {
		res := r.limiter.ReserveN(time.Now(), n)
		if res.OK() {
			if delay := res.Delay(); delay > 0 {
				time.Sleep(delay)
				if r.throttledNanos != nil {
					r.throttledNanos.Add(int64(delay))
				}
			}
		}
	}
	return n, err
}

// NewLimiter builds the shared per-direction token bucket. A non-positive
// bytesPerSec disables throttling (nil limiter).
func NewLimiter(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := int(bytesPerSec)
	if burst < 64*1024 {
		burst = 64 * 1024
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}
