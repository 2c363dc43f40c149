package stream

import (
	"bytes"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestRateLimitedReader_NilLimiterBypasses(t *testing.T) {
	src := bytes.NewReader([]byte("data"))
	r := NewRateLimitedReader(src, nil, nil)
	assert.Equal(t, src, r, "nil limiter returns the source unchanged")
}

func TestRateLimitedReader_PassesDataThrough(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 256*1024)
	var throttled atomic.Int64
	// Generous limiter: the content fits in the initial burst, so the test
	// doesn't sleep.
	limiter := rate.NewLimiter(rate.Limit(1<<30), 1<<20)
	r := NewRateLimitedReader(bytes.NewReader(content), limiter, &throttled)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestRateLimitedReader_AccumulatesThrottledNanos(t *testing.T) {
	content := bytes.Repeat([]byte("y"), 64*1024)
	var throttled atomic.Int64
	// A tiny burst starves the bucket after the first few reads, forcing
	// measurable sleeps without slowing the test down much.
	limiter := rate.NewLimiter(rate.Limit(1<<20), 4096)
	r := NewRateLimitedReader(bytes.NewReader(content), limiter, &throttled)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, content, got)
	assert.Positive(t, throttled.Load(), "blocked time must be accounted")
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0), "zero disables throttling")
	assert.Nil(t, NewLimiter(-1), "negative disables throttling")

	l := NewLimiter(40 * 1024 * 1024)
	require.NotNil(t, l)
	assert.Equal(t, rate.Limit(40*1024*1024), l.Limit())
}
