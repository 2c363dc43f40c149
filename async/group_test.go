package async

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrouped_AllSuccess(t *testing.T) {
	var got []int
	var failed error
	g := NewGrouped[int](3, ListenerFuncs[[]int]{
		Response: func(vs []int) { got = vs },
		Failure:  func(err error) { failed = err },
	})

	g.OnResponse(1)
	assert.Nil(t, got, "aggregate fires only after the last completion")
	g.OnResponse(2)
	g.OnResponse(3)

	require.NoError(t, failed)
	assert.ElementsMatch(t, []int{1, 2, 3}, got)
}

func TestGrouped_FirstFailureWins(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	var got error
	var succeeded bool
	g := NewGrouped[int](3, ListenerFuncs[[]int]{
		Response: func([]int) { succeeded = true },
		Failure:  func(err error) { got = err },
	})

	g.OnFailure(first)
	g.OnResponse(1)
	g.OnFailure(second)

	assert.False(t, succeeded)
	assert.ErrorIs(t, got, first, "subsequent failures are suppressed")
}

func TestGrouped_ConcurrentCompletions(t *testing.T) {
	const n = 64
	done := make(chan []int, 1)
	g := NewGrouped[int](n, ListenerFuncs[[]int]{
		Response: func(vs []int) { done <- vs },
	})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g.OnResponse(i)
		}(i)
	}
	wg.Wait()
	assert.Len(t, <-done, n)
}

func TestGrouped_PanicsOnNonPositiveCount(t *testing.T) {
	assert.Panics(t, func() {
		NewGrouped[int](0, ListenerFuncs[[]int]{})
	})
}
