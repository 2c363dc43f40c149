package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlicedReader_ConcatenatesInOrder(t *testing.T) {
	slices := [][]byte{[]byte("abcd"), []byte("ef"), []byte("ghijk")}
	var opened []int
	r := NewSlicedReader(len(slices), func(i int) (io.ReadCloser, error) {
		opened = append(opened, i)
		return io.NopCloser(bytes.NewReader(slices[i])), nil
	})

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijk", string(got))
	assert.Equal(t, []int{0, 1, 2}, opened, "slices open lazily, in order")
}

func TestSlicedReader_EmptySlices(t *testing.T) {
	r := NewSlicedReader(3, func(i int) (io.ReadCloser, error) {
		if i == 1 {
			return io.NopCloser(bytes.NewReader(nil)), nil
		}
		return io.NopCloser(bytes.NewReader([]byte{byte('0' + i)})), nil
	})
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "02", string(got))
}

func TestSlicedReader_ZeroSlices(t *testing.T) {
	r := NewSlicedReader(0, func(i int) (io.ReadCloser, error) {
		t.Fatal("no slice should open")
		return nil, nil
	})
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSlicedReader_OpenFailure(t *testing.T) {
	boom := errors.New("missing part")
	r := NewSlicedReader(2, func(i int) (io.ReadCloser, error) {
		if i == 1 {
			return nil, boom
		}
		return io.NopCloser(bytes.NewReader([]byte("a"))), nil
	})
	_, err := io.ReadAll(r)
	assert.ErrorIs(t, err, boom)
}

type closeTracker struct {
	io.Reader
	closed *int
}

func (c *closeTracker) Close() error {
	*c.closed++
	return nil
}

func TestSlicedReader_ClosesEachSlice(t *testing.T) {
	var closed int
	r := NewSlicedReader(3, func(i int) (io.ReadCloser, error) {
		return &closeTracker{Reader: bytes.NewReader([]byte(fmt.Sprintf("%d", i))), closed: &closed}, nil
	})
	_, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, 3, closed)
	require.NoError(t, r.Close())
}
