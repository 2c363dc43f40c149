package stream

import (
	"fmt"
	"io"
)

// SlicedReader presents N numbered blob parts as one logically contiguous
// input stream. Slices are opened lazily, in order, with no extra copy.
type SlicedReader struct {
	numSlices int
	openSlice func(i int) (io.ReadCloser, error)

	next    int
	current io.ReadCloser
}

// NewSlicedReader builds a reader over numSlices parts; openSlice is invoked
// once per slice, in order.
func NewSlicedReader(numSlices int, openSlice func(i int) (io.ReadCloser, error)) *SlicedReader {
	return &SlicedReader{numSlices: numSlices, openSlice: openSlice}
}

func (s *SlicedReader) Read(p []byte) (int, error) {
	for {
		if s.current == nil {
			if s.next >= s.numSlices {
				return 0, io.EOF
			}
			rc, err := s.openSlice(s.next)
			if err != nil {
				return 0, fmt.Errorf("failed to open slice %d: %w", s.next, err)
			}
			s.current = rc
			s.next++
		}
		n, err := s.current.Read(p)
		if err == io.EOF {
			closeErr := s.current.Close()
			s.current = nil
			if closeErr != nil {
				return n, closeErr
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *SlicedReader) Close() error {
	if s.current != nil {
		err := s.current.Close()
		s.current = nil
		return err
	}
	return nil
}
