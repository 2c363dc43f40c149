package stream

import (
	"io"

	"github.com/INLOpen/nexusvault/core"
)

// AbortableReader checks an abort probe before every read, turning a sticky
// abort flag into ErrSnapshotAborted at the next suspension point.
type AbortableReader struct {
	r       io.Reader
	aborted func() bool
}

func NewAbortableReader(r io.Reader, aborted func() bool) *AbortableReader {
	return &AbortableReader{r: r, aborted: aborted}
}

func (a *AbortableReader) Read(p []byte) (int, error) {
	if a.aborted() {
		return 0, core.ErrSnapshotAborted
	}
	return a.r.Read(p)
}
