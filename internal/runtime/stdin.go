package runtime

import (
	"io"
	"sync"
	"sync/atomic"
)

// Process stdin that reports when the source is exhausted.
//
// containerd's shim keeps both ends of the stdin FIFO open, so a process
// never sees EOF on its own. The done channel is closed on the first
// [io.EOF] from the source, which tells the caller to close the process's
// stdin. The number of bytes forwarded is kept for logging.
type stdinReader struct {
	r    io.Reader
	n    atomic.Int64
	once sync.Once
	done chan struct{}
}

func newStdinReader(r io.Reader) *stdinReader {
	return &stdinReader{r: r, done: make(chan struct{})}
}

func (s *stdinReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.n.Add(int64(n))
	if err == io.EOF {
		s.once.Do(func() { close(s.done) })
	}
	return n, err
}

// Bytes read from the source so far.
func (s *stdinReader) Bytes() int64 {
	return s.n.Load()
}
