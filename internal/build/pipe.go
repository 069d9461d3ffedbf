package build

import (
	"errors"
	"io"
)

// Streams a tar archive from produce to consume through a pipe.
//
// produce runs in its own goroutine. Whatever consume leaves unread is
// drained so the producer can finish, and the errors of both sides are
// returned together.
func pipeTar(produce func(w io.Writer) error, consume func(r io.Reader) error) error {
	pr, pw := io.Pipe()

	errc := make(chan error, 1)
	go func() {
		err := produce(pw)
		pw.CloseWithError(err)
		errc <- err
	}()

	err := consume(pr)
	if err == nil {
		_, err = io.Copy(io.Discard, pr)
	}
	pr.CloseWithError(err)

	return errors.Join(err, <-errc)
}
