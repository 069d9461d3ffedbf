// Adapts process output streams to structured logging.
//
// Build steps and install commands write to ordinary io.Writers. A [Writer]
// splits that output into lines and emits each one as a log record carrying
// the caller's attributes, so tool output is interleaved with pipeline
// records at the configured level. A [Tail] keeps only the last bytes of a
// stream for inclusion in error messages.
package logstream

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Forwards each complete line written to it as a log record.
type Writer struct {
	mu     sync.Mutex
	logger *slog.Logger
	level  slog.Level
	msg    string
	buf    []byte
}

// Creates a writer logging at Info with the given message and attributes.
// A nil logger uses [slog.Default] at write time.
func New(logger *slog.Logger, msg string, attrs ...any) *Writer {
	if logger != nil && len(attrs) > 0 {
		logger = logger.With(attrs...)
	}
	w := &Writer{logger: logger, level: slog.LevelInfo, msg: msg}
	if logger == nil && len(attrs) > 0 {
		w.logger = slog.Default().With(attrs...)
	}
	return w
}

// Buffers p and logs every completed line.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Logs any trailing partial line.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
}

func (w *Writer) emit(line string) {
	line = strings.TrimRight(line, "\r")
	logger := w.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(context.Background(), w.level, w.msg, "line", line)
}

// Retains the last max bytes written to it.
type Tail struct {
	mu  sync.Mutex
	max int
	buf []byte
}

// Creates a tail buffer of the given capacity.
func NewTail(max int) *Tail {
	return &Tail{max: max}
}

func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

// Returns the retained bytes with surrounding whitespace trimmed.
func (t *Tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
