package log

import (
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// DefaultMaxSize is the size at which a FileLogger rotates its file.
const DefaultMaxSize = 8 << 20

// FileLogger writes platform events to a file in CBOR format.
// When the file grows past MaxSize it is renamed to <path>.1, replacing any
// previous rotation, and a new file is started.
// It is safe for concurrent use from multiple goroutines.
type FileLogger struct {
	path    string
	maxSize int64

	mu      sync.Mutex
	file    *os.File
	counter *countingWriter
	encoder *cbor.Encoder
	closed  bool
}

// NewFileLogger creates a new FileLogger that writes to the specified path.
// If the file exists, new events are appended. The file is created with
// permissions 0644 if it doesn't exist.
func NewFileLogger(path string) (*FileLogger, error) {
	return NewRotatingFileLogger(path, DefaultMaxSize)
}

// NewRotatingFileLogger is NewFileLogger with an explicit rotation size.
// A maxSize of zero disables rotation.
func NewRotatingFileLogger(path string, maxSize int64) (*FileLogger, error) {
	l := &FileLogger{path: path, maxSize: maxSize}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	l.file = f
	l.counter = &countingWriter{w: f, n: st.Size()}
	l.encoder = NewEncoder(l.counter)
	return nil
}

// Log writes an event to the log file.
// This method is safe for concurrent use.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	// Ignore encoding errors - logging should not disrupt the application
	_ = l.encoder.Encode(event)

	if l.maxSize > 0 && l.counter.n >= l.maxSize {
		l.rotate()
	}
}

func (l *FileLogger) rotate() {
	l.file.Close()
	_ = os.Rename(l.path, l.path+".1")
	if err := l.open(); err != nil {
		l.closed = true
	}
}

// Path returns the path of the active log file.
func (l *FileLogger) Path() string {
	return l.path
}

// Close closes the log file.
// It is safe to call Close multiple times.
// After Close is called, subsequent Log calls are silently ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	return l.file.Close()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Compile-time interface satisfaction check.
var _ Logger = (*FileLogger)(nil)
