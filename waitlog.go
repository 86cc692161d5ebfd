package extmem

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/outofcore/extmem/internal/constants"
	"github.com/outofcore/extmem/internal/interfaces"
)

// WaitLogWriter appends one line per completed wait to a file, the
// format documented for STXXLWAITLOGFILE: a nanosecond timestamp, an
// R or W kind marker, and the wait duration in nanoseconds, tab
// separated.
type WaitLogWriter struct {
	mu sync.Mutex
	f  *os.File
}

// NewWaitLogWriter opens (creating/truncating) path for wait-log
// output.
func NewWaitLogWriter(path string) (*WaitLogWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, WrapIOError("open_wait_log", -1, err)
	}
	return &WaitLogWriter{f: f}, nil
}

// NewWaitLogWriterFromEnv opens the file named by the STXXLWAITLOGFILE
// environment variable. It returns (nil, nil) if the variable is unset.
func NewWaitLogWriterFromEnv() (*WaitLogWriter, error) {
	path := os.Getenv(constants.WaitLogEnvVar)
	if path == "" {
		return nil, nil
	}
	return NewWaitLogWriter(path)
}

// LogWait appends one wait-log entry.
func (w *WaitLogWriter) LogWait(kind interfaces.WaitKind, at time.Time, d time.Duration) {
	k := "R"
	if kind == interfaces.WaitKindWrite {
		k = "W"
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.f, "%d\t%s\t%d\n", at.UnixNano(), k, d.Nanoseconds())
}

// Close flushes and closes the underlying file.
func (w *WaitLogWriter) Close() error {
	return w.f.Close()
}
