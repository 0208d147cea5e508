package log

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FileExtension is the conventional suffix of capture files.
const FileExtension = ".qlog"

// FileLogger writes events to a capture file. A new file starts with a
// FileHeader; appending to an existing capture keeps its header. It is safe
// for concurrent use.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool

	dropped atomic.Uint64
}

// NewFileLogger opens path for appending, creating it with mode 0644 if
// needed.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	l := &FileLogger{file: f, encoder: NewEncoder(f)}
	if info.Size() == 0 {
		host, _ := os.Hostname()
		hdr := FileHeader{
			Version:      FormatVersion,
			Created:      time.Now(),
			Host:         host,
			MaxFrameData: MaxFrameData,
		}
		if err := l.encoder.Encode(hdr); err != nil {
			f.Close()
			return nil, fmt.Errorf("write capture header: %w", err)
		}
	}
	return l, nil
}

// Log appends an event. Events that fail to encode, and events logged
// after Close, are counted in Dropped.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		l.dropped.Add(1)
		return
	}
	if err := l.encoder.Encode(event); err != nil {
		l.dropped.Add(1)
	}
}

// Dropped returns how many events were not written.
func (l *FileLogger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close closes the file. It is safe to call more than once.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
