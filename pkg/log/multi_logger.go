package log

import (
	"errors"
	"io"
)

// MultiLogger fans events out to several loggers, for example a capture
// file and the debug log.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger. Nil and NoopLogger entries are
// skipped and nested MultiLoggers are flattened.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		switch v := l.(type) {
		case nil, NoopLogger, *NoopLogger:
		case *MultiLogger:
			if v != nil {
				m.loggers = append(m.loggers, v.loggers...)
			}
		default:
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Len returns the number of loggers events go to.
func (m *MultiLogger) Len() int { return len(m.loggers) }

// Log sends the event to every logger in order.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

// Close closes every logger that is an io.Closer and joins their errors.
func (m *MultiLogger) Close() error {
	var errs []error
	for _, l := range m.loggers {
		if c, ok := l.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

var (
	_ Logger    = (*MultiLogger)(nil)
	_ io.Closer = (*MultiLogger)(nil)
)
