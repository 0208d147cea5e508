package log

// Logger receives protocol events. Pass nil or NoopLogger to disable
// capture.
type Logger interface {
	// Log records a protocol event. Implementations must be safe for
	// concurrent use and should not block.
	Log(event Event)
}

// NoopLogger discards all events.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}

// TraceConfig controls the human-readable message dumps a device writes to
// its operational logger. It is passed to each device explicitly.
type TraceConfig struct {
	// Enabled turns on a printable dump of every message sent or received.
	Enabled bool

	// ShowPersonalInfo includes TLV values and raw bytes in dumps and
	// capture events. When false they are replaced by a placeholder.
	ShowPersonalInfo bool
}
