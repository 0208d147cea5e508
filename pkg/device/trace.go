package device

import (
	"context"
	"log/slog"
	"time"

	"github.com/qmi-protocol/qmi-go/pkg/log"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

const (
	tracePrefixOut = "<<<<<< "
	tracePrefixIn  = ">>>>>> "
)

// traceMessage writes the printable dump when tracing is enabled and emits
// a capture event. elapsed is only set for matched responses.
func (d *Device) traceMessage(dir log.Direction, msg *wire.Message, elapsed time.Duration) {
	if d.cfg.Trace.Enabled && d.logger.Enabled(context.Background(), slog.LevelDebug) {
		prefix, what := tracePrefixIn, "received "+msg.Kind().String()
		if dir == log.DirectionOut {
			prefix, what = tracePrefixOut, "sent "+msg.Kind().String()
		}
		dump := msg.Printable(prefix, wire.PrintOptions{HidePersonalInfo: !d.cfg.Trace.ShowPersonalInfo})
		d.logger.Debug(what, "message", msg.Name(), "dump", "\n"+dump)
	}

	if d.cfg.ProtocolLogger == nil {
		return
	}
	ev := log.NewMessageEvent(msg, d.cfg.Trace.ShowPersonalInfo)
	if elapsed > 0 {
		ev.Elapsed = &elapsed
	}
	d.capture.Log(log.Event{
		Timestamp: time.Now(),
		PortID:    d.portID,
		Device:    d.name,
		Direction: dir,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Message:   ev,
	})
}
