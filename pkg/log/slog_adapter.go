package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// SlogAdapter writes protocol events to an slog.Logger at debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter. A nil logger uses slog.Default().
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("port_id", event.PortID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.Device != "" {
		attrs = append(attrs, slog.String("device", event.Device))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Message != nil:
		m := event.Message
		attrs = append(attrs,
			slog.String("msg_type", m.Type.String()),
			slog.String("service", wire.Service(m.Service).String()),
			slog.Uint64("client_id", uint64(m.ClientID)),
			slog.Uint64("txid", uint64(m.TransactionID)),
			slog.String("msg_id", fmt.Sprintf("0x%04x", m.MessageID)),
		)
		if m.Name != "" {
			attrs = append(attrs, slog.String("name", m.Name))
		}
		if m.Result != nil {
			attrs = append(attrs, slog.String("result", wire.ProtocolErrorCode(*m.Result).String()))
		}
		if m.Elapsed != nil {
			attrs = append(attrs, slog.Duration("elapsed", *m.Elapsed))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "qmi", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
