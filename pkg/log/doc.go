// Package log captures QMI protocol events.
//
// Protocol capture is separate from operational logging (slog). A capture
// is a complete, machine-readable trace of what crossed a port: raw QMUX
// frames, decoded messages, port state changes and errors.
//
// # Basic Usage
//
// Devices accept a Logger in their configuration:
//
//	// Development: mirror events to slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Production: write a capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/qmi/cdc-wdm0.qlog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(a, b)
//
// # Event Types
//
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded messages (MessageEvent)
//   - Device: port state changes (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events with the .qlog
// extension. The qmi-log tool views and summarizes them.
package log
