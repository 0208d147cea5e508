// Package transport moves QMUX frames between the host and a modem.
//
// A Transport is any byte stream with a name: a cdc-wdm character device
// opened with OpenFile, a connection to a qmi-proxy from DialProxy, the
// services of a QRTR node from OpenQRTR, or an in-memory Pipe for tests.
// FrameReader and FrameWriter sit on top of it.
//
// QRTR carries QMI messages without the QMUX header. QRTREndpoint adds it
// back on the way in, strips it on the way out and answers CTL requests
// itself.
//
// # Frame Layout
//
//	┌────────┬────────────┬───────┬─────────┬────────┬──────────────────┐
//	│ 0x01   │ length u16 │ flags │ service │ client │ QMI message ...  │
//	└────────┴────────────┴───────┴─────────┴────────┴──────────────────┘
//
// The length counts every byte after the marker. The reader discards
// anything before a marker, and a marker whose header disagrees with the
// QMI header behind it, then logs how much it skipped.
package transport
