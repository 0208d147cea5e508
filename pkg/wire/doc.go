// Package wire implements the QMUX/QMI binary message format.
//
// Every frame starts with a six byte QMUX header followed by a QMI header and
// a list of TLVs:
//
//	0x01 | length:u16 | qmux flags:u8 | service:u8 | client id:u8
//	CTL:   flags:u8 | transaction:u8
//	other: flags:u8 | transaction:u16
//	message id:u16 | tlv length:u16 | { tag:u8 | length:u16 | value }...
//
// All multi-byte fields are little endian. The QMUX length counts every byte
// after the marker.
//
// # Messages
//
// A Message owns its encoded bytes and an index of TLV offsets; it is never
// modified once built. Decode validates every length field. NewMessage
// encodes a header and TLV list and computes the lengths. TLVs with tags this
// package does not understand are kept as they are, so a decoded message
// re-encodes to the same bytes.
//
// The codec knows nothing about per-service field semantics. Services build
// on Message.TLV and Message.TLVReader (see package ctl).
//
// # Errors
//
// Decoding failures wrap ErrMalformedMessage. A response whose result TLV
// reports failure yields a *ProtocolError carrying the device's code
// verbatim; it matches ErrDeviceError.
package wire
