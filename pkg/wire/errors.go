package wire

import (
	"errors"
	"fmt"
)

// Codec errors.
var (
	// ErrMalformedMessage indicates a frame whose lengths are inconsistent
	// with its contents, or that is too short to hold a QMI header.
	ErrMalformedMessage = errors.New("malformed QMI message")

	// ErrUnsupported indicates a message or TLV this package cannot handle.
	ErrUnsupported = errors.New("unsupported QMI message")

	// ErrTLVNotFound indicates a message has no TLV with the requested tag.
	ErrTLVNotFound = errors.New("TLV not found")

	// ErrDeviceError is matched by every *ProtocolError.
	ErrDeviceError = errors.New("device reported an error")

	// ErrMessageTooLarge indicates the encoded message does not fit the QMUX
	// length field.
	ErrMessageTooLarge = errors.New("message too large")
)

// ProtocolError is the error a device returned in a response's result TLV.
// The numeric code is kept verbatim, including codes this package has no
// name for.
type ProtocolError struct {
	Code      ProtocolErrorCode
	Service   Service
	MessageID uint16
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("QMI protocol error %d (%s) in %s message 0x%04x",
		uint16(e.Code), e.Code, e.Service, e.MessageID)
}

// Unwrap allows errors.Is(err, ErrDeviceError).
func (e *ProtocolError) Unwrap() error {
	return ErrDeviceError
}

// Is matches another *ProtocolError with the same code.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Code == e.Code
}

// ProtocolErrorCodeOf returns the device error code carried by err, if any.
func ProtocolErrorCodeOf(err error) (ProtocolErrorCode, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return 0, false
}
