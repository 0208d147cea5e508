package log

import (
	"time"
)

// Event is a protocol event captured on a port.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// PortID uniquely identifies one open of a port (UUID).
	PortID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// Device is the transport name, usually the device path.
	Device string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates message flow relative to the host.
type Direction uint8

const (
	// DirectionIn is traffic from the modem.
	DirectionIn Direction = 0
	// DirectionOut is traffic to the modem.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates where the event was captured.
type Layer uint8

const (
	// LayerTransport is the QMUX framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the decoded message layer.
	LayerWire Layer = 1
	// LayerDevice is the port multiplexer.
	LayerDevice Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerDevice:
		return "DEVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryState   Category = 2
	CategoryError   Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures a raw QMUX frame.
type FrameEvent struct {
	// Size is the frame size in bytes, marker included.
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame (may be truncated or withheld).
	Data []byte `cbor:"2,keyasint,omitempty"`

	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded QMI message.
type MessageEvent struct {
	Type          MessageType `cbor:"1,keyasint"`
	Service       uint8       `cbor:"2,keyasint"`
	ClientID      uint8       `cbor:"3,keyasint"`
	TransactionID uint16      `cbor:"4,keyasint"`
	MessageID     uint16      `cbor:"5,keyasint"`

	// Name is the message name from the name tables, if known.
	Name string `cbor:"6,keyasint,omitempty"`

	// Result is the protocol error code of a response's result TLV.
	Result *uint16 `cbor:"7,keyasint,omitempty"`

	TLVs []TLVEvent `cbor:"8,keyasint,omitempty"`

	// Elapsed is the time from request send to response receipt
	// (responses only).
	Elapsed *time.Duration `cbor:"9,keyasint,omitempty"`
}

// TLVEvent describes one TLV of a captured message. Value is omitted when
// personal info is hidden.
type TLVEvent struct {
	Type   uint8  `cbor:"1,keyasint"`
	Length int    `cbor:"2,keyasint"`
	Value  []byte `cbor:"3,keyasint,omitempty"`
}

// MessageType distinguishes request/response/indication.
type MessageType uint8

const (
	MessageTypeRequest    MessageType = 0
	MessageTypeResponse   MessageType = 1
	MessageTypeIndication MessageType = 2
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeIndication:
		return "INDICATION"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures port and client lifecycle events.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntityPort is the port open/close state machine.
	StateEntityPort StateEntity = 0
	// StateEntityClient is a client id allocation or release.
	StateEntityClient StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityPort:
		return "PORT"
	case StateEntityClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is the QMI protocol error code, if applicable.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what was being done.
	Context string `cbor:"4,keyasint,omitempty"`
}
