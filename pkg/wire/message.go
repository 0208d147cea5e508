package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/qmi-protocol/qmi-go/pkg/cursor"
)

// Marker is the first byte of every QMUX frame.
const Marker byte = 0x01

// QMUX flags.
const (
	QMUXFlagHost    uint8 = 0x00
	QMUXFlagService uint8 = 0x80
)

// Client ids with a reserved meaning.
const (
	// CIDControl is the client id used by the CTL service.
	CIDControl uint8 = 0x00

	// CIDNone asks for a new client id to be allocated.
	CIDNone uint8 = 0xFF

	// CIDBroadcast addresses an indication to every client of a service.
	CIDBroadcast uint8 = 0xFF
)

// QMI header flags for the CTL service.
const (
	CTLFlagRequest    uint8 = 0x00
	CTLFlagResponse   uint8 = 0x01
	CTLFlagIndication uint8 = 0x02
)

// QMI header flags for every other service.
const (
	FlagRequest    uint8 = 0x00
	FlagCompound   uint8 = 0x01
	FlagResponse   uint8 = 0x02
	FlagIndication uint8 = 0x04
)

// TLVResult is the tag of the standard result TLV carried by every response.
const TLVResult uint8 = 0x02

// Frame geometry.
const (
	// QMUXHeaderSize covers marker, length, flags, service and client id.
	QMUXHeaderSize = 6

	ctlHeaderSize     = 2 + 4
	serviceHeaderSize = 3 + 4
	tlvHeaderSize     = 3

	// MaxMessageSize is the largest frame the u16 QMUX length field allows.
	MaxMessageSize = 1 + 0xFFFF
)

// Kind classifies a message by the direction its flags imply.
type Kind uint8

const (
	KindRequest Kind = iota
	KindResponse
	KindIndication
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindIndication:
		return "indication"
	default:
		return "unknown"
	}
}

// Header holds the QMUX and QMI header fields of a message.
type Header struct {
	QMUXFlags     uint8
	Service       Service
	ClientID      uint8
	Flags         uint8
	TransactionID uint16
	MessageID     uint16
}

// Kind derives the message kind from the QMI flags.
func (h Header) Kind() Kind {
	if h.Service == ServiceCTL {
		switch {
		case h.Flags&CTLFlagIndication != 0:
			return KindIndication
		case h.Flags&CTLFlagResponse != 0:
			return KindResponse
		}
		return KindRequest
	}
	switch {
	case h.Flags&FlagIndication != 0:
		return KindIndication
	case h.Flags&FlagResponse != 0:
		return KindResponse
	}
	return KindRequest
}

// headerSize returns the size of the QMI header following the QMUX header.
func headerSize(s Service) int {
	if s == ServiceCTL {
		return ctlHeaderSize
	}
	return serviceHeaderSize
}

// MaxTransactionID returns the largest transaction id the service's header
// can carry.
func MaxTransactionID(s Service) uint16 {
	if s == ServiceCTL {
		return 0xFF
	}
	return 0xFFFF
}

// TLV is a single tag-length-value field.
type TLV struct {
	Type  uint8
	Value []byte
}

type tlvIndex struct {
	tag    uint8
	offset int
	length int
}

// Message is a decoded QMI message. It owns its raw bytes and is never
// modified after construction; accessors return copies.
type Message struct {
	raw    []byte
	header Header
	tlvs   []tlvIndex
}

// Header returns the message header.
func (m *Message) Header() Header { return m.header }

// Service returns the QMI service the message belongs to.
func (m *Message) Service() Service { return m.header.Service }

// ClientID returns the client id from the QMUX header.
func (m *Message) ClientID() uint8 { return m.header.ClientID }

// TransactionID returns the transaction id.
func (m *Message) TransactionID() uint16 { return m.header.TransactionID }

// MessageID returns the message id.
func (m *Message) MessageID() uint16 { return m.header.MessageID }

// Kind returns whether the message is a request, response or indication.
func (m *Message) Kind() Kind { return m.header.Kind() }

// IsRequest reports whether the message is a request.
func (m *Message) IsRequest() bool { return m.Kind() == KindRequest }

// IsResponse reports whether the message is a response.
func (m *Message) IsResponse() bool { return m.Kind() == KindResponse }

// IsIndication reports whether the message is an indication.
func (m *Message) IsIndication() bool { return m.Kind() == KindIndication }

// Len returns the encoded length in bytes.
func (m *Message) Len() int { return len(m.raw) }

// Bytes returns a copy of the encoded message.
func (m *Message) Bytes() []byte {
	out := make([]byte, len(m.raw))
	copy(out, m.raw)
	return out
}

// Payload returns the message without its QMUX header: the QMI header
// and TLVs, as QRTR carries them. The slice aliases the message.
func (m *Message) Payload() []byte {
	return m.raw[QMUXHeaderSize:]
}

// Name returns the message name, or "unknown" if the id is not in the
// generated tables.
func (m *Message) Name() string {
	if m.IsIndication() {
		return IndicationName(m.header.Service, m.header.MessageID)
	}
	return MessageName(m.header.Service, m.header.MessageID)
}

// TLVs returns every TLV in wire order, including tags this package does
// not know about.
func (m *Message) TLVs() []TLV {
	out := make([]TLV, 0, len(m.tlvs))
	for _, t := range m.tlvs {
		out = append(out, TLV{Type: t.tag, Value: m.value(t)})
	}
	return out
}

// TLV returns a copy of the value of the first TLV with the given tag.
func (m *Message) TLV(tag uint8) ([]byte, bool) {
	for _, t := range m.tlvs {
		if t.tag == tag {
			return m.value(t), true
		}
	}
	return nil, false
}

// TLVReader returns a cursor over the value of the first TLV with the given
// tag.
func (m *Message) TLVReader(tag uint8) (*cursor.Reader, error) {
	v, ok := m.TLV(tag)
	if !ok {
		return nil, fmt.Errorf("%w: tag 0x%02x in %s message 0x%04x",
			ErrTLVNotFound, tag, m.header.Service, m.header.MessageID)
	}
	return cursor.NewReader(v), nil
}

func (m *Message) value(t tlvIndex) []byte {
	v := make([]byte, t.length)
	copy(v, m.raw[t.offset:t.offset+t.length])
	return v
}

// Result interprets the standard result TLV.
//
// It returns nil on success and a *ProtocolError when the device reported a
// failure. A response without a valid result TLV is malformed. Requests and
// indications without a result TLV return nil.
func (m *Message) Result() error {
	r, err := m.TLVReader(TLVResult)
	if err != nil {
		if m.IsResponse() {
			return fmt.Errorf("%w: response without result TLV", ErrMalformedMessage)
		}
		return nil
	}
	status, err := r.ReadU16(cursor.LittleEndian)
	if err != nil {
		return fmt.Errorf("%w: result TLV: %v", ErrMalformedMessage, err)
	}
	code, err := r.ReadU16(cursor.LittleEndian)
	if err != nil {
		return fmt.Errorf("%w: result TLV: %v", ErrMalformedMessage, err)
	}
	if status == 0 {
		return nil
	}
	return &ProtocolError{
		Code:      ProtocolErrorCode(code),
		Service:   m.header.Service,
		MessageID: m.header.MessageID,
	}
}

// WithTransactionID returns a copy of m carrying a different transaction id.
func (m *Message) WithTransactionID(txid uint16) (*Message, error) {
	if txid > MaxTransactionID(m.header.Service) {
		return nil, fmt.Errorf("%w: transaction id %d too large for %s",
			ErrMalformedMessage, txid, m.header.Service)
	}
	out := &Message{
		raw:    m.Bytes(),
		header: m.header,
		tlvs:   m.tlvs,
	}
	out.header.TransactionID = txid
	if m.header.Service == ServiceCTL {
		out.raw[QMUXHeaderSize+1] = uint8(txid)
	} else {
		binary.LittleEndian.PutUint16(out.raw[QMUXHeaderSize+1:], txid)
	}
	return out, nil
}

// WithClientID returns a copy of m addressed to a different client id.
func (m *Message) WithClientID(cid uint8) *Message {
	out := &Message{
		raw:    m.Bytes(),
		header: m.header,
		tlvs:   m.tlvs,
	}
	out.header.ClientID = cid
	out.raw[5] = cid
	return out
}

// String returns a one-line summary of the message.
func (m *Message) String() string {
	return fmt.Sprintf("%s %s %q (0x%04x) cid=%d txid=%d tlvs=%d",
		m.header.Service, m.Kind(), m.Name(), m.header.MessageID,
		m.header.ClientID, m.header.TransactionID, len(m.tlvs))
}
