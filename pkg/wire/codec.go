package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/qmi-protocol/qmi-go/pkg/cursor"
)

// Decode parses one complete QMUX frame.
//
// The frame must start with Marker and its length fields must agree exactly
// with len(raw) and with the TLVs it contains. raw is copied; the caller may
// reuse it afterwards.
func Decode(raw []byte) (*Message, error) {
	buf := make([]byte, len(raw))
	copy(buf, raw)
	return decode(buf)
}

func decode(buf []byte) (*Message, error) {
	if len(buf) < QMUXHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the QMUX header", ErrMalformedMessage, len(buf))
	}
	if buf[0] != Marker {
		return nil, fmt.Errorf("%w: bad marker 0x%02x", ErrMalformedMessage, buf[0])
	}

	r := cursor.NewReader(buf[1:])
	qmuxLen, _ := r.ReadU16(cursor.LittleEndian)
	if int(qmuxLen)+1 != len(buf) {
		return nil, fmt.Errorf("%w: QMUX length %d does not match frame of %d bytes",
			ErrMalformedMessage, qmuxLen, len(buf))
	}

	var h Header
	h.QMUXFlags, _ = r.ReadU8()
	svc, _ := r.ReadU8()
	h.Service = Service(svc)
	h.ClientID, _ = r.ReadU8()

	if r.Len() < headerSize(h.Service) {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the %s header",
			ErrMalformedMessage, len(buf), h.Service)
	}
	h.Flags, _ = r.ReadU8()
	if h.Service == ServiceCTL {
		txid, _ := r.ReadU8()
		h.TransactionID = uint16(txid)
	} else {
		h.TransactionID, _ = r.ReadU16(cursor.LittleEndian)
	}
	h.MessageID, _ = r.ReadU16(cursor.LittleEndian)
	tlvLen, _ := r.ReadU16(cursor.LittleEndian)
	if int(tlvLen) != r.Len() {
		return nil, fmt.Errorf("%w: TLV block length %d, %d bytes remain",
			ErrMalformedMessage, tlvLen, r.Len())
	}

	m := &Message{raw: buf, header: h}
	for r.Len() > 0 {
		if r.Len() < tlvHeaderSize {
			return nil, fmt.Errorf("%w: truncated TLV header at offset %d",
				ErrMalformedMessage, 1+r.Offset())
		}
		tag, _ := r.ReadU8()
		n, _ := r.ReadU16(cursor.LittleEndian)
		offset := 1 + r.Offset()
		if err := r.Skip(int(n)); err != nil {
			return nil, fmt.Errorf("%w: TLV 0x%02x declares %d bytes: %v",
				ErrMalformedMessage, tag, n, err)
		}
		m.tlvs = append(m.tlvs, tlvIndex{tag: tag, offset: offset, length: int(n)})
	}
	return m, nil
}

// NewMessage encodes a message from a header and a list of TLVs. Length
// fields are computed; TLVs are written in the order given.
func NewMessage(h Header, tlvs ...TLV) (*Message, error) {
	if h.TransactionID > MaxTransactionID(h.Service) {
		return nil, fmt.Errorf("%w: transaction id %d too large for %s",
			ErrMalformedMessage, h.TransactionID, h.Service)
	}

	w := cursor.NewLimitedWriter(MaxMessageSize)
	tlvLenOffset, err := writeHeader(w, h)
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedMessage, err)
	}

	for _, t := range tlvs {
		if len(t.Value) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: TLV 0x%02x holds %d bytes", ErrMessageTooLarge, t.Type, len(t.Value))
		}
		err := w.WriteU8(t.Type)
		if err == nil {
			err = w.WriteU16(uint16(len(t.Value)), cursor.LittleEndian)
		}
		if err == nil {
			err = w.WriteBytes(t.Value)
		}
		if err != nil {
			if errors.Is(err, cursor.ErrOverflow) {
				return nil, fmt.Errorf("%w: %v", ErrMessageTooLarge, err)
			}
			return nil, err
		}
	}

	buf := w.Bytes()
	binary.LittleEndian.PutUint16(buf[1:], uint16(len(buf)-1))
	binary.LittleEndian.PutUint16(buf[tlvLenOffset:], uint16(len(buf)-tlvLenOffset-2))
	return decode(buf)
}

// writeHeader writes the QMUX and QMI headers with zero length fields and
// returns the offset of the TLV block length.
func writeHeader(w *cursor.Writer, h Header) (int, error) {
	for _, b := range []uint8{Marker, 0, 0, h.QMUXFlags, uint8(h.Service), h.ClientID, h.Flags} {
		if err := w.WriteU8(b); err != nil {
			return 0, err
		}
	}
	var err error
	if h.Service == ServiceCTL {
		err = w.WriteU8(uint8(h.TransactionID))
	} else {
		err = w.WriteU16(h.TransactionID, cursor.LittleEndian)
	}
	if err != nil {
		return 0, err
	}
	if err := w.WriteU16(h.MessageID, cursor.LittleEndian); err != nil {
		return 0, err
	}
	off := w.Len()
	return off, w.WriteU16(0, cursor.LittleEndian)
}

// WrapQMUX puts a QMUX header in front of payload, a QMI header and TLVs
// received from service outside of a QMUX stream, and decodes the result
// as if the device had sent it to cid. payload is copied.
func WrapQMUX(service Service, cid uint8, payload []byte) (*Message, error) {
	n := QMUXHeaderSize + len(payload)
	if n > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d byte payload", ErrMessageTooLarge, len(payload))
	}
	buf := make([]byte, n)
	buf[0] = Marker
	binary.LittleEndian.PutUint16(buf[1:], uint16(n-1))
	buf[3] = QMUXFlagService
	buf[4] = uint8(service)
	buf[5] = cid
	copy(buf[QMUXHeaderSize:], payload)
	return decode(buf)
}

// NewRequest builds a request from the host to a service client.
func NewRequest(service Service, cid uint8, messageID uint16, tlvs ...TLV) (*Message, error) {
	return NewMessage(Header{
		QMUXFlags: QMUXFlagHost,
		Service:   service,
		ClientID:  cid,
		Flags:     FlagRequest,
		MessageID: messageID,
	}, tlvs...)
}

// NewResponse builds a response as a device would send it.
func NewResponse(service Service, cid uint8, txid uint16, messageID uint16, tlvs ...TLV) (*Message, error) {
	return NewMessage(Header{
		QMUXFlags:     QMUXFlagService,
		Service:       service,
		ClientID:      cid,
		Flags:         ResponseFlag(service),
		TransactionID: txid,
		MessageID:     messageID,
	}, tlvs...)
}

// NewIndication builds an indication as a device would send it.
func NewIndication(service Service, cid uint8, messageID uint16, tlvs ...TLV) (*Message, error) {
	return NewMessage(Header{
		QMUXFlags: QMUXFlagService,
		Service:   service,
		ClientID:  cid,
		Flags:     IndicationFlag(service),
		MessageID: messageID,
	}, tlvs...)
}

// ResponseFlag returns the QMI flag marking a response for the service.
func ResponseFlag(s Service) uint8 {
	if s == ServiceCTL {
		return CTLFlagResponse
	}
	return FlagResponse
}

// IndicationFlag returns the QMI flag marking an indication for the service.
func IndicationFlag(s Service) uint8 {
	if s == ServiceCTL {
		return CTLFlagIndication
	}
	return FlagIndication
}

// ResultTLV encodes a result TLV reporting code. ProtocolErrorNone encodes
// success.
func ResultTLV(code ProtocolErrorCode) TLV {
	v := make([]byte, 4)
	if code != ProtocolErrorNone {
		binary.LittleEndian.PutUint16(v[0:], 1)
	}
	binary.LittleEndian.PutUint16(v[2:], uint16(code))
	return TLV{Type: TLVResult, Value: v}
}

// FrameLength returns the total length of the frame starting at buf, read
// from the QMUX header. ok is false until three bytes are available.
func FrameLength(buf []byte) (n int, ok bool) {
	if len(buf) < 3 {
		return 0, false
	}
	return int(binary.LittleEndian.Uint16(buf[1:3])) + 1, true
}

// FrameHeaderSize is the number of leading bytes, QMUX and QMI headers
// together, that a frame for service s carries before its TLVs.
func FrameHeaderSize(s Service) int {
	return QMUXHeaderSize + headerSize(s)
}

// CheckFrameHeader reports whether buf starts with a plausible frame header
// and returns the total frame length it declares. The QMUX flags byte must
// be a host or service value and the QMI TLV block length must account for
// every byte after the headers. buf needs FrameHeaderSize bytes for the
// service it names; shorter input reports false.
func CheckFrameHeader(buf []byte) (n int, ok bool) {
	if len(buf) < QMUXHeaderSize || buf[0] != Marker {
		return 0, false
	}
	if f := buf[3]; f != QMUXFlagHost && f != QMUXFlagService {
		return 0, false
	}
	hs := FrameHeaderSize(Service(buf[4]))
	if len(buf) < hs {
		return 0, false
	}
	n = int(binary.LittleEndian.Uint16(buf[1:3])) + 1
	if n < hs {
		return 0, false
	}
	tlvLen := int(binary.LittleEndian.Uint16(buf[hs-2 : hs]))
	if hs+tlvLen != n {
		return 0, false
	}
	return n, true
}
