package log

import (
	"github.com/qmi-protocol/qmi-go/pkg/cursor"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// MaxFrameData is the number of frame bytes kept in a FrameEvent.
const MaxFrameData = 512

// NewFrameEvent describes a raw frame. The bytes are copied, truncated to
// MaxFrameData, and withheld entirely unless showPersonal is set.
func NewFrameEvent(frame []byte, showPersonal bool) *FrameEvent {
	ev := &FrameEvent{Size: len(frame)}
	if !showPersonal {
		return ev
	}
	n := len(frame)
	if n > MaxFrameData {
		n = MaxFrameData
		ev.Truncated = true
	}
	ev.Data = append([]byte(nil), frame[:n]...)
	return ev
}

// NewMessageEvent describes a decoded message. TLV values other than the
// result are withheld unless showPersonal is set.
func NewMessageEvent(msg *wire.Message, showPersonal bool) *MessageEvent {
	ev := &MessageEvent{
		Type:          messageType(msg.Kind()),
		Service:       uint8(msg.Service()),
		ClientID:      msg.ClientID(),
		TransactionID: msg.TransactionID(),
		MessageID:     msg.MessageID(),
		Name:          msg.Name(),
	}
	for _, tlv := range msg.TLVs() {
		te := TLVEvent{Type: tlv.Type, Length: len(tlv.Value)}
		isResult := msg.IsResponse() && tlv.Type == wire.TLVResult
		if showPersonal || isResult {
			te.Value = tlv.Value
		}
		ev.TLVs = append(ev.TLVs, te)
	}
	if code, ok := resultCode(msg); ok {
		ev.Result = &code
	}
	return ev
}

func resultCode(msg *wire.Message) (uint16, bool) {
	if !msg.IsResponse() {
		return 0, false
	}
	r, err := msg.TLVReader(wire.TLVResult)
	if err != nil {
		return 0, false
	}
	if err := r.Skip(2); err != nil {
		return 0, false
	}
	code, err := r.ReadU16(cursor.LittleEndian)
	if err != nil {
		return 0, false
	}
	return code, true
}

func messageType(k wire.Kind) MessageType {
	switch k {
	case wire.KindResponse:
		return MessageTypeResponse
	case wire.KindIndication:
		return MessageTypeIndication
	default:
		return MessageTypeRequest
	}
}
