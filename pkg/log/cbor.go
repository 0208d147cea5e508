package log

import (
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FormatVersion is the capture file layout written by this package.
const FormatVersion = 1

// fileHeaderTag is the CBOR tag of the record that opens a capture file
// ("QMI" in ASCII).
const fileHeaderTag = 0x514D49

// FileHeader opens every capture file written by FileLogger.
type FileHeader struct {
	Version uint8     `cbor:"1,keyasint"`
	Created time.Time `cbor:"2,keyasint"`

	// Host is the machine the capture was taken on.
	Host string `cbor:"3,keyasint,omitempty"`

	// MaxFrameData is the FrameEvent truncation limit in effect.
	MaxFrameData int `cbor:"4,keyasint"`
}

var (
	logEncMode cbor.EncMode
	logDecMode cbor.DecMode
)

func init() {
	tags := cbor.NewTagSet()
	err := tags.Add(
		cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired},
		reflect.TypeOf(FileHeader{}),
		fileHeaderTag,
	)
	if err != nil {
		panic(fmt.Sprintf("qmi log: cbor header tag: %v", err))
	}

	// Frames and TLV values are hinted as base16 so cbor diagnostic tools
	// print them the way QMI dumps do.
	encOpts := cbor.EncOptions{
		Sort:                 cbor.SortCoreDeterministic,
		IndefLength:          cbor.IndefLengthForbidden,
		NilContainers:        cbor.NilContainerAsNull,
		Time:                 cbor.TimeRFC3339Nano,
		TimeTag:              cbor.EncTagRequired,
		ByteSliceLaterFormat: cbor.ByteSliceLaterFormatBase16,
	}
	logEncMode, err = encOpts.EncModeWithTags(tags)
	if err != nil {
		panic(fmt.Sprintf("qmi log: cbor encoder mode: %v", err))
	}

	// Captures may be produced by newer versions with extra keys.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	logDecMode, err = decOpts.DecModeWithTags(tags)
	if err != nil {
		panic(fmt.Sprintf("qmi log: cbor decoder mode: %v", err))
	}
}

// EncodeEvent encodes an Event to CBOR.
func EncodeEvent(event Event) ([]byte, error) {
	return logEncMode.Marshal(event)
}

// DecodeEvent decodes one CBOR-encoded Event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := logDecMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// decodeHeader reports whether data is a tagged FileHeader.
func decodeHeader(data []byte) (*FileHeader, bool) {
	var h FileHeader
	if err := logDecMode.Unmarshal(data, &h); err != nil {
		return nil, false
	}
	return &h, true
}

// NewEncoder returns a streaming event encoder writing to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return logEncMode.NewEncoder(w)
}

// NewDecoder returns a streaming event decoder reading from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return logDecMode.NewDecoder(r)
}
