package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero-valued fields match everything.
type Filter struct {
	PortID    string
	Direction *Direction
	Layer     *Layer
	Category  *Category

	// TimeStart and TimeEnd bound the event timestamp to [start, end).
	TimeStart *time.Time
	TimeEnd   *time.Time

	// Service, ClientID and MessageID only match message events.
	Service   *uint8
	ClientID  *uint8
	MessageID *uint16
}

func (f *Filter) matches(event Event) bool {
	if f.PortID != "" && event.PortID != f.PortID {
		return false
	}
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.Layer != nil && event.Layer != *f.Layer {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	if f.Service == nil && f.ClientID == nil && f.MessageID == nil {
		return true
	}
	m := event.Message
	if m == nil {
		return false
	}
	if f.Service != nil && m.Service != *f.Service {
		return false
	}
	if f.ClientID != nil && m.ClientID != *f.ClientID {
		return false
	}
	if f.MessageID != nil && m.MessageID != *f.MessageID {
		return false
	}
	return true
}

// ErrUnsupportedFormat is returned for captures written by a newer layout.
var ErrUnsupportedFormat = errors.New("unsupported capture format")

// Reader streams events from a capture file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter

	header *FileHeader
	first  cbor.RawMessage
}

// NewReader opens a capture file and reads every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a capture file and reads events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		file:    f,
		decoder: NewDecoder(f),
		filter:  filter,
	}

	// The first record is either the header or, in captures without one,
	// the first event.
	var raw cbor.RawMessage
	switch err := r.decoder.Decode(&raw); {
	case errors.Is(err, io.EOF):
	case err != nil:
		f.Close()
		return nil, err
	default:
		if h, ok := decodeHeader(raw); ok {
			if h.Version > FormatVersion {
				f.Close()
				return nil, fmt.Errorf("%w: version %d", ErrUnsupportedFormat, h.Version)
			}
			r.header = h
		} else {
			r.first = raw
		}
	}
	return r, nil
}

// Header returns the capture header, or nil for files written without one.
func (r *Reader) Header() *FileHeader {
	return r.header
}

// Next returns the next matching event, or io.EOF at the end of the file.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if r.first != nil {
			err := logDecMode.Unmarshal(r.first, &event)
			r.first = nil
			if err != nil {
				return Event{}, err
			}
		} else if err := r.decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
