package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qmi-protocol/qmi-go/pkg/log"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// Framing constants.
const (
	// MinFrameSize is the smallest frame that can hold a QMUX header and a
	// CTL message header.
	MinFrameSize = wire.QMUXHeaderSize + 6

	readBufferSize = 4096
)

// Framing errors.
var (
	// ErrFrameTruncated indicates the stream ended inside a frame.
	ErrFrameTruncated = errors.New("frame truncated")

	// ErrInvalidFrame indicates a frame whose marker or length is wrong.
	ErrInvalidFrame = errors.New("invalid QMUX frame")
)

// FramerConfig configures frame capture and diagnostics.
type FramerConfig struct {
	// Logger receives resynchronization warnings. Nil uses slog.Default().
	Logger *slog.Logger

	// Capture receives a FrameEvent per frame. Nil disables capture.
	Capture log.Logger

	PortID string
	Device string

	// ShowPersonalInfo keeps raw bytes in captured frame events.
	ShowPersonalInfo bool
}

func (c *FramerConfig) event(dir log.Direction, frame []byte) log.Event {
	return log.Event{
		Timestamp: time.Now(),
		PortID:    c.PortID,
		Device:    c.Device,
		Direction: dir,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Frame:     log.NewFrameEvent(frame, c.ShowPersonalInfo),
	}
}

// FrameWriter writes QMUX frames, one Write call per frame.
type FrameWriter struct {
	mu  sync.Mutex
	w   io.Writer
	cfg FramerConfig
}

// NewFrameWriter creates a frame writer.
func NewFrameWriter(w io.Writer, cfg FramerConfig) *FrameWriter {
	return &FrameWriter{w: w, cfg: cfg}
}

// WriteFrame writes a complete frame. Safe for concurrent use.
func (fw *FrameWriter) WriteFrame(frame []byte) error {
	n, ok := wire.FrameLength(frame)
	if !ok || n != len(frame) || frame[0] != wire.Marker {
		return fmt.Errorf("%w: %d bytes", ErrInvalidFrame, len(frame))
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if fw.cfg.Capture != nil {
		fw.cfg.Capture.Log(fw.cfg.event(log.DirectionOut, frame))
	}
	return nil
}

// FrameReader reads QMUX frames from a byte stream. Bytes before a frame
// marker, and markers whose header does not add up, are skipped.
type FrameReader struct {
	r       *bufio.Reader
	cfg     FramerConfig
	logger  *slog.Logger
	skipped atomic.Uint64
}

// NewFrameReader creates a frame reader.
func NewFrameReader(r io.Reader, cfg FramerConfig) *FrameReader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameReader{
		r:      bufio.NewReaderSize(r, readBufferSize),
		cfg:    cfg,
		logger: logger,
	}
}

// ReadFrame returns the next frame, marker included. It returns io.EOF
// when the stream ends cleanly between frames.
//
// A marker only starts a frame when the header after it is consistent;
// otherwise the marker byte is skipped and scanning resumes right after it,
// so a stray 0x01 never swallows the frames that follow.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	var skipped int
	for {
		b, err := fr.r.Peek(1)
		if err != nil {
			return nil, fr.endOfStream(err, skipped)
		}
		if b[0] != wire.Marker {
			fr.r.Discard(1)
			skipped++
			continue
		}

		n, err := fr.peekHeader()
		if err != nil {
			if skipped > 0 {
				fr.resynced(skipped)
			}
			return nil, fr.truncated(err)
		}
		if n == 0 {
			fr.r.Discard(1)
			skipped++
			continue
		}

		frame := make([]byte, n)
		if _, err := io.ReadFull(fr.r, frame); err != nil {
			if skipped > 0 {
				fr.resynced(skipped)
			}
			return nil, fr.truncated(err)
		}

		if skipped > 0 {
			fr.resynced(skipped)
		}
		if fr.cfg.Capture != nil {
			fr.cfg.Capture.Log(fr.cfg.event(log.DirectionIn, frame))
		}
		return frame, nil
	}
}

// peekHeader looks at the headers after a marker without consuming them.
// It returns the frame length, or zero when the header is implausible.
func (fr *FrameReader) peekHeader() (int, error) {
	hdr, err := fr.r.Peek(wire.QMUXHeaderSize)
	if err != nil {
		return 0, err
	}
	if f := hdr[3]; f != wire.QMUXFlagHost && f != wire.QMUXFlagService {
		return 0, nil
	}
	if total, _ := wire.FrameLength(hdr); total < MinFrameSize {
		return 0, nil
	}
	hdr, err = fr.r.Peek(wire.FrameHeaderSize(wire.Service(hdr[4])))
	if err != nil {
		return 0, err
	}
	n, ok := wire.CheckFrameHeader(hdr)
	if !ok {
		return 0, nil
	}
	return n, nil
}

// Skipped returns the number of bytes discarded while looking for frames.
func (fr *FrameReader) Skipped() uint64 {
	return fr.skipped.Load()
}

func (fr *FrameReader) resynced(n int) {
	fr.skipped.Add(uint64(n))
	fr.logger.Warn("discarded bytes before QMUX frame marker",
		"device", fr.cfg.Device, "bytes", n)
	if fr.cfg.Capture != nil {
		fr.cfg.Capture.Log(log.Event{
			Timestamp: time.Now(),
			PortID:    fr.cfg.PortID,
			Device:    fr.cfg.Device,
			Direction: log.DirectionIn,
			Layer:     log.LayerTransport,
			Category:  log.CategoryError,
			Error: &log.ErrorEventData{
				Layer:   log.LayerTransport,
				Message: fmt.Sprintf("discarded %d bytes", n),
				Context: "resynchronize",
			},
		})
	}
}

func (fr *FrameReader) endOfStream(err error, skipped int) error {
	if skipped > 0 {
		fr.resynced(skipped)
	}
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	return fmt.Errorf("read frame: %w", err)
}

func (fr *FrameReader) truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrFrameTruncated
	}
	return fmt.Errorf("read frame: %w", err)
}

// FrameReadWriter provides QMUX frame I/O.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
}

// Framer combines frame reading and writing over one stream.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a framer for rw.
func NewFramer(rw io.ReadWriter, cfg FramerConfig) *Framer {
	return &Framer{
		FrameReader: NewFrameReader(rw, cfg),
		FrameWriter: NewFrameWriter(rw, cfg),
	}
}

var _ FrameReadWriter = (*Framer)(nil)
