package cursor

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
)

// Writer appends values to a byte buffer.
//
// A Writer with a non-zero limit refuses any write that would grow the
// buffer beyond it; the buffer is left untouched in that case.
type Writer struct {
	buf    []byte
	limit  int
	logger *slog.Logger
}

// NewWriter creates a writer with no capacity limit.
func NewWriter() *Writer {
	return &Writer{}
}

// NewLimitedWriter creates a writer that holds at most limit bytes.
func NewLimitedWriter(limit int) *Writer {
	return &Writer{limit: limit}
}

// SetLogger sets the logger used for clamping warnings.
// Pass nil to use slog.Default().
func (w *Writer) SetLogger(logger *slog.Logger) {
	w.logger = logger
}

func (w *Writer) log() *slog.Logger {
	if w.logger != nil {
		return w.logger
	}
	return slog.Default()
}

// Bytes returns the written bytes. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Available returns the remaining capacity, or -1 if the writer is unbounded.
func (w *Writer) Available() int {
	if w.limit == 0 {
		return -1
	}
	return w.limit - len(w.buf)
}

// reserve checks that n more bytes fit and returns the slice to fill.
func (w *Writer) reserve(n int) ([]byte, error) {
	if w.limit > 0 && len(w.buf)+n > w.limit {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrOverflow, n, w.limit-len(w.buf))
	}
	start := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return w.buf[start:], nil
}

// WriteBytes appends b verbatim.
func (w *Writer) WriteBytes(b []byte) error {
	dst, err := w.reserve(len(b))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

// WriteU8 appends an unsigned byte.
func (w *Writer) WriteU8(v uint8) error {
	dst, err := w.reserve(1)
	if err != nil {
		return err
	}
	dst[0] = v
	return nil
}

// WriteI8 appends a signed byte.
func (w *Writer) WriteI8(v int8) error {
	return w.WriteU8(uint8(v))
}

// WriteU16 appends a 16-bit unsigned integer.
func (w *Writer) WriteU16(v uint16, e Endian) error {
	dst, err := w.reserve(2)
	if err != nil {
		return err
	}
	e.order().PutUint16(dst, v)
	return nil
}

// WriteI16 appends a 16-bit signed integer.
func (w *Writer) WriteI16(v int16, e Endian) error {
	return w.WriteU16(uint16(v), e)
}

// WriteU32 appends a 32-bit unsigned integer.
func (w *Writer) WriteU32(v uint32, e Endian) error {
	dst, err := w.reserve(4)
	if err != nil {
		return err
	}
	e.order().PutUint32(dst, v)
	return nil
}

// WriteI32 appends a 32-bit signed integer.
func (w *Writer) WriteI32(v int32, e Endian) error {
	return w.WriteU32(uint32(v), e)
}

// WriteU64 appends a 64-bit unsigned integer.
func (w *Writer) WriteU64(v uint64, e Endian) error {
	dst, err := w.reserve(8)
	if err != nil {
		return err
	}
	e.order().PutUint64(dst, v)
	return nil
}

// WriteI64 appends a 64-bit signed integer.
func (w *Writer) WriteI64(v int64, e Endian) error {
	return w.WriteU64(uint64(v), e)
}

// WriteF32 appends an IEEE 754 single precision float.
func (w *Writer) WriteF32(v float32, e Endian) error {
	return w.WriteU32(math.Float32bits(v), e)
}

// WriteF64 appends an IEEE 754 double precision float.
func (w *Writer) WriteF64(v float64, e Endian) error {
	return w.WriteU64(math.Float64bits(v), e)
}

// WriteSizedUint appends the low n bytes (1 <= n <= 8) of v.
//
// Big endian takes the last n bytes of the 8-byte big-endian encoding of v;
// little endian takes the first n bytes of the little-endian encoding.
func (w *Writer) WriteSizedUint(v uint64, n int, e Endian) error {
	if n < 1 || n > 8 {
		return fmt.Errorf("%w: sized uint of %d bytes", ErrInvalidSize, n)
	}
	var word [8]byte
	dst, err := w.reserve(n)
	if err != nil {
		return err
	}
	if e == BigEndian {
		binary.BigEndian.PutUint64(word[:], v)
		copy(dst, word[8-n:])
		return nil
	}
	binary.LittleEndian.PutUint64(word[:], v)
	copy(dst, word[:n])
	return nil
}

// WriteString appends s with a length prefix of prefixBits (0, 8 or 16).
//
// A non-zero maxSize truncates s before encoding. With an 8-bit prefix,
// strings longer than 255 bytes are clamped to 255 and a warning is logged.
func (w *Writer) WriteString(s string, prefixBits int, maxSize int) error {
	if maxSize > 0 && len(s) > maxSize {
		s = s[:maxSize]
	}

	var prefix int
	switch prefixBits {
	case 0:
	case 8:
		prefix = 1
		if len(s) > math.MaxUint8 {
			w.log().Warn("string too long for 8-bit length prefix, clamping",
				"length", len(s), "max", math.MaxUint8)
			s = s[:math.MaxUint8]
		}
	case 16:
		prefix = 2
		if len(s) > math.MaxUint16 {
			w.log().Warn("string too long for 16-bit length prefix, clamping",
				"length", len(s), "max", math.MaxUint16)
			s = s[:math.MaxUint16]
		}
	default:
		return fmt.Errorf("%w: string length prefix of %d bits", ErrInvalidSize, prefixBits)
	}

	dst, err := w.reserve(prefix + len(s))
	if err != nil {
		return err
	}
	switch prefix {
	case 1:
		dst[0] = uint8(len(s))
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(len(s)))
	}
	copy(dst[prefix:], s)
	return nil
}

// WriteFixedString appends s, which must be exactly n bytes long.
func (w *Writer) WriteFixedString(s string, n int) error {
	if len(s) != n {
		return fmt.Errorf("%w: %d bytes, want %d", ErrInvalidLength, len(s), n)
	}
	return w.WriteBytes([]byte(s))
}
