package cursor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Endian selects the byte order of a multi-byte value on the wire.
type Endian uint8

const (
	// LittleEndian stores the least significant byte first. QMI uses it for
	// every header and TLV length field.
	LittleEndian Endian = iota

	// BigEndian stores the most significant byte first.
	BigEndian
)

// String returns the endianness name.
func (e Endian) String() string {
	switch e {
	case LittleEndian:
		return "little-endian"
	case BigEndian:
		return "big-endian"
	default:
		return "unknown"
	}
}

func (e Endian) order() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Cursor errors.
var (
	// ErrShortBuffer indicates fewer bytes remain than the operation needs.
	ErrShortBuffer = errors.New("short buffer")

	// ErrOverflow indicates a write would exceed the writer's capacity limit.
	ErrOverflow = errors.New("buffer overflow")

	// ErrInvalidSize indicates an unsupported width or length prefix.
	ErrInvalidSize = errors.New("invalid size")

	// ErrInvalidLength indicates a fixed-size string of the wrong length.
	ErrInvalidLength = errors.New("invalid string length")
)

// Reader reads values from the front of a byte buffer.
type Reader struct {
	buf []byte
	off int
}

// NewReader creates a reader over b. The reader does not copy b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.off
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.off
}

// Remaining returns the unread bytes without consuming them.
func (r *Reader) Remaining() []byte {
	return r.buf[r.off:]
}

// next consumes n bytes, or fails without advancing.
func (r *Reader) next(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrInvalidSize, n)
	}
	if r.Len() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, n, r.Len())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	_, err := r.next(n)
	return err
}

// ReadBytes returns a copy of the next n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.next(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadU8 reads an unsigned byte.
func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadI8 reads a signed byte.
func (r *Reader) ReadI8() (int8, error) {
	v, err := r.ReadU8()
	return int8(v), err
}

// ReadU16 reads a 16-bit unsigned integer.
func (r *Reader) ReadU16(e Endian) (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return e.order().Uint16(b), nil
}

// ReadI16 reads a 16-bit signed integer.
func (r *Reader) ReadI16(e Endian) (int16, error) {
	v, err := r.ReadU16(e)
	return int16(v), err
}

// ReadU32 reads a 32-bit unsigned integer.
func (r *Reader) ReadU32(e Endian) (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return e.order().Uint32(b), nil
}

// ReadI32 reads a 32-bit signed integer.
func (r *Reader) ReadI32(e Endian) (int32, error) {
	v, err := r.ReadU32(e)
	return int32(v), err
}

// ReadU64 reads a 64-bit unsigned integer.
func (r *Reader) ReadU64(e Endian) (uint64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return e.order().Uint64(b), nil
}

// ReadI64 reads a 64-bit signed integer.
func (r *Reader) ReadI64(e Endian) (int64, error) {
	v, err := r.ReadU64(e)
	return int64(v), err
}

// ReadF32 reads an IEEE 754 single precision float.
func (r *Reader) ReadF32(e Endian) (float32, error) {
	v, err := r.ReadU32(e)
	return math.Float32frombits(v), err
}

// ReadF64 reads an IEEE 754 double precision float.
func (r *Reader) ReadF64(e Endian) (float64, error) {
	v, err := r.ReadU64(e)
	return math.Float64frombits(v), err
}

// ReadSizedUint reads an n-byte unsigned integer (1 <= n <= 8) and
// zero-extends it to 64 bits.
//
// Big endian right-aligns the bytes inside an 8-byte big-endian word, so the
// last byte read is the least significant. Little endian left-aligns them.
func (r *Reader) ReadSizedUint(n int, e Endian) (uint64, error) {
	if n < 1 || n > 8 {
		return 0, fmt.Errorf("%w: sized uint of %d bytes", ErrInvalidSize, n)
	}
	b, err := r.next(n)
	if err != nil {
		return 0, err
	}
	var word [8]byte
	if e == BigEndian {
		copy(word[8-n:], b)
		return binary.BigEndian.Uint64(word[:]), nil
	}
	copy(word[:n], b)
	return binary.LittleEndian.Uint64(word[:]), nil
}

// ReadString reads a string with a length prefix of prefixBits (0, 8 or 16).
//
// With no prefix the string runs to the end of the buffer. If maxSize is
// non-zero the returned string is truncated to maxSize bytes, but the cursor
// still advances past the whole encoded string.
func (r *Reader) ReadString(prefixBits int, maxSize int) (string, error) {
	start := r.off

	var n int
	switch prefixBits {
	case 0:
		n = r.Len()
	case 8:
		v, err := r.ReadU8()
		if err != nil {
			return "", err
		}
		n = int(v)
	case 16:
		v, err := r.ReadU16(LittleEndian)
		if err != nil {
			return "", err
		}
		n = int(v)
	default:
		return "", fmt.Errorf("%w: string length prefix of %d bits", ErrInvalidSize, prefixBits)
	}

	b, err := r.next(n)
	if err != nil {
		r.off = start
		return "", err
	}
	if maxSize > 0 && len(b) > maxSize {
		b = b[:maxSize]
	}
	return string(b), nil
}

// ReadFixedString reads exactly n bytes as a string. Padding is not stripped.
func (r *Reader) ReadFixedString(n int) (string, error) {
	b, err := r.next(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
