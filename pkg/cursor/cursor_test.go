package cursor

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFixedWidth(t *testing.T) {
	buf := []byte{
		0x7F,
		0x34, 0x12,
		0x12, 0x34,
		0x78, 0x56, 0x34, 0x12,
		0xEF, 0xCD, 0xAB, 0x89, 0x67, 0x45, 0x23, 0x01,
		0xFF,
	}
	r := NewReader(buf)

	u8, err := r.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x7F), u8)

	u16, err := r.ReadU16(LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)

	u16, err = r.ReadU16(BigEndian)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)

	u32, err := r.ReadU32(LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), u32)

	u64, err := r.ReadU64(LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0123456789ABCDEF), u64)

	i8, err := r.ReadI8()
	require.NoError(t, err)
	assert.Equal(t, int8(-1), i8)

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, len(buf), r.Offset())
}

func TestReadShortBufferDoesNotAdvance(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03})

	_, err := r.ReadU32(LittleEndian)
	assert.True(t, errors.Is(err, ErrShortBuffer))
	assert.Equal(t, 0, r.Offset())

	v, err := r.ReadU16(LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0201), v)

	_, err = r.ReadU16(LittleEndian)
	assert.True(t, errors.Is(err, ErrShortBuffer))
	assert.Equal(t, 2, r.Offset())
}

func TestSignedAndFloatRoundTrip(t *testing.T) {
	for _, e := range []Endian{LittleEndian, BigEndian} {
		t.Run(e.String(), func(t *testing.T) {
			w := NewWriter()
			require.NoError(t, w.WriteI16(-2, e))
			require.NoError(t, w.WriteI32(-70000, e))
			require.NoError(t, w.WriteI64(math.MinInt64, e))
			require.NoError(t, w.WriteF32(3.5, e))
			require.NoError(t, w.WriteF64(-0.125, e))

			r := NewReader(w.Bytes())
			i16, err := r.ReadI16(e)
			require.NoError(t, err)
			assert.Equal(t, int16(-2), i16)
			i32, err := r.ReadI32(e)
			require.NoError(t, err)
			assert.Equal(t, int32(-70000), i32)
			i64, err := r.ReadI64(e)
			require.NoError(t, err)
			assert.Equal(t, int64(math.MinInt64), i64)
			f32, err := r.ReadF32(e)
			require.NoError(t, err)
			assert.Equal(t, float32(3.5), f32)
			f64, err := r.ReadF64(e)
			require.NoError(t, err)
			assert.Equal(t, -0.125, f64)
		})
	}
}

func TestSizedUint(t *testing.T) {
	tests := []struct {
		name  string
		value uint64
		n     int
	}{
		{"one byte", 0xAB, 1},
		{"three bytes", 0x123456, 3},
		{"six bytes", 0x0000A1B2C3D4E5F6, 6},
		{"seven bytes", 0x00112233445566, 7},
		{"eight bytes", 0x0102030405060708, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := NewWriter()
			require.NoError(t, be.WriteSizedUint(tt.value, tt.n, BigEndian))
			le := NewWriter()
			require.NoError(t, le.WriteSizedUint(tt.value, tt.n, LittleEndian))

			require.Len(t, be.Bytes(), tt.n)
			require.Len(t, le.Bytes(), tt.n)

			got, err := NewReader(be.Bytes()).ReadSizedUint(tt.n, BigEndian)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)

			got, err = NewReader(le.Bytes()).ReadSizedUint(tt.n, LittleEndian)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)

			if tt.n > 1 {
				assert.False(t, bytes.Equal(be.Bytes(), le.Bytes()),
					"big and little endian encodings should differ for %d bytes", tt.n)
			}
		})
	}
}

func TestSizedUintAlignment(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03}

	be, err := NewReader(raw).ReadSizedUint(3, BigEndian)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x010203), be)

	le, err := NewReader(raw).ReadSizedUint(3, LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x030201), le)

	w := NewWriter()
	require.NoError(t, w.WriteSizedUint(0xAABBCCDD010203, 3, BigEndian))
	assert.Equal(t, raw, w.Bytes(), "big endian keeps the low-order tail bytes")
}

func TestSizedUintInvalidWidth(t *testing.T) {
	_, err := NewReader(make([]byte, 16)).ReadSizedUint(9, LittleEndian)
	assert.True(t, errors.Is(err, ErrInvalidSize))

	err = NewWriter().WriteSizedUint(1, 0, BigEndian)
	assert.True(t, errors.Is(err, ErrInvalidSize))
}

func TestReadStringTruncationAdvancesFully(t *testing.T) {
	buf := append([]byte{10}, []byte("abcdefghij")...)
	buf = append(buf, 0x5A)
	r := NewReader(buf)

	s, err := r.ReadString(8, 3)
	require.NoError(t, err)
	assert.Equal(t, "abc", s)
	assert.Equal(t, 11, r.Offset(), "prefix byte plus all 10 data bytes consumed")

	trailer, err := r.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x5A), trailer)
}

func TestReadStringPrefixes(t *testing.T) {
	t.Run("16-bit prefix", func(t *testing.T) {
		r := NewReader([]byte{0x03, 0x00, 'q', 'm', 'i'})
		s, err := r.ReadString(16, 0)
		require.NoError(t, err)
		assert.Equal(t, "qmi", s)
		assert.Equal(t, 0, r.Len())
	})

	t.Run("no prefix reads remaining", func(t *testing.T) {
		r := NewReader([]byte("cdc-wdm0"))
		s, err := r.ReadString(0, 0)
		require.NoError(t, err)
		assert.Equal(t, "cdc-wdm0", s)
	})

	t.Run("declared length past end", func(t *testing.T) {
		r := NewReader([]byte{0x05, 'a', 'b'})
		_, err := r.ReadString(8, 0)
		assert.True(t, errors.Is(err, ErrShortBuffer))
		assert.Equal(t, 0, r.Offset())
	})

	t.Run("bad prefix width", func(t *testing.T) {
		_, err := NewReader([]byte{0x01}).ReadString(32, 0)
		assert.True(t, errors.Is(err, ErrInvalidSize))
	})
}

func TestWriteStringRoundTrip(t *testing.T) {
	for _, bits := range []int{8, 16} {
		w := NewWriter()
		require.NoError(t, w.WriteString("359225050039973", bits, 0))
		r := NewReader(w.Bytes())
		s, err := r.ReadString(bits, 0)
		require.NoError(t, err)
		assert.Equal(t, "359225050039973", s)
		assert.Equal(t, 0, r.Len())
	}
}

func TestWriteStringClampsEightBitPrefix(t *testing.T) {
	w := NewWriter()
	long := strings.Repeat("x", 300)

	require.NoError(t, w.WriteString(long, 8, 0))
	assert.Equal(t, 256, w.Len())
	assert.Equal(t, uint8(255), w.Bytes()[0])
}

func TestWriteStringMaxSize(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.WriteString("abcdef", 8, 4))
	assert.Equal(t, []byte{4, 'a', 'b', 'c', 'd'}, w.Bytes())
}

func TestFixedString(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.WriteFixedString("ABCD", 4))
	err := w.WriteFixedString("AB", 4)
	assert.True(t, errors.Is(err, ErrInvalidLength))
	assert.Equal(t, 4, w.Len())

	r := NewReader(append(w.Bytes(), 0x00, 0x00))
	s, err := r.ReadFixedString(4)
	require.NoError(t, err)
	assert.Equal(t, "ABCD", s)
	assert.Equal(t, 2, r.Len())
}

func TestLimitedWriter(t *testing.T) {
	w := NewLimitedWriter(3)

	require.NoError(t, w.WriteU16(0xBEEF, LittleEndian))
	assert.Equal(t, 1, w.Available())

	err := w.WriteU16(0x0102, LittleEndian)
	assert.True(t, errors.Is(err, ErrOverflow))
	assert.Equal(t, 2, w.Len(), "failed write must not modify the buffer")

	err = w.WriteString("ab", 8, 0)
	assert.True(t, errors.Is(err, ErrOverflow))

	require.NoError(t, w.WriteU8(0x01))
	assert.Equal(t, []byte{0xEF, 0xBE, 0x01}, w.Bytes())
	assert.Equal(t, -1, NewWriter().Available())
}
