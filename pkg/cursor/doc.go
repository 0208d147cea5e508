// Package cursor provides bounds-checked reading and writing of fixed-width
// integers, floats and strings over byte buffers.
//
// A Reader consumes bytes from the front of a buffer. A Writer appends to a
// buffer, optionally bounded by a capacity limit. Neither advances on failure:
// a read that would run past the end of the buffer returns ErrShortBuffer and
// leaves the cursor where it was.
//
// # Sized Integers
//
// ReadSizedUint and WriteSizedUint handle integers narrower than their Go
// representation (for example 3-byte or 6-byte counters). In big-endian mode
// the n bytes are right-aligned in an 8-byte big-endian word before widening,
// so the least significant byte is the last one on the wire. In little-endian
// mode they are left-aligned. For n < 8 the two modes therefore produce
// different wire bytes for the same value.
//
// # Strings
//
// Strings may carry an 8-bit or 16-bit (little-endian) length prefix, or none
// at all, in which case they extend to the end of the buffer. A non-zero
// maxSize clamps the returned string but the cursor always advances by the
// full encoded length. Fixed-size strings are never prefixed or padded.
package cursor
