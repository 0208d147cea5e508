package transport

import (
	"errors"
	"io"
	"net"
)

// Transport is a byte stream to a QMI device. Reads return whole or partial
// QMUX frames; a FrameReader reassembles them.
type Transport interface {
	io.ReadWriteCloser

	// Name identifies the device, usually its path.
	Name() string
}

var (
	// ErrUnsupportedPlatform is returned when a transport kind is not
	// available on this operating system.
	ErrUnsupportedPlatform = errors.New("transport not supported on this platform")
)

// conn adapts a net.Conn to Transport.
type conn struct {
	net.Conn
	name string
}

func (c *conn) Name() string { return c.name }

// Pipe returns two connected in-memory transports. The first is the host
// side, the second plays the modem. Both report name.
func Pipe(name string) (host, modem Transport) {
	a, b := net.Pipe()
	return &conn{Conn: a, name: name}, &conn{Conn: b, name: name}
}

// FromConn wraps an established network connection.
func FromConn(c net.Conn, name string) Transport {
	return &conn{Conn: c, name: name}
}

var _ Transport = (*conn)(nil)
