//go:build linux && !386

package transport

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// sockaddrQRTR mirrors struct sockaddr_qrtr.
type sockaddrQRTR struct {
	Family uint16
	_      uint16
	Node   uint32
	Port   uint32
}

// qrtrSocket is an AF_QIPCRTR datagram socket. The descriptor is
// non-blocking and owned by an os.File so Close wakes a pending RecvFrom.
type qrtrSocket struct {
	f  *os.File
	rc syscall.RawConn
}

// DialQRTR opens an unbound QRTR socket. The kernel assigns a port on the
// first send.
func DialQRTR() (QRTRSocket, error) {
	fd, err := unix.Socket(unix.AF_QIPCRTR, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("qrtr socket: %w", err)
	}
	f := os.NewFile(uintptr(fd), "qrtr")
	rc, err := f.SyscallConn()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("qrtr socket: %w", err)
	}
	return &qrtrSocket{f: f, rc: rc}, nil
}

func (s *qrtrSocket) SendTo(b []byte, node, port uint32) error {
	sa := sockaddrQRTR{Family: unix.AF_QIPCRTR, Node: node, Port: port}
	var p unsafe.Pointer
	if len(b) > 0 {
		p = unsafe.Pointer(&b[0])
	}
	var errno syscall.Errno
	err := s.rc.Write(func(fd uintptr) bool {
		_, _, errno = unix.Syscall6(unix.SYS_SENDTO, fd, uintptr(p), uintptr(len(b)), 0,
			uintptr(unsafe.Pointer(&sa)), unsafe.Sizeof(sa))
		return errno != unix.EAGAIN
	})
	if err != nil {
		return err
	}
	if errno != 0 {
		return fmt.Errorf("qrtr sendto %d:%d: %w", node, port, errno)
	}
	return nil
}

func (s *qrtrSocket) RecvFrom(b []byte) (int, uint32, uint32, error) {
	if len(b) == 0 {
		return 0, 0, 0, fmt.Errorf("qrtr recvfrom: %w", unix.EINVAL)
	}
	var (
		sa    sockaddrQRTR
		n     uintptr
		errno syscall.Errno
	)
	err := s.rc.Read(func(fd uintptr) bool {
		salen := uint32(unsafe.Sizeof(sa))
		n, _, errno = unix.Syscall6(unix.SYS_RECVFROM, fd, uintptr(unsafe.Pointer(&b[0])), uintptr(len(b)), 0,
			uintptr(unsafe.Pointer(&sa)), uintptr(unsafe.Pointer(&salen)))
		return errno != unix.EAGAIN
	})
	if err != nil {
		return 0, 0, 0, err
	}
	if errno != 0 {
		return 0, 0, 0, fmt.Errorf("qrtr recvfrom: %w", errno)
	}
	return int(n), sa.Node, sa.Port, nil
}

func (s *qrtrSocket) LocalAddr() (uint32, uint32, error) {
	var (
		sa    sockaddrQRTR
		errno syscall.Errno
	)
	err := s.rc.Control(func(fd uintptr) {
		salen := uint32(unsafe.Sizeof(sa))
		_, _, errno = unix.Syscall(unix.SYS_GETSOCKNAME, fd,
			uintptr(unsafe.Pointer(&sa)), uintptr(unsafe.Pointer(&salen)))
	})
	if err != nil {
		return 0, 0, err
	}
	if errno != 0 {
		return 0, 0, fmt.Errorf("qrtr getsockname: %w", errno)
	}
	return sa.Node, sa.Port, nil
}

func (s *qrtrSocket) Close() error { return s.f.Close() }
