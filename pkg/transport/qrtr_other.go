//go:build !linux || 386

package transport

import "fmt"

// DialQRTR fails where AF_QIPCRTR sockets cannot be reached.
func DialQRTR() (QRTRSocket, error) {
	return nil, fmt.Errorf("qrtr socket: %w", ErrUnsupportedPlatform)
}
