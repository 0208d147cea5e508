//go:build !linux

package transport

import (
	"fmt"
	"os"
	"os/exec"
)

// File is a QMI character device. Only Linux exposes them.
type File struct {
	*os.File
	path string
}

// OpenFile always fails outside Linux.
func OpenFile(path string) (*File, error) {
	return nil, fmt.Errorf("open %s: %w", path, ErrUnsupportedPlatform)
}

// Name returns the device path.
func (f *File) Name() string { return f.path }

var _ Transport = (*File)(nil)

func detach(*exec.Cmd) {}
