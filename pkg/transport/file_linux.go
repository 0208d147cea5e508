package transport

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// File is a QMI character device such as /dev/cdc-wdm0.
type File struct {
	*os.File
	path string
}

// OpenFile opens a QMI character device for exclusive read/write access.
// The device must not become the controlling terminal.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_EXCL|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &File{File: f, path: path}, nil
}

// Name returns the device path.
func (f *File) Name() string { return f.path }

var _ Transport = (*File)(nil)

// detach puts a spawned proxy in its own process group so signals sent to
// ours do not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
