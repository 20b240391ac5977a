//go:build linux

package file

import (
	"os"

	"golang.org/x/sys/unix"
)

// Inputs are read front to back exactly once.
func adviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_WILLNEED)
}
