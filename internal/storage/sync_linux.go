//go:build linux

package storage

import (
	"os"

	"golang.org/x/sys/unix"
)

// syncData flushes file data without forcing a metadata-only update.
func syncData(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
