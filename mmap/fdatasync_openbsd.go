package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

// OpenBSD has no fdatasync; msync covers mapped files.
func fdatasync(f *os.File, mapping []byte) error {
	if mapping == nil {
		return f.Sync()
	}
	return unix.Msync(mapping, unix.MS_SYNC|unix.MS_INVALIDATE)
}
