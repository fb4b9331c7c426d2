//go:build windows || (unix && !plan9 && !linux && !openbsd)

package mmap

import "os"

// Platforms without a data-only sync get a full fsync.
func fdatasync(f *os.File, _ []byte) error {
	return f.Sync()
}
