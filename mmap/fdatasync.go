package mmap

import "os"

// Fdatasync flushes the data of f, and of mapping if the platform can sync
// mapped pages directly, without necessarily flushing file metadata.
//
// A failed Fdatasync leaves the on-disk state unknown: the kernel may have
// already marked the dirty pages clean. Callers should treat the file as
// damaged rather than retry.
func Fdatasync(f *os.File, mapping []byte) error {
	return fdatasync(f, mapping)
}
