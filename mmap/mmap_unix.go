//go:build unix

package mmap

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func mmap(f *os.File, size int, opt Options) ([]byte, error) {
	prot, flags := unix.PROT_READ, unix.MAP_SHARED
	if opt.Has(Writable) {
		prot |= unix.PROT_WRITE
	}
	if opt.Has(Prefault) {
		flags |= mapPopulate
	}

	b, err := unix.Mmap(int(f.Fd()), 0, size, prot, flags)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", f.Name(), err)
	}
	if advice, ok := opt.advice(); ok {
		// Kernels without madvise still map correctly.
		if err := unix.Madvise(b, advice); err != nil && !errors.Is(err, unix.ENOSYS) {
			_ = unix.Munmap(b)
			return nil, fmt.Errorf("madvise %s: %w", f.Name(), err)
		}
	}
	return b, nil
}

func (o Options) advice() (int, bool) {
	switch {
	case o.Has(SequentialAccess):
		return unix.MADV_SEQUENTIAL, true
	case o.Has(RandomAccess):
		return unix.MADV_RANDOM, true
	}
	return 0, false
}

func munmap(b []byte) error {
	return unix.Munmap(b)
}
