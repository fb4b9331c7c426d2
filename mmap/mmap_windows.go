package mmap

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// mmap maps the first size bytes of file. Access hints have no Windows
// counterpart and are ignored.
func mmap(file *os.File, size int, opt Options) ([]byte, error) {
	prot, access := uint32(windows.PAGE_READONLY), uint32(windows.FILE_MAP_READ)
	var maxHi, maxLo uint32
	if opt.Has(Writable) {
		if err := file.Truncate(int64(size)); err != nil {
			return nil, fmt.Errorf("mmap: extend %s: %w", file.Name(), err)
		}
		prot, access = windows.PAGE_READWRITE, windows.FILE_MAP_WRITE
		maxHi, maxLo = uint32(uint64(size)>>32), uint32(size)
	}

	mapping, err := windows.CreateFileMapping(windows.Handle(file.Fd()), nil, prot, maxHi, maxLo, nil)
	if err != nil {
		return nil, os.NewSyscallError("CreateFileMapping", err)
	}
	// The view keeps the mapping object alive.
	defer windows.CloseHandle(mapping)

	addr, err := windows.MapViewOfFile(mapping, access, 0, 0, uintptr(size))
	if err != nil {
		return nil, os.NewSyscallError("MapViewOfFile", err)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func munmap(b []byte) error {
	if err := windows.UnmapViewOfFile(uintptr(unsafe.Pointer(unsafe.SliceData(b)))); err != nil {
		return os.NewSyscallError("UnmapViewOfFile", err)
	}
	return nil
}
