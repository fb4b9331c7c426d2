package stablestore

import (
	"fmt"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/andreyvit/stablestore/mmap"
)

func TestVectorMemory(t *testing.T) {
	m := NewVectorMemory(2)
	deepEqual(t, m.Size(), uint64(0))
	isErr(t, m.WriteAt([]byte{1}, 0), ErrOutOfBounds)

	success(t, m.Grow(1))
	deepEqual(t, m.Size(), uint64(1))
	success(t, m.WriteAt([]byte{1, 2, 3}, PageSize-3))
	buf := make([]byte, 3)
	success(t, m.ReadAt(buf, PageSize-3))
	deepEqual(t, buf, []byte{1, 2, 3})
	isErr(t, m.ReadAt(buf, PageSize-2), ErrOutOfBounds)
	isErr(t, m.ReadAt(buf, ^uint64(0)), ErrOutOfBounds)

	isErr(t, m.Grow(2), ErrOutOfMemory)
	deepEqual(t, m.Size(), uint64(1))
	success(t, m.Grow(1))
	success(t, m.ReadAt(buf, PageSize-3))
	deepEqual(t, buf, []byte{1, 2, 3})
}

func TestEnsureMemorySize(t *testing.T) {
	m := NewVectorMemory(0)
	success(t, ensureMemorySize(m, 0))
	deepEqual(t, m.Size(), uint64(0))
	success(t, ensureMemorySize(m, 1))
	deepEqual(t, m.Size(), uint64(1))
	success(t, ensureMemorySize(m, PageSize))
	deepEqual(t, m.Size(), uint64(1))
	success(t, ensureMemorySize(m, 2*PageSize+1))
	deepEqual(t, m.Size(), uint64(3))
}

func TestFileMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.mem")
	m := must(openFileMemory(path, 2))
	deepEqual(t, m.Size(), uint64(0))
	success(t, m.Grow(1))
	success(t, m.WriteAt([]byte("persist"), 100))
	success(t, m.Sync())
	isErr(t, m.Grow(2), ErrOutOfMemory)
	success(t, m.Close())

	m = must(openFileMemory(path, 2))
	defer m.Close()
	deepEqual(t, m.Size(), uint64(1))
	buf := make([]byte, 7)
	success(t, m.ReadAt(buf, 100))
	deepEqual(t, string(buf), "persist")
	isErr(t, m.WriteAt(buf, PageSize), ErrOutOfBounds)
}

func TestIsExhaustion(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{mmap.ErrTooLarge, true},
		{fmt.Errorf("truncate: %w", syscall.ENOSPC), true},
		{fmt.Errorf("mmap region-001.mem: %w", syscall.ENOMEM), true},
		{fmt.Errorf("truncate: %w", syscall.EACCES), false},
		{ErrClosed, false},
	}
	for _, tt := range tests {
		if got := isExhaustion(tt.err); got != tt.want {
			t.Errorf("isExhaustion(%v) = %v, wanted %v", tt.err, got, tt.want)
		}
	}
}
