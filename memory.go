package stablestore

import (
	"errors"
	"fmt"
	"sync"
	"syscall"

	"github.com/andreyvit/stablestore/mmap"
)

const (
	// PageSize is the unit of memory growth.
	PageSize = 65536

	// DefaultMaxPages caps each linear region at 1 GiB unless Options.MaxPages
	// says otherwise.
	DefaultMaxPages = 16384
)

// Memory is a growable, byte-addressable region. Size and Grow count pages.
// Reads and writes must stay within Size()*PageSize bytes.
type Memory interface {
	Size() uint64
	Grow(pages uint64) error
	ReadAt(p []byte, off uint64) error
	WriteAt(p []byte, off uint64) error
}

type syncer interface {
	Sync() error
}

// VectorMemory is a transient Memory backed by a byte slice.
type VectorMemory struct {
	mu       sync.RWMutex
	data     []byte
	maxPages uint64
}

func NewVectorMemory(maxPages uint64) *VectorMemory {
	if maxPages == 0 {
		maxPages = DefaultMaxPages
	}
	return &VectorMemory{maxPages: maxPages}
}

func (m *VectorMemory) Size() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.data)) / PageSize
}

func (m *VectorMemory) Grow(pages uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := uint64(len(m.data)) / PageSize
	if cur+pages > m.maxPages || cur+pages < cur {
		return fmt.Errorf("growing %d pages by %d exceeds limit of %d: %w", cur, pages, m.maxPages, ErrOutOfMemory)
	}
	m.data = append(m.data, make([]byte, pages*PageSize)...)
	return nil
}

func (m *VectorMemory) ReadAt(p []byte, off uint64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := checkAccess(len(m.data), off, len(p)); err != nil {
		return err
	}
	copy(p, m.data[off:])
	return nil
}

func (m *VectorMemory) WriteAt(p []byte, off uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkAccess(len(m.data), off, len(p)); err != nil {
		return err
	}
	copy(m.data[off:], p)
	return nil
}

func checkAccess(size int, off uint64, n int) error {
	end := off + uint64(n)
	if end < off || end > uint64(size) {
		return fmt.Errorf("%w: [%d, %d) of %d bytes", ErrOutOfBounds, off, end, size)
	}
	return nil
}

// fileMemory is a persistent Memory kept in a memory-mapped file.
type fileMemory struct {
	mu       sync.RWMutex
	r        *mmap.Region
	maxPages uint64
}

func openFileMemory(path string, maxPages uint64) (*fileMemory, error) {
	r, err := mmap.OpenRegion(path, mmap.Writable|mmap.RandomAccess)
	if err != nil {
		return nil, err
	}
	if r.Len()%PageSize != 0 {
		n := r.Len()
		r.Close()
		return nil, fmt.Errorf("%s: size %d is not a multiple of page size", path, n)
	}
	if maxPages == 0 {
		maxPages = DefaultMaxPages
	}
	return &fileMemory{r: r, maxPages: maxPages}, nil
}

func (m *fileMemory) Size() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(m.r.Len()) / PageSize
}

func (m *fileMemory) Grow(pages uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := uint64(m.r.Len()) / PageSize
	if cur+pages > m.maxPages || cur+pages < cur {
		return fmt.Errorf("growing %d pages by %d exceeds limit of %d: %w", cur, pages, m.maxPages, ErrOutOfMemory)
	}
	err := m.r.Grow(int((cur + pages) * PageSize))
	if err != nil {
		if isExhaustion(err) {
			return fmt.Errorf("%s: %v: %w", m.r.Name(), err, ErrOutOfMemory)
		}
		return fmt.Errorf("%s: grow: %w", m.r.Name(), err)
	}
	return nil
}

func (m *fileMemory) ReadAt(p []byte, off uint64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := checkAccess(m.r.Len(), off, len(p)); err != nil {
		return err
	}
	copy(p, m.r.Bytes()[off:])
	return nil
}

func (m *fileMemory) WriteAt(p []byte, off uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkAccess(m.r.Len(), off, len(p)); err != nil {
		return err
	}
	copy(m.r.Bytes()[off:], p)
	return nil
}

func (m *fileMemory) Sync() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.r.Sync()
}

func (m *fileMemory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.r.Close()
}

// isExhaustion reports whether a failed grow ran out of address space,
// memory or disk, as opposed to an I/O or permission failure.
func isExhaustion(err error) bool {
	return errors.Is(err, mmap.ErrTooLarge) || errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.ENOMEM)
}

// ensureMemorySize grows mem so that at least end bytes are addressable.
func ensureMemorySize(mem Memory, end uint64) error {
	need := (end + PageSize - 1) / PageSize
	if have := mem.Size(); have < need {
		return mem.Grow(need - have)
	}
	return nil
}
