package stablestore

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Cell region layout: cellHeader, then the encoded value.
const (
	cellHeaderSize       = 16
	cellVersion    uint8 = 1
)

var cellMagic = [3]byte{'S', 'C', 'L'}

type cellHeader struct {
	Magic    [3]byte
	Version  uint8
	Length   uint32
	Checksum uint64
}

// Cell holds a single value in its own memory region.
type Cell[T any, PT Storable[T]] struct {
	mu    sync.Mutex
	reg   *Registry
	id    MemoryID
	mem   Memory
	value T
}

// NewCell binds region id to a Cell. If the region already holds a value,
// that value is loaded; otherwise initial is stored.
func NewCell[T any, PT Storable[T]](reg *Registry, id MemoryID, initial T) (*Cell[T, PT], error) {
	if _, err := reg.bind(id, regionSpec{Kind: kindCell}); err != nil {
		return nil, err
	}
	mem, err := reg.memory(id)
	if err != nil {
		reg.unbind(id)
		return nil, err
	}
	c := &Cell[T, PT]{reg: reg, id: id, mem: mem}

	var fresh bool
	err = reg.useMemory(func() error {
		var err error
		fresh, err = c.load()
		return err
	})
	if err == nil && fresh {
		err = c.Set(initial)
	}
	if err != nil {
		reg.unbind(id)
		return nil, err
	}
	reg.logDebug("stablestore: cell ready", slog.Int("region", int(id)), slog.Bool("fresh", fresh))
	return c, nil
}

// load reads the stored value, reporting fresh = true if there is none.
func (c *Cell[T, PT]) load() (fresh bool, err error) {
	if c.mem.Size() == 0 {
		return true, nil
	}
	var hbuf [cellHeaderSize]byte
	if err := c.mem.ReadAt(hbuf[:], 0); err != nil {
		return false, err
	}
	if hbuf == ([cellHeaderSize]byte{}) {
		return true, nil
	}

	var h cellHeader
	if _, err := binary.Decode(hbuf[:], binary.LittleEndian, &h); err != nil {
		return false, dataErrf(hbuf[:], 0, err, "cell %d: invalid header", c.id)
	}
	if h.Magic != cellMagic {
		return false, dataErrf(hbuf[:], 0, nil, "cell %d: bad magic", c.id)
	}
	if h.Version > cellVersion {
		return false, dataErrf(hbuf[:], 3, nil, "cell %d: unsupported version %d", c.id, h.Version)
	}

	if end := cellHeaderSize + uint64(h.Length); end > c.mem.Size()*PageSize {
		return false, dataErrf(hbuf[:], 4, nil, "cell %d: value of %d bytes overruns the region", c.id, h.Length)
	}
	data := make([]byte, h.Length)
	if err := c.mem.ReadAt(data, cellHeaderSize); err != nil {
		return false, err
	}
	if sum := xxhash.Sum64(data); sum != h.Checksum {
		return false, dataErrf(data, 0, nil, "cell %d: checksum mismatch (%016x, wanted %016x)", c.id, sum, h.Checksum)
	}
	c.value, err = decodeStable[T, PT](data)
	return false, err
}

// Get returns the current value.
func (c *Cell[T, PT]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set replaces the value. It fails with ErrOutOfMemory if the region cannot
// grow to fit the new encoding, in which case the old value is kept.
func (c *Cell[T, PT]) Set(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := encodeStable[T, PT](nil, &v)
	if err != nil {
		return err
	}
	if uint64(len(data)) > math.MaxUint32 {
		return &CapacityError{What: "cell value", Size: len(data), Max: math.MaxUint32}
	}

	h := cellHeader{
		Magic:    cellMagic,
		Version:  cellVersion,
		Length:   uint32(len(data)),
		Checksum: xxhash.Sum64(data),
	}
	var hbuf [cellHeaderSize]byte
	if _, err := binary.Encode(hbuf[:], binary.LittleEndian, h); err != nil {
		panic(err)
	}

	err = c.reg.useMemory(func() error {
		if err := ensureMemorySize(c.mem, cellHeaderSize+uint64(len(data))); err != nil {
			return regionErrf(c.id, kindCell, nil, err, "cannot fit %d bytes", len(data))
		}
		if err := c.mem.WriteAt(data, cellHeaderSize); err != nil {
			return err
		}
		if err := c.mem.WriteAt(hbuf[:], 0); err != nil {
			return err
		}
		return c.reg.syncMemory(c.mem)
	})
	if err != nil {
		return err
	}
	c.value = v
	return nil
}
