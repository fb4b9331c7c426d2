package stablestore

import (
	"errors"
	"testing"
)

type config struct {
	Name    string `msgpack:"name"`
	Retries int    `msgpack:"retries"`
}

func TestCell_InitialAndSet(t *testing.T) {
	reg := setup(t)
	c := must(NewCell(reg, 0, Text("hello")))
	deepEqual(t, c.Get(), Text("hello"))

	success(t, c.Set("world"))
	deepEqual(t, c.Get(), Text("world"))

	success(t, c.Set(""))
	deepEqual(t, c.Get(), Text(""))
}

func TestCell_Reopen(t *testing.T) {
	dir := t.TempDir()
	reg := setupDisk(t, dir)
	c := must(NewCell(reg, 0, MsgPack[config]{config{"a", 1}}))
	success(t, c.Set(MsgPack[config]{config{"b", 2}}))
	success(t, reg.Close())

	reg = setupDisk(t, dir)
	c = must(NewCell(reg, 0, MsgPack[config]{config{"ignored", 0}}))
	deepEqual(t, c.Get().V, config{"b", 2})
}

func TestCell_OutOfMemory(t *testing.T) {
	opt := testOptions(t)
	opt.MemoryProvider = func(id MemoryID) (Memory, error) {
		return NewVectorMemory(1), nil
	}
	reg := setupWith(t, opt)

	c := must(NewCell(reg, 0, Blob("small")))
	err := c.Set(make(Blob, PageSize))
	isErr(t, err, ErrOutOfMemory)
	var re *RegionError
	if !errors.As(err, &re) || re.Region != 0 {
		t.Errorf("error = %v, wanted a RegionError for region 0", err)
	}
	deepEqual(t, c.Get(), Blob("small"))

	success(t, c.Set(make(Blob, PageSize-cellHeaderSize)))
	deepEqual(t, len(c.Get()), PageSize-cellHeaderSize)
}

func TestCell_Corruption(t *testing.T) {
	mem := NewVectorMemory(0)
	opt := testOptions(t)
	opt.MemoryProvider = func(id MemoryID) (Memory, error) { return mem, nil }

	c := must(NewCell(setupWith(t, opt), 0, Text("intact")))
	deepEqual(t, c.Get(), Text("intact"))

	// Another registry over the same memory sees the stored value.
	c = must(NewCell(setupWith(t, opt), 0, Text("other")))
	deepEqual(t, c.Get(), Text("intact"))

	success(t, mem.WriteAt([]byte("X"), cellHeaderSize))
	_, err := NewCell(setupWith(t, opt), 0, Text("other"))
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("NewCell over corrupted memory: %v", err)
	}

	success(t, mem.WriteAt([]byte("ABC"), 0))
	_, err = NewCell(setupWith(t, opt), 0, Text("other"))
	if !errors.As(err, &de) {
		t.Fatalf("NewCell over bad magic: %v", err)
	}
}

func TestCell_FailedBindIsReleased(t *testing.T) {
	mem := NewVectorMemory(0)
	success(t, mem.Grow(1))
	success(t, mem.WriteAt([]byte("garbage!garbage!"), 0))

	opt := testOptions(t)
	opt.MemoryProvider = func(id MemoryID) (Memory, error) { return mem, nil }
	reg := setupWith(t, opt)

	_, err := NewCell(reg, 3, Text(""))
	if err == nil {
		t.Fatalf("NewCell over garbage succeeded")
	}
	deepEqual(t, reg.Bound(), []MemoryID{})

	success(t, mem.WriteAt(make([]byte, cellHeaderSize), 0))
	c := must(NewCell(reg, 3, Text("fresh")))
	deepEqual(t, c.Get(), Text("fresh"))
	deepEqual(t, reg.Bound(), []MemoryID{3})
}

func TestCell_Closed(t *testing.T) {
	reg := setup(t)
	c := must(NewCell(reg, 0, Uint64(1)))
	success(t, reg.Close())
	isErr(t, c.Set(2), ErrClosed)
	deepEqual(t, c.Get(), Uint64(1))
}

func TestCell_SetUnencodable(t *testing.T) {
	c := must(NewCell(setup(t), 0, MsgPack[any]{"ok"}))
	if err := c.Set(MsgPack[any]{make(chan int)}); err == nil {
		t.Fatalf("Set of a channel succeeded")
	}
	deepEqual(t, c.Get(), MsgPack[any]{"ok"})

	_, err := NewCell(setup(t), 0, MsgPack[any]{make(chan int)})
	if err == nil {
		t.Fatalf("NewCell with an unencodable initial value succeeded")
	}
}

func TestCell_CorruptLength(t *testing.T) {
	mem := NewVectorMemory(0)
	opt := testOptions(t)
	opt.MemoryProvider = func(id MemoryID) (Memory, error) { return mem, nil }
	must(NewCell(setupWith(t, opt), 0, Text("intact")))

	success(t, mem.WriteAt([]byte{0xFF, 0xFF, 0xFF, 0x7F}, 4))
	_, err := NewCell(setupWith(t, opt), 0, Text("other"))
	var de *DataError
	if !errors.As(err, &de) || de.Off != 4 {
		t.Fatalf("NewCell over an overlong header: %v", err)
	}
}
