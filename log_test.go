package stablestore

import (
	"errors"
	"fmt"
	"testing"
)

func TestLog_AppendGet(t *testing.T) {
	l := must(NewLog[Text](setup(t), 0, 1))
	deepEqual(t, l.IsEmpty(), true)

	const n = 100
	for i := 0; i < n; i++ {
		idx := must(l.Append(Text(fmt.Sprintf("entry-%d", i))))
		deepEqual(t, idx, uint64(i))
	}
	deepEqual(t, l.Len(), uint64(n))
	deepEqual(t, l.IsEmpty(), false)

	for i := uint64(0); i < n; i++ {
		v, found, err := l.Get(i)
		success(t, err)
		if !found || v != Text(fmt.Sprintf("entry-%d", i)) {
			t.Fatalf("Get(%d) = %q, %v", i, v, found)
		}
	}
	_, found, err := l.Get(n)
	success(t, err)
	if found {
		t.Errorf("Get(%d) found an entry", n)
	}
}

func TestLog_EmptyEntries(t *testing.T) {
	l := must(NewLog[Blob](setup(t), 0, 1))
	must(l.Append(nil))
	must(l.Append(Blob("x")))
	must(l.Append(Blob{}))

	entries := all(t, l.Iter())
	deepEqual(t, len(entries), 3)
	deepEqual(t, entries[1], Entry[uint64, Blob]{1, Blob("x")})
	deepEqual(t, len(entries[2].Value), 0)
}

func TestLog_SameRegion(t *testing.T) {
	reg := setup(t)
	_, err := NewLog[Text](reg, 5, 5)
	isErr(t, err, ErrSameRegion)
	deepEqual(t, reg.Bound(), []MemoryID{})
}

func TestLog_RegionInUse(t *testing.T) {
	reg := setup(t)
	must(NewCell(reg, 1, Uint8(0)))

	_, err := NewLog[Text](reg, 0, 1)
	isErr(t, err, ErrRegionInUse)
	deepEqual(t, reg.Bound(), []MemoryID{1})

	// The index region was released when binding the data region failed.
	must(NewLog[Text](reg, 0, 2))
}

func TestLog_Reopen(t *testing.T) {
	dir := t.TempDir()
	reg := setupDisk(t, dir)
	l := must(NewLog[Uint64](reg, 10, 11))
	for i := Uint64(0); i < 10; i++ {
		must(l.Append(i * i))
	}
	success(t, reg.Close())

	reg = setupDisk(t, dir)
	l = must(NewLog[Uint64](reg, 10, 11))
	deepEqual(t, l.Len(), uint64(10))
	v, found, err := l.Get(9)
	success(t, err)
	if !found || v != 81 {
		t.Errorf("Get(9) = %v, %v", v, found)
	}
	deepEqual(t, must(l.Append(100)), uint64(10))
	deepEqual(t, l.Len(), uint64(11))
}

func TestLog_Cache(t *testing.T) {
	mem := map[MemoryID]*VectorMemory{0: NewVectorMemory(0), 1: NewVectorMemory(0)}
	opt := testOptions(t)
	opt.LogCacheSize = 16
	opt.MemoryProvider = func(id MemoryID) (Memory, error) { return mem[id], nil }

	l := must(NewLog[Text](setupWith(t, opt), 0, 1))
	must(l.Append("first"))
	v, _, err := l.Get(0)
	success(t, err)
	deepEqual(t, v, Text("first"))

	// A cached entry is served without reading the data region again.
	success(t, mem[1].WriteAt([]byte("F"), logDataHeaderSize))
	v, _, err = l.Get(0)
	success(t, err)
	deepEqual(t, v, Text("first"))

	// Uncached logs verify the checksum.
	opt.LogCacheSize = 0
	l = must(NewLog[Text](setupWith(t, opt), 0, 1))
	_, _, err = l.Get(0)
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("Get of corrupted entry: %v", err)
	}
}

func TestLog_OutOfMemory(t *testing.T) {
	opt := testOptions(t)
	opt.MaxPages = 1
	l := must(NewLog[Blob](setupWith(t, opt), 0, 1))

	must(l.Append(make(Blob, PageSize/2)))
	_, err := l.Append(make(Blob, PageSize/2))
	isErr(t, err, ErrOutOfMemory)
	deepEqual(t, l.Len(), uint64(1))

	must(l.Append(make(Blob, 100)))
	deepEqual(t, l.Len(), uint64(2))
	v, _, err := l.Get(1)
	success(t, err)
	deepEqual(t, len(v), 100)
}

func TestLog_Iter(t *testing.T) {
	l := must(NewLog[Uint32](setup(t), 0, 1))
	const n = 3*scanBatchSize + 7
	for i := Uint32(0); i < n; i++ {
		must(l.Append(i))
	}
	c := l.Iter()
	var count uint64
	for c.Next() {
		e := c.Item()
		if e.Key != count || e.Value != Uint32(count) {
			t.Fatalf("entry %d = %v", count, e)
		}
		count++
		if count == n {
			must(l.Append(n))
		}
	}
	success(t, c.Err())
	deepEqual(t, count, uint64(n+1))
}

func TestLog_Closed(t *testing.T) {
	reg := setup(t)
	l := must(NewLog[Text](reg, 0, 1))
	must(l.Append("a"))
	success(t, reg.Close())

	_, err := l.Append("b")
	isErr(t, err, ErrClosed)
	_, _, err = l.Get(0)
	isErr(t, err, ErrClosed)
}

func TestLog_AppendUnencodable(t *testing.T) {
	l := must(NewLog[MsgPack[any]](setup(t), 0, 1))
	must(l.Append(MsgPack[any]{"a"}))
	if _, err := l.Append(MsgPack[any]{func() {}}); err == nil {
		t.Fatalf("Append of a func succeeded")
	}
	deepEqual(t, l.Len(), uint64(1))
	deepEqual(t, must(l.Append(MsgPack[any]{"b"})), uint64(1))
}

func TestLog_CorruptRecordLength(t *testing.T) {
	mem := map[MemoryID]*VectorMemory{0: NewVectorMemory(0), 1: NewVectorMemory(0)}
	opt := testOptions(t)
	opt.MemoryProvider = func(id MemoryID) (Memory, error) { return mem[id], nil }

	l := must(NewLog[Text](setupWith(t, opt), 0, 1))
	must(l.Append("first"))
	must(l.Append("second"))

	success(t, mem[0].WriteAt([]byte{0xFF, 0xFF, 0xFF, 0xFF}, logIndexHeaderSize+8))
	l = must(NewLog[Text](setupWith(t, opt), 0, 1))
	_, _, err := l.Get(0)
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("Get with an overlong record: %v", err)
	}
	v, _, err := l.Get(1)
	success(t, err)
	deepEqual(t, v, Text("second"))
}

// aliasing keeps the slice it is decoded from.
type aliasing []byte

func (a aliasing) MarshalStable(buf []byte) []byte    { return append(buf, a...) }
func (a *aliasing) UnmarshalStable(data []byte) error { *a = data; return nil }

func TestLog_CachedEntriesAreCopied(t *testing.T) {
	opt := testOptions(t)
	opt.LogCacheSize = 4
	l := must(NewLog[aliasing](setupWith(t, opt), 0, 1))
	must(l.Append(aliasing("abc")))

	for range 3 {
		v, found, err := l.Get(0)
		success(t, err)
		if !found || string(v) != "abc" {
			t.Fatalf("Get(0) = %q, %v", v, found)
		}
		v[0] = 'X'
	}
	entries := all(t, l.Iter())
	deepEqual(t, string(entries[0].Value), "abc")
}
