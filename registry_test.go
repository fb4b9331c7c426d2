package stablestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRegistry_RegionInUse(t *testing.T) {
	reg := setup(t)
	must(NewBTreeMap[Uint8, Uint8](reg, 1))

	_, err := NewBTreeMap[Uint8, Uint8](reg, 1)
	isErr(t, err, ErrRegionInUse)
	_, err = NewCell(reg, 1, Uint8(0))
	isErr(t, err, ErrRegionInUse)
	var re *RegionError
	if !errors.As(err, &re) || re.Region != 1 || re.Kind != kindCell {
		t.Errorf("error = %#v", err)
	}

	must(NewMultimap[Uint8, Uint8, Uint8](reg, 2))
	deepEqual(t, reg.Bound(), []MemoryID{1, 2})
}

func TestRegistry_KindMismatch(t *testing.T) {
	dir := t.TempDir()
	reg := setupDisk(t, dir)
	must(NewMultimap[Uint8, Uint8, Uint8](reg, 1))
	must(NewCell(reg, 2, Uint8(0)))
	success(t, reg.Close())

	reg = setupDisk(t, dir)
	_, err := NewBTreeMap[Uint8, Uint8](reg, 1)
	isErr(t, err, ErrKindMismatch)
	_, err = NewLog[Uint8](reg, 2, 3)
	isErr(t, err, ErrKindMismatch)
	deepEqual(t, reg.Bound(), []MemoryID{})

	must(NewMultimap[Uint8, Uint8, Uint8](reg, 1))
	must(NewCell(reg, 2, Uint8(0)))
}

func TestRegistry_LayoutMismatch(t *testing.T) {
	dir := t.TempDir()
	reg := setupDisk(t, dir)
	must(NewMultimap[short, Uint8, Uint8](reg, 1))
	success(t, reg.Close())

	reg = setupDisk(t, dir)
	_, err := NewMultimap[wide, Uint8, Uint8](reg, 1)
	isErr(t, err, ErrLayoutMismatch)

	// Same prefix width, different bounds: allowed.
	must(NewMultimap[Principal, Uint16, Uint8](reg, 1))
}

func TestRegistry_Closed(t *testing.T) {
	reg := setup(t)
	success(t, reg.Close())
	success(t, reg.Close())

	_, err := NewBTreeMap[Uint8, Uint8](reg, 1)
	isErr(t, err, ErrClosed)
	_, err = NewCell(reg, 2, Uint8(0))
	isErr(t, err, ErrClosed)
	_, err = reg.Regions()
	isErr(t, err, ErrClosed)
}

func TestRegistry_IdentityPersists(t *testing.T) {
	dir := t.TempDir()
	reg := setupDisk(t, dir)
	id := reg.ID()
	if reg.Bolt() == nil {
		t.Fatalf("Bolt() = nil for a persistent registry")
	}
	success(t, reg.Close())

	reg = setupDisk(t, dir)
	deepEqual(t, reg.ID(), id)

	other := setup(t)
	if other.ID() == id {
		t.Fatalf("two stores share the id %v", id)
	}
	if other.Bolt() != nil {
		t.Fatalf("Bolt() != nil for an in-memory registry")
	}
}

func TestRegistry_Files(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "store")
	reg := setupDisk(t, dir)
	c := must(NewCell(reg, 7, Text("x")))
	success(t, c.Set("y"))
	if reg.Size() <= 0 {
		t.Errorf("Size() = %d", reg.Size())
	}
	if reg.WriteCount.Load() == 0 {
		t.Errorf("WriteCount = 0")
	}

	for _, name := range []string{storeFileName, "region-007.mem"} {
		fi, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("** %v", err)
		}
		if name != storeFileName && fi.Size() != PageSize {
			t.Errorf("%s is %d bytes, wanted %d", name, fi.Size(), PageSize)
		}
	}
}

func TestRegistry_Regions(t *testing.T) {
	reg := setup(t)
	deepEqual(t, must(reg.Regions()), []MemoryID(nil))

	must(NewUnboundedMap[Uint8, Blob](reg, 200))
	must(NewLog[Text](reg, 3, 4))
	deepEqual(t, must(reg.Regions()), []MemoryID{3, 4, 200})
}
