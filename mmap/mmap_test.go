package mmap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOptionsHas(t *testing.T) {
	var o Options = Writable | Prefault
	if !o.Has(Writable) || !o.Has(Prefault) || o.Has(SequentialAccess) {
		t.Fatalf("Options.Has returned unexpected results for %v", o)
	}
	if o.Has(Writable | RandomAccess) {
		t.Fatalf("Has of a partially set combination = true")
	}
}

func TestRegion_MapsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing")
	ensure(os.WriteFile(path, []byte("preexisting"), 0666))

	for _, opt := range []Options{0, SequentialAccess, RandomAccess | Prefault} {
		r := must(OpenRegion(path, opt))
		if a, e := string(r.Bytes()), "preexisting"; a != e {
			t.Errorf("opt %v: Bytes() = %q, wanted %q", opt, a, e)
		}
		ensure(r.Close())
	}
}

func TestRegion_MissingReadOnly(t *testing.T) {
	if _, err := OpenRegion(filepath.Join(t.TempDir(), "missing"), 0); !os.IsNotExist(err) {
		t.Fatalf("OpenRegion(missing) = %v, wanted a not-exist error", err)
	}
}

func TestFdatasync(t *testing.T) {
	r := must(OpenRegion(filepath.Join(t.TempDir(), "synced"), Writable))
	defer r.Close()
	ensure(r.Grow(4096))
	r.Bytes()[0] = 0x42
	if err := Fdatasync(r.f, r.Bytes()); err != nil {
		t.Fatalf("Fdatasync: %v", err)
	}
	if err := Fdatasync(r.f, nil); err != nil {
		t.Fatalf("Fdatasync without mapping: %v", err)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}
