package mmap

import (
	"errors"
	"fmt"
	"os"
)

// ErrTooLarge is returned when a region would grow past MaxSize.
var ErrTooLarge = errors.New("mmap: size exceeds MaxSize")

// Region is a shared mapping of an entire file that can be grown in place.
// Growing remaps the file, so slices previously returned by Bytes must not
// be retained across a call to Grow.
type Region struct {
	f    *os.File
	data []byte
	opt  Options
}

// OpenRegion opens (or, if Writable is set, creates) the file at path and
// maps its current contents.
func OpenRegion(path string, opt Options) (*Region, error) {
	flag := os.O_RDONLY
	if opt.Has(Writable) {
		flag = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(path, flag, 0666)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	r := &Region{f: f, opt: opt}
	if size := st.Size(); size > 0 {
		if size > MaxSize {
			f.Close()
			return nil, fmt.Errorf("%s: %w", path, ErrTooLarge)
		}
		r.data, err = mapFile(f, int(size), opt)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("mmap %s: %w", path, err)
		}
	}
	return r, nil
}

func (r *Region) Len() int {
	return len(r.data)
}

// Bytes returns the mapped contents. The slice is invalidated by Grow and Close.
func (r *Region) Bytes() []byte {
	return r.data
}

func (r *Region) Name() string {
	return r.f.Name()
}

// mapFile is replaced in tests to simulate mapping failures.
var mapFile = mmap

// Grow extends the file to size bytes and remaps it. It's a no-op if the
// region is already at least that large. On failure the region keeps its
// previous size and mapping.
func (r *Region) Grow(size int) error {
	if size <= len(r.data) {
		return nil
	}
	if !r.opt.Has(Writable) {
		return fmt.Errorf("mmap: %s is read-only", r.f.Name())
	}
	if size > MaxSize {
		return ErrTooLarge
	}

	old := r.data
	if err := r.f.Truncate(int64(size)); err != nil {
		_ = r.f.Truncate(int64(len(old)))
		return err
	}
	data, err := mapFile(r.f, size, r.opt)
	if err != nil {
		_ = r.f.Truncate(int64(len(old)))
		return fmt.Errorf("mmap %s: %w", r.f.Name(), err)
	}
	r.data = data
	if old != nil {
		if err := munmap(old); err != nil {
			return fmt.Errorf("munmap %s: %w", r.f.Name(), err)
		}
	}
	return nil
}

// Sync flushes the mapped data to disk. See Fdatasync for the error semantics.
func (r *Region) Sync() error {
	if r.data == nil {
		return nil
	}
	return Fdatasync(r.f, r.data)
}

func (r *Region) Close() error {
	var err error
	if r.data != nil {
		err = munmap(r.data)
		r.data = nil
	}
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	return err
}
