package stablestore

import (
	"bytes"
	"slices"
)

// orderedRegion is a memory region holding an ordered byte map, stored as
// one bucket of the registry's storage.
type orderedRegion struct {
	reg    *Registry
	id     MemoryID
	kind   regionKind
	bucket string
}

func bindOrderedRegion(reg *Registry, id MemoryID, spec regionSpec) (*orderedRegion, error) {
	if _, err := reg.bind(id, spec); err != nil {
		return nil, err
	}
	return &orderedRegion{
		reg:    reg,
		id:     id,
		kind:   spec.Kind,
		bucket: regionBucketName(id),
	}, nil
}

func (r *orderedRegion) view(f func(b *regionBucket) error) error {
	return r.reg.read(func(tx storageTx) error {
		b := tx.Bucket(r.bucket)
		if b == nil {
			return regionErrf(r.id, r.kind, nil, nil, "bucket %s is missing", r.bucket)
		}
		meta := tx.Bucket(metaBucket)
		rs, err := loadRegionState(meta, r.id)
		if err != nil {
			return err
		}
		return f(&regionBucket{region: r, b: b, state: rs})
	})
}

func (r *orderedRegion) update(f func(b *regionBucket) error) error {
	return r.reg.write(func(tx storageTx) error {
		b := tx.Bucket(r.bucket)
		if b == nil {
			return regionErrf(r.id, r.kind, nil, nil, "bucket %s is missing", r.bucket)
		}
		meta := tx.Bucket(metaBucket)
		rs, err := loadRegionState(meta, r.id)
		if err != nil {
			return err
		}
		if rs == nil {
			return regionErrf(r.id, r.kind, nil, nil, "state is missing")
		}
		rb := &regionBucket{region: r, b: b, state: rs}
		if err := f(rb); err != nil {
			return err
		}
		if rb.dirty {
			return saveRegionState(meta, r.id, rs)
		}
		return nil
	})
}

// regionBucket is a region's bucket within a transaction. Writes through it
// keep the entry count and byte usage of the region state up to date.
type regionBucket struct {
	region *orderedRegion
	b      storageBucket
	state  *regionState
	dirty  bool
}

func (b *regionBucket) entries() uint64 {
	if b.state == nil {
		return 0
	}
	return b.state.Entries
}

// lookup finds k. The returned slice is valid until the end of the transaction.
func (b *regionBucket) lookup(k []byte) ([]byte, bool) {
	ck, v := b.b.Cursor().Seek(k)
	if ck == nil || !bytes.Equal(ck, k) {
		return nil, false
	}
	return v, true
}

func (b *regionBucket) cursor() storageCursor {
	return b.b.Cursor()
}

// put stores v under k and returns a copy of the previous value, if any.
// Only counted records contribute to the entry count.
func (b *regionBucket) put(k, v []byte, counted bool) ([]byte, bool, error) {
	r := b.region
	old, found := b.lookup(k)
	delta := int64(len(v))
	if found {
		old = slices.Clone(old)
		delta -= int64(len(old))
	} else {
		delta += int64(len(k))
	}
	if limit := r.reg.opt.MaxMapBytes; limit > 0 && delta > 0 && b.state.UsedBytes+delta > limit {
		return nil, false, regionErrf(r.id, r.kind, k, ErrOutOfMemory, "byte budget of %d exceeded", limit)
	}
	if err := b.b.Put(k, v); err != nil {
		return nil, false, regionErrf(r.id, r.kind, k, err, "put")
	}
	b.state.UsedBytes += delta
	if !found && counted {
		b.state.Entries++
	}
	b.dirty = true
	return old, found, nil
}

// delete removes k and returns a copy of the removed value.
func (b *regionBucket) delete(k []byte, counted bool) ([]byte, bool, error) {
	r := b.region
	old, found := b.lookup(k)
	if !found {
		return nil, false, nil
	}
	old = slices.Clone(old)
	if err := b.b.Delete(k); err != nil {
		return nil, false, regionErrf(r.id, r.kind, k, err, "delete")
	}
	b.state.UsedBytes -= int64(len(k) + len(old))
	if counted && b.state.Entries > 0 {
		b.state.Entries--
	}
	b.dirty = true
	return old, true, nil
}
