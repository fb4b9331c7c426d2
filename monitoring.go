package stablestore

import (
	"bytes"
	"encoding/binary"
	"time"
)

type RegionStats struct {
	ID       MemoryID
	Kind     string
	Live     bool
	KeyMax   uint32
	ValueMax uint32
	Created  time.Time
	LastSeen time.Time

	// Entries is the number of map entries, log entries, or 1 for a cell.
	Entries uint64

	// UsedBytes is the size of all keys and values of a map region.
	UsedBytes int64

	// Records and Alloc describe the storage bucket of a map region.
	Records int
	Alloc   int64

	// Pages is the size of a linear region.
	Pages uint64
}

// Regions lists every region that has ever been bound, in ID order.
func (reg *Registry) Regions() ([]MemoryID, error) {
	var ids []MemoryID
	err := reg.read(func(tx storageTx) error {
		meta := tx.Bucket(metaBucket)
		if meta == nil {
			return nil
		}
		prefix := []byte{stateKeyTag}
		rang := RawPrefix(prefix)
		for c := rang.newCursor(meta.Cursor(), reg.logger); c.Next(); {
			if k := c.Key(); len(k) == 2 {
				ids = append(ids, MemoryID(k[1]))
			}
		}
		return nil
	})
	return ids, err
}

// Stats describes region id. It returns a zero RegionStats with Kind "none"
// for a region that has never been bound.
func (reg *Registry) Stats(id MemoryID) (RegionStats, error) {
	st := RegionStats{ID: id, Kind: kindNone.String()}
	var kind regionKind
	err := reg.read(func(tx storageTx) error {
		rs, err := loadRegionState(tx.Bucket(metaBucket), id)
		if err != nil || rs == nil {
			return err
		}
		kind = rs.Kind
		st.Kind = rs.Kind.String()
		st.KeyMax, st.ValueMax = rs.KeyMax, rs.ValueMax
		st.Created, st.LastSeen = rs.Created, rs.LastSeen
		st.Entries, st.UsedBytes = rs.Entries, rs.UsedBytes
		if b := tx.Bucket(regionBucketName(id)); b != nil {
			bs := b.Stats()
			st.Records = bs.KeyN
			st.Alloc = bs.TotalAlloc()
		}
		return nil
	})
	if err != nil {
		return st, err
	}

	reg.mu.Lock()
	_, st.Live = reg.bound[id]
	reg.mu.Unlock()

	if kind.isLinear() {
		mem, err := reg.memory(id)
		if err != nil {
			return st, err
		}
		st.Pages = mem.Size()
		st.Entries, err = linearEntries(mem, kind)
		if err != nil {
			return st, err
		}
	}
	return st, nil
}

func linearEntries(mem Memory, kind regionKind) (uint64, error) {
	if mem.Size() == 0 {
		return 0, nil
	}
	var hbuf [16]byte
	if err := mem.ReadAt(hbuf[:], 0); err != nil {
		return 0, err
	}
	switch {
	case kind == kindCell && bytes.Equal(hbuf[:3], cellMagic[:]):
		return 1, nil
	case kind == kindLogIndex && bytes.Equal(hbuf[:3], logIndexMagic[:]):
		return binary.LittleEndian.Uint64(hbuf[logCountOffset:]), nil
	}
	return 0, nil
}
