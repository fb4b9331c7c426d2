package stablestore

import (
	"fmt"
	"time"
)

type regionKind uint8

const (
	kindNone regionKind = iota
	kindCell
	kindBTreeMap
	kindMultimap
	kindLogIndex
	kindLogData
	kindUnboundedMap
)

var regionKindNames = [...]string{
	kindNone:         "none",
	kindCell:         "cell",
	kindBTreeMap:     "btreemap",
	kindMultimap:     "multimap",
	kindLogIndex:     "log-index",
	kindLogData:      "log-data",
	kindUnboundedMap: "unboundedmap",
}

func (k regionKind) String() string {
	if int(k) < len(regionKindNames) {
		return regionKindNames[k]
	}
	return fmt.Sprintf("kind%d", uint8(k))
}

// isLinear is true for kinds that live in a Memory rather than in an
// ordered map bucket.
func (k regionKind) isLinear() bool {
	return k == kindCell || k == kindLogIndex || k == kindLogData
}

// regionState is the persisted meta document of a memory region.
type regionState struct {
	Kind        regionKind `msgpack:"k"`
	KeyMax      uint32     `msgpack:"km,omitempty"`
	ValueMax    uint32     `msgpack:"vm,omitempty"`
	PrefixWidth int        `msgpack:"pw,omitempty"`
	Entries     uint64     `msgpack:"n"`
	UsedBytes   int64      `msgpack:"b"`
	Created     time.Time  `msgpack:"c"`
	LastSeen    time.Time  `msgpack:"t"`
}

// regionSpec is what a wrapper asks for when binding a region.
type regionSpec struct {
	Kind        regionKind
	KeyMax      uint32
	ValueMax    uint32
	PrefixWidth int
}

var (
	metaBucket  = "_meta"
	storeIDKey  = []byte("id")
	stateKeyTag = byte('r')
)

func regionStateKey(id MemoryID) []byte {
	return []byte{stateKeyTag, byte(id)}
}

func regionBucketName(id MemoryID) string {
	return fmt.Sprintf("m%03d", id)
}

func loadRegionState(meta storageBucket, id MemoryID) (*regionState, error) {
	if meta == nil {
		return nil, nil
	}
	raw := meta.Get(regionStateKey(id))
	if raw == nil {
		return nil, nil
	}
	rs := new(regionState)
	if err := decodeMsgPack(raw, rs); err != nil {
		return nil, fmt.Errorf("region %d: failed to decode state: %w", id, err)
	}
	return rs, nil
}

func saveRegionState(meta storageBucket, id MemoryID, rs *regionState) error {
	buf, err := appendMsgPack(nil, rs)
	if err != nil {
		return err
	}
	return meta.Put(regionStateKey(id), buf)
}

// prepareRegion loads or creates the state of region id and checks that it
// is compatible with spec.
func prepareRegion(tx storageTx, id MemoryID, spec regionSpec, now time.Time) (*regionState, error) {
	meta, err := tx.CreateBucket(metaBucket)
	if err != nil {
		return nil, err
	}
	rs, err := loadRegionState(meta, id)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		rs = &regionState{
			Kind:    spec.Kind,
			Created: now,
		}
	} else if rs.Kind != spec.Kind {
		return nil, regionErrf(id, spec.Kind, nil, ErrKindMismatch, "region was created as %v", rs.Kind)
	} else if rs.PrefixWidth != spec.PrefixWidth {
		return nil, regionErrf(id, spec.Kind, nil, ErrLayoutMismatch, "size prefix width changes from %d to %d", rs.PrefixWidth, spec.PrefixWidth)
	}
	rs.KeyMax = spec.KeyMax
	rs.ValueMax = spec.ValueMax
	rs.PrefixWidth = spec.PrefixWidth
	rs.LastSeen = now

	if !spec.Kind.isLinear() {
		if _, err := tx.CreateBucket(regionBucketName(id)); err != nil {
			return nil, err
		}
	}
	if err := saveRegionState(meta, id, rs); err != nil {
		return nil, err
	}
	return rs, nil
}
