package stablestore

import (
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpRegionHeaders = DumpFlags(1 << iota)
	DumpStats
	DumpRecords

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)

	dumpLinearBytes = 64
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders every known region as text, for debugging and tests.
func (reg *Registry) Dump(f DumpFlags) (string, error) {
	ids, err := reg.Regions()
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	for _, id := range ids {
		if err := reg.dumpRegion(&buf, f, id); err != nil {
			return buf.String(), err
		}
	}
	return buf.String(), nil
}

func (reg *Registry) dumpRegion(w *strings.Builder, f DumpFlags, id MemoryID) error {
	s, err := reg.Stats(id)
	if err != nil {
		return err
	}
	prefix := fmt.Sprintf("r%03d", id)

	if f.Contains(DumpRegionHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s %s (%d entries)%s\n", prefix, s.Kind, s.Entries, map[bool]string{false: "", true: " LIVE"}[s.Live])
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(w, "%s.stats: key_max = %d, value_max = %d, used = %d, records = %d, alloc = %d, pages = %d\n", prefix, s.KeyMax, s.ValueMax, s.UsedBytes, s.Records, s.Alloc, s.Pages)
	}
	if !f.Contains(DumpRecords) {
		return nil
	}
	if f.Contains(DumpStats) {
		fmt.Fprintln(w, dumpSep2)
	}

	if s.Pages > 0 {
		mem, err := reg.memory(id)
		if err != nil {
			return err
		}
		head := make([]byte, min(dumpLinearBytes, s.Pages*PageSize))
		if err := mem.ReadAt(head, 0); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s.head = %s\n", prefix, hexBytes(head))
		return nil
	}

	return reg.read(func(tx storageTx) error {
		b := tx.Bucket(regionBucketName(id))
		if b == nil {
			return nil
		}
		var pos int
		rang := RawOO()
		for c := rang.newCursor(b.Cursor(), reg.logger); c.Next(); {
			pos++
			fmt.Fprintf(w, "%s.%d: %s => %s\n", prefix, pos, hexBytes(c.Key()), hexBytes(c.Value()))
		}
		return nil
	})
}
