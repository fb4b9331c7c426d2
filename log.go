package stablestore

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"
)

// Log regions:
//
//	index = logIndexHeader logRecord*
//	data  = logDataHeader entry*
//
// Count in the index header is written last and is the commit point of
// Append: records and data past Count are ignored.
const (
	logIndexHeaderSize       = 16
	logRecordSize            = 16
	logDataHeaderSize        = 8
	logCountOffset           = 8
	logVersion         uint8 = 1
)

var (
	logIndexMagic = [3]byte{'S', 'L', 'I'}
	logDataMagic  = [3]byte{'S', 'L', 'D'}
)

type logIndexHeader struct {
	Magic   [3]byte
	Version uint8
	_       uint32
	Count   uint64
}

type logRecord struct {
	Offset   uint64
	Length   uint32
	Checksum uint32
}

type logDataHeader struct {
	Magic   [3]byte
	Version uint8
	_       uint32
}

func logChecksum(data []byte) uint32 {
	h := xxhash.Sum64(data)
	return uint32(h) ^ uint32(h>>32)
}

func hashLogIndex(i uint64) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], i)
	return uint32(xxhash.Sum64(b[:]))
}

// Log is an append-only sequence of values kept in two memory regions: an
// index of fixed-size records and the concatenated entries.
type Log[T any, PT Storable[T]] struct {
	mu      sync.Mutex
	reg     *Registry
	indexID MemoryID
	dataID  MemoryID
	index   Memory
	data    Memory
	count   uint64
	end     uint64
	cache   *freelru.LRU[uint64, []byte]
}

// NewLog binds two distinct regions to a Log and loads any entries they
// already hold.
func NewLog[T any, PT Storable[T]](reg *Registry, indexID, dataID MemoryID) (*Log[T, PT], error) {
	if indexID == dataID {
		return nil, regionErrf(indexID, kindLogIndex, nil, ErrSameRegion, "log needs two regions")
	}
	if _, err := reg.bind(indexID, regionSpec{Kind: kindLogIndex}); err != nil {
		return nil, err
	}
	if _, err := reg.bind(dataID, regionSpec{Kind: kindLogData}); err != nil {
		reg.unbind(indexID)
		return nil, err
	}
	l, err := openLog[T, PT](reg, indexID, dataID)
	if err != nil {
		reg.unbind(indexID)
		reg.unbind(dataID)
		return nil, err
	}
	reg.logDebug("stablestore: log ready", slog.Int("index", int(indexID)), slog.Int("data", int(dataID)), slog.Uint64("entries", l.count))
	return l, nil
}

func openLog[T any, PT Storable[T]](reg *Registry, indexID, dataID MemoryID) (*Log[T, PT], error) {
	index, err := reg.memory(indexID)
	if err != nil {
		return nil, err
	}
	data, err := reg.memory(dataID)
	if err != nil {
		return nil, err
	}
	l := &Log[T, PT]{
		reg:     reg,
		indexID: indexID,
		dataID:  dataID,
		index:   index,
		data:    data,
		end:     logDataHeaderSize,
	}
	if n := reg.opt.LogCacheSize; n > 0 {
		l.cache, err = freelru.New[uint64, []byte](n, hashLogIndex)
		if err != nil {
			return nil, err
		}
	}
	err = reg.useMemory(l.load)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log[T, PT]) load() error {
	var hbuf [logIndexHeaderSize]byte
	if l.index.Size() > 0 {
		if err := l.index.ReadAt(hbuf[:], 0); err != nil {
			return err
		}
	}
	if hbuf == ([logIndexHeaderSize]byte{}) {
		return l.initRegions()
	}

	var h logIndexHeader
	if _, err := binary.Decode(hbuf[:], binary.LittleEndian, &h); err != nil {
		return dataErrf(hbuf[:], 0, err, "log %d: invalid index header", l.indexID)
	}
	if h.Magic != logIndexMagic {
		return dataErrf(hbuf[:], 0, nil, "log %d: bad index magic", l.indexID)
	}
	if h.Version > logVersion {
		return dataErrf(hbuf[:], 3, nil, "log %d: unsupported version %d", l.indexID, h.Version)
	}

	var dbuf [logDataHeaderSize]byte
	if err := l.data.ReadAt(dbuf[:], 0); err != nil {
		return regionErrf(l.dataID, kindLogData, nil, err, "cannot read header")
	}
	var dh logDataHeader
	if _, err := binary.Decode(dbuf[:], binary.LittleEndian, &dh); err != nil {
		return dataErrf(dbuf[:], 0, err, "log %d: invalid data header", l.dataID)
	}
	if dh.Magic != logDataMagic {
		return dataErrf(dbuf[:], 0, nil, "log %d: bad data magic", l.dataID)
	}

	l.count = h.Count
	if l.count > 0 {
		rec, err := l.record(l.count - 1)
		if err != nil {
			return err
		}
		l.end = rec.Offset + uint64(rec.Length)
		if l.end > l.data.Size()*PageSize {
			return regionErrf(l.dataID, kindLogData, nil, ErrOutOfBounds, "last entry ends at %d", l.end)
		}
	}
	return nil
}

func (l *Log[T, PT]) initRegions() error {
	if err := ensureMemorySize(l.data, logDataHeaderSize); err != nil {
		return err
	}
	if err := ensureMemorySize(l.index, logIndexHeaderSize); err != nil {
		return err
	}
	var dbuf [logDataHeaderSize]byte
	must(binary.Encode(dbuf[:], binary.LittleEndian, logDataHeader{Magic: logDataMagic, Version: logVersion}))
	if err := l.data.WriteAt(dbuf[:], 0); err != nil {
		return err
	}
	var hbuf [logIndexHeaderSize]byte
	must(binary.Encode(hbuf[:], binary.LittleEndian, logIndexHeader{Magic: logIndexMagic, Version: logVersion}))
	if err := l.index.WriteAt(hbuf[:], 0); err != nil {
		return err
	}
	if err := l.reg.syncMemory(l.data); err != nil {
		return err
	}
	return l.reg.syncMemory(l.index)
}

func (l *Log[T, PT]) record(i uint64) (logRecord, error) {
	var buf [logRecordSize]byte
	var rec logRecord
	if err := l.index.ReadAt(buf[:], logIndexHeaderSize+i*logRecordSize); err != nil {
		return rec, regionErrf(l.indexID, kindLogIndex, nil, err, "record %d", i)
	}
	if _, err := binary.Decode(buf[:], binary.LittleEndian, &rec); err != nil {
		return rec, dataErrf(buf[:], 0, err, "log %d: invalid record %d", l.indexID, i)
	}
	return rec, nil
}

// Append adds v to the end of the log and returns its index. Indices start
// at zero and are never reused.
func (l *Log[T, PT]) Append(v T) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := encodeStable[T, PT](nil, &v)
	if err != nil {
		return 0, err
	}
	if uint64(len(data)) > math.MaxUint32 {
		return 0, &CapacityError{What: "log entry", Size: len(data), Max: math.MaxUint32}
	}
	i := l.count
	rec := logRecord{
		Offset:   l.end,
		Length:   uint32(len(data)),
		Checksum: logChecksum(data),
	}

	err = l.reg.useMemory(func() error {
		recOff := logIndexHeaderSize + i*logRecordSize
		if err := ensureMemorySize(l.index, recOff+logRecordSize); err != nil {
			return regionErrf(l.indexID, kindLogIndex, nil, err, "cannot fit record %d", i)
		}
		if err := ensureMemorySize(l.data, rec.Offset+uint64(len(data))); err != nil {
			return regionErrf(l.dataID, kindLogData, nil, err, "cannot fit %d bytes", len(data))
		}
		if err := l.data.WriteAt(data, rec.Offset); err != nil {
			return err
		}
		var rbuf [logRecordSize]byte
		must(binary.Encode(rbuf[:], binary.LittleEndian, rec))
		if err := l.index.WriteAt(rbuf[:], recOff); err != nil {
			return err
		}
		if err := l.reg.syncMemory(l.data); err != nil {
			return err
		}
		var cbuf [8]byte
		binary.LittleEndian.PutUint64(cbuf[:], i+1)
		if err := l.index.WriteAt(cbuf[:], logCountOffset); err != nil {
			return err
		}
		return l.reg.syncMemory(l.index)
	})
	if err != nil {
		return 0, err
	}
	l.count = i + 1
	l.end = rec.Offset + uint64(len(data))
	return i, nil
}

// Get returns entry i, or false if the log has no such entry.
func (l *Log[T, PT]) Get(i uint64) (T, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var zero T
	if i >= l.count {
		return zero, false, nil
	}
	var raw []byte
	err := l.reg.useMemory(func() error {
		var err error
		raw, err = l.readEntry(i)
		return err
	})
	if err != nil {
		return zero, false, err
	}
	v, err := decodeStable[T, PT](raw)
	return v, true, err
}

// readEntry returns the raw bytes of entry i. The caller owns the result:
// cached entries are handed out as copies.
func (l *Log[T, PT]) readEntry(i uint64) ([]byte, error) {
	if l.cache != nil {
		if raw, ok := l.cache.Get(i); ok {
			return bytes.Clone(raw), nil
		}
	}
	rec, err := l.record(i)
	if err != nil {
		return nil, err
	}
	if end := rec.Offset + uint64(rec.Length); end < rec.Offset || rec.Offset < logDataHeaderSize || end > l.data.Size()*PageSize {
		return nil, dataErrf(nil, 0, nil, "log %d: entry %d at [%d, %d) lies outside the data region", l.indexID, i, rec.Offset, end)
	}
	raw := make([]byte, rec.Length)
	if err := l.data.ReadAt(raw, rec.Offset); err != nil {
		return nil, regionErrf(l.dataID, kindLogData, nil, err, "entry %d", i)
	}
	if sum := logChecksum(raw); sum != rec.Checksum {
		return nil, dataErrf(raw, 0, nil, "log %d: entry %d checksum mismatch (%08x, wanted %08x)", l.dataID, i, sum, rec.Checksum)
	}
	if l.cache != nil {
		l.cache.Add(i, raw)
		return bytes.Clone(raw), nil
	}
	return raw, nil
}

func (l *Log[T, PT]) Len() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *Log[T, PT]) IsEmpty() bool {
	return l.Len() == 0
}

// Iter iterates over the entries in append order. Entries appended while
// iterating are included.
func (l *Log[T, PT]) Iter() *Cursor[Entry[uint64, T]] {
	var next uint64
	fetch := func() ([]rawItem, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		var items []rawItem
		err := l.reg.useMemory(func() error {
			for len(items) < scanBatchSize && next < l.count {
				raw, err := l.readEntry(next)
				if err != nil {
					return err
				}
				items = append(items, rawItem{appendUint64(nil, next), raw})
				next++
			}
			return nil
		})
		return items, err
	}
	return newCursor(fetch, func(k, v []byte) (Entry[uint64, T], error) {
		var e Entry[uint64, T]
		e.Key = binary.BigEndian.Uint64(k)
		var err error
		e.Value, err = decodeStable[T, PT](v)
		return e, err
	})
}
