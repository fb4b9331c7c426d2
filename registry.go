package stablestore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// MemoryID identifies a memory region within a Registry.
type MemoryID uint8

type Options struct {
	Logger    *slog.Logger
	Verbose   bool
	IsTesting bool
	MmapSize  int

	// MaxPages limits the growth of each linear region (cells and logs).
	// Zero means DefaultMaxPages.
	MaxPages uint64

	// MaxMapBytes limits the total size of keys and values stored in each
	// map region. Zero means no limit.
	MaxMapBytes int64

	// LogCacheSize is the number of decoded-but-raw log entries to keep in
	// memory per Log. Zero disables caching.
	LogCacheSize uint32

	// MemoryProvider, if set, supplies the linear memory of each region
	// instead of memory-mapped files (Open) or VectorMemory (OpenMemory).
	MemoryProvider func(id MemoryID) (Memory, error)

	Now func() time.Time
}

// Registry owns the storage of a set of memory regions and tracks which
// structure each region is bound to. A region can be bound by at most one
// live structure.
type Registry struct {
	store   storage
	dir     string
	logger  *slog.Logger
	verbose bool
	noSync  bool
	opt     Options
	id      uuid.UUID

	lifecycle sync.RWMutex

	mu       sync.Mutex
	bound    map[MemoryID]regionKind
	memories map[MemoryID]Memory

	lastSize   atomic.Int64
	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64
}

const storeFileName = "stable.db"

// Open opens (creating if needed) a persistent registry in dir.
func Open(dir string, opt Options) (*Registry, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, fmt.Errorf("stablestore: %w", err)
	}

	bopt := new(bbolt.Options)
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(filepath.Join(dir, storeFileName), 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("stablestore: %w", err)
	}

	reg := newRegistry(newBoltStorage(bdb), dir, opt)
	if err := reg.init(); err != nil {
		reg.Close()
		return nil, err
	}
	return reg, nil
}

// OpenMemory returns a transient registry that keeps everything in memory.
func OpenMemory(opt Options) (*Registry, error) {
	reg := newRegistry(newMemStorage(), "", opt)
	if err := reg.init(); err != nil {
		reg.Close()
		return nil, err
	}
	return reg, nil
}

func newRegistry(store storage, dir string, opt Options) *Registry {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Registry{
		store:    store,
		dir:      dir,
		logger:   opt.Logger,
		verbose:  opt.Verbose,
		noSync:   opt.IsTesting,
		opt:      opt,
		bound:    make(map[MemoryID]regionKind),
		memories: make(map[MemoryID]Memory),
	}
}

func (reg *Registry) init() error {
	err := reg.write(func(tx storageTx) error {
		meta, err := tx.CreateBucket(metaBucket)
		if err != nil {
			return err
		}
		if raw := meta.Get(storeIDKey); raw != nil {
			reg.id, err = uuid.FromBytes(raw)
			if err != nil {
				return dataErrf(raw, 0, err, "invalid store id")
			}
			return nil
		}
		id := uuid.New()
		reg.id = id
		return meta.Put(storeIDKey, id[:])
	})
	if err != nil {
		return fmt.Errorf("stablestore: init: %w", err)
	}
	reg.logger.LogAttrs(context.Background(), slog.LevelInfo, "stablestore: opened", slog.String("store", reg.id.String()), slog.String("dir", reg.dir))
	return nil
}

// ID returns the identity assigned to the store when it was first created.
func (reg *Registry) ID() uuid.UUID {
	return reg.id
}

// Bolt returns the underlying database, or nil for a transient registry.
func (reg *Registry) Bolt() *bbolt.DB {
	if bs, ok := reg.store.(*boltStore); ok {
		return bs.db
	}
	return nil
}

// Size returns the size of the ordered map storage as of the last write.
func (reg *Registry) Size() int64 {
	return reg.lastSize.Load()
}

// Close releases the storage and all memory regions. Structures bound to
// the registry fail with ErrClosed afterwards.
func (reg *Registry) Close() error {
	reg.lifecycle.Lock()
	defer reg.lifecycle.Unlock()
	if reg.store == nil {
		return nil
	}
	err := reg.store.Close()
	reg.store = nil

	reg.mu.Lock()
	defer reg.mu.Unlock()
	for id, mem := range reg.memories {
		if c, ok := mem.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("region %d: %w", id, cerr)
			}
		}
	}
	clear(reg.memories)
	clear(reg.bound)
	reg.logger.LogAttrs(context.Background(), slog.LevelInfo, "stablestore: closed", slog.String("store", reg.id.String()))
	return err
}

// Bound lists the regions that currently have a live structure.
func (reg *Registry) Bound() []MemoryID {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	ids := make([]MemoryID, 0, len(reg.bound))
	for id := range reg.bound {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (reg *Registry) bind(id MemoryID, spec regionSpec) (*regionState, error) {
	reg.mu.Lock()
	if kind, found := reg.bound[id]; found {
		reg.mu.Unlock()
		return nil, regionErrf(id, spec.Kind, nil, ErrRegionInUse, "already bound to a %v", kind)
	}
	reg.bound[id] = spec.Kind
	reg.mu.Unlock()

	var rs *regionState
	err := reg.write(func(tx storageTx) error {
		var err error
		rs, err = prepareRegion(tx, id, spec, reg.opt.Now())
		return err
	})
	if err != nil {
		reg.unbind(id)
		return nil, err
	}
	reg.logDebug("stablestore: bound", slog.Int("region", int(id)), slog.String("kind", spec.Kind.String()), slog.Uint64("entries", rs.Entries))
	return rs, nil
}

func (reg *Registry) unbind(id MemoryID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.bound, id)
}

// memory returns the linear memory of region id, opening it on first use.
func (reg *Registry) memory(id MemoryID) (Memory, error) {
	reg.lifecycle.RLock()
	defer reg.lifecycle.RUnlock()
	if reg.store == nil {
		return nil, ErrClosed
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if mem := reg.memories[id]; mem != nil {
		return mem, nil
	}

	var mem Memory
	var err error
	switch {
	case reg.opt.MemoryProvider != nil:
		mem, err = reg.opt.MemoryProvider(id)
	case reg.dir == "":
		mem = NewVectorMemory(reg.opt.MaxPages)
	default:
		mem, err = openFileMemory(filepath.Join(reg.dir, fmt.Sprintf("region-%03d.mem", id)), reg.opt.MaxPages)
	}
	if err != nil {
		return nil, fmt.Errorf("stablestore: region %d: %w", id, err)
	}
	reg.memories[id] = mem
	return mem, nil
}

// useMemory runs f unless the registry is closed.
func (reg *Registry) useMemory(f func() error) error {
	reg.lifecycle.RLock()
	defer reg.lifecycle.RUnlock()
	if reg.store == nil {
		return ErrClosed
	}
	return f()
}

// syncMemory flushes mem to durable storage if it supports that. It does
// nothing when Options.IsTesting is set.
func (reg *Registry) syncMemory(mem Memory) error {
	if reg.noSync {
		return nil
	}
	if s, ok := mem.(syncer); ok {
		return s.Sync()
	}
	return nil
}

func (reg *Registry) logDebug(msg string, attrs ...slog.Attr) {
	if reg.verbose {
		reg.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}
