package stablestore

import "sync"

var keyBytesPool = &sync.Pool{
	New: func() any {
		return make([]byte, 0, 1024)
	},
}

func getKeyBytes() []byte {
	return keyBytesPool.Get().([]byte)[:0]
}

func releaseKeyBytes(b []byte) {
	if cap(b) > maxStorageKeySize {
		return
	}
	keyBytesPool.Put(b[:0])
}

var valueBytesPool = &sync.Pool{
	New: func() any {
		return make([]byte, 0, 4096)
	},
}

func getValueBytes() []byte {
	return valueBytesPool.Get().([]byte)[:0]
}

func releaseValueBytes(b []byte) {
	if cap(b) > 1<<20 {
		return
	}
	valueBytesPool.Put(b[:0])
}
