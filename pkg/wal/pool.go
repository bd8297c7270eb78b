package wal

import "sync"

// pool.go holds the sync.Pools that keep WriteEntry/ReadEntry off the GC's
// back on the hot path.

var (
	// entryPool reuses *WALEntry structs.
	entryPool = sync.Pool{
		New: func() interface{} {
			return &WALEntry{
				Payload: make([]byte, 0, 4096),
			}
		},
	}

	// bufferPool reuses byte slices for header/payload serialization.
	bufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 0, 8192)
			return &buf
		},
	}
)

// AcquireEntry gets a WALEntry from the pool.
func AcquireEntry() *WALEntry {
	return entryPool.Get().(*WALEntry)
}

// ReleaseEntry zeroes e and returns it to the pool.
func ReleaseEntry(e *WALEntry) {
	e.Header = WALHeader{}
	e.Payload = e.Payload[:0] // keep the backing array
	entryPool.Put(e)
}

// AcquireBuffer gets a byte buffer from the pool.
func AcquireBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// ReleaseBuffer empties buf and returns it to the pool.
func ReleaseBuffer(buf *[]byte) {
	*buf = (*buf)[:0]
	bufferPool.Put(buf)
}
