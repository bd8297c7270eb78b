// Package pager implements the fixed-size page file and buffer pool the
// rest of the mutation core pins pages through. It generalizes the
// original storage engine's segmented, variable-length heap file
// (pkg/heap) into fixed PageSize frames addressed by page index, which is
// what the page-versioning layer and hash index build on.
package pager

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/bobboyms/graphdb/pkg/metrics"
)

// PageSize is the unit of IO and buffer-pool caching across the engine.
const PageSize = 4096

// Page is one frame's worth of raw bytes.
type Page [PageSize]byte

// FileHandle owns one on-disk page file: an append-only sequence of
// fixed-size pages plus a page count tracked in memory and recovered from
// file size on open, the same bookkeeping pkg/heap.HeapManager does for
// its segments but without segmentation, since a page file is already
// bounded by 4KB * numPages and rotated at the database-file level, not
// the page-file level.
type FileHandle struct {
	path     string
	file     *os.File
	mu       sync.RWMutex
	numPages uint32
}

// OpenFileHandle opens or creates path as a page file.
func OpenFileHandle(path string) (*FileHandle, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open page file %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size()%PageSize != 0 {
		f.Close()
		return nil, fmt.Errorf("page file %q has truncated trailing page: size %d not a multiple of %d", path, info.Size(), PageSize)
	}
	return &FileHandle{
		path:     path,
		file:     f,
		numPages: uint32(info.Size() / PageSize),
	}, nil
}

func (fh *FileHandle) Path() string { return fh.path }

func (fh *FileHandle) NumPages() uint32 {
	fh.mu.RLock()
	defer fh.mu.RUnlock()
	return fh.numPages
}

// AddNewPage extends the file by one zeroed page and returns its index.
func (fh *FileHandle) AddNewPage() (uint32, error) {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	idx := fh.numPages
	var zero Page
	if _, err := fh.file.WriteAt(zero[:], int64(idx)*PageSize); err != nil {
		return 0, fmt.Errorf("add new page %d to %q: %w", idx, fh.path, err)
	}
	fh.numPages++
	return idx, nil
}

func (fh *FileHandle) readPageAt(idx uint32, dst *Page) error {
	n, err := fh.file.ReadAt(dst[:], int64(idx)*PageSize)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read page %d from %q: %w", idx, fh.path, err)
	}
	if n < PageSize {
		// Page index within bounds but never written (e.g. freshly
		// added, not yet flushed): treat the remainder as zero.
		for i := n; i < PageSize; i++ {
			dst[i] = 0
		}
	}
	return nil
}

func (fh *FileHandle) writePageAt(idx uint32, src *Page) error {
	if _, err := fh.file.WriteAt(src[:], int64(idx)*PageSize); err != nil {
		return fmt.Errorf("write page %d to %q: %w", idx, fh.path, err)
	}
	return nil
}

func (fh *FileHandle) Sync() error { return fh.file.Sync() }
func (fh *FileHandle) Close() error { return fh.file.Close() }

// PinMode selects whether Pin must read the page's current on-disk
// contents or skip the disk read because the caller is about to overwrite
// the frame (a frame not already resident then comes back zeroed),
// mirroring the READ_PAGE / DONT_READ_PAGE distinction the page versioning
// layer relies on when pinning a brand-new WAL page version.
type PinMode int

const (
	ReadPage PinMode = iota
	DontReadPage
)

type frameKey struct {
	file *FileHandle
	page uint32
}

// Frame is one cached page plus the metadata the buffer pool and the page
// versioning layer coordinate pin/unpin and optimistic reads through. seq
// is a seqlock-style counter: odd while a writer holds the frame, even
// otherwise; a reader can detect a concurrent write by comparing seq
// before and after copying the data out.
type Frame struct {
	Data     Page
	Latch    sync.RWMutex
	pinCount int32
	dirty    atomic.Bool
	seq      atomic.Uint64
	key      frameKey
}

func (f *Frame) Dirty() bool { return f.dirty.Load() }

// BeginWrite must be called (seqlock writer side) before mutating Data
// directly and EndWrite after, so concurrent OptimisticRead callers can
// detect the change.
func (f *Frame) BeginWrite() { f.seq.Add(1) }
func (f *Frame) EndWrite()   { f.seq.Add(1); f.dirty.Store(true) }

// OptimisticRead runs fn against a snapshot of the frame's bytes without
// taking the latch, retrying if a writer raced it, the same pattern
// db_file_utils.cpp's optimisticRead call implements around WAL page
// copies.
func (f *Frame) OptimisticRead(fn func(data *Page)) {
	for {
		s1 := f.seq.Load()
		if s1%2 == 1 {
			continue
		}
		snapshot := f.Data
		s2 := f.seq.Load()
		if s1 == s2 {
			fn(&snapshot)
			return
		}
	}
}

// BufferPool caches pinned pages across file handles. Unlike the original
// heap manager, which buffers nothing and hits disk on every Read/Write,
// pages here stay resident while pinned and are only guaranteed durable
// once the WAL (pkg/wal) and the page versioning layer (pkg/pageversion)
// have done their job.
type BufferPool struct {
	mu      sync.Mutex
	frames  map[frameKey]*Frame
	metrics *metrics.Registry
}

func NewBufferPool() *BufferPool {
	return &BufferPool{frames: make(map[frameKey]*Frame)}
}

// WithMetrics attaches a metrics registry that Pin/Unpin report pin and
// hit/miss counts to. A nil registry (the default from NewBufferPool) is
// a valid no-op.
func (bp *BufferPool) WithMetrics(m *metrics.Registry) *BufferPool {
	bp.metrics = m
	return bp
}

// Pin returns the frame for (fh, pageIdx), loading it from disk first if
// mode is ReadPage and it isn't already resident. The frame is returned
// with its pin count incremented; callers must call Unpin exactly once
// per Pin, on every exit path including error paths, per the scoped
// release discipline the versioning layer enforces.
func (bp *BufferPool) Pin(fh *FileHandle, pageIdx uint32, mode PinMode) (*Frame, error) {
	key := frameKey{fh, pageIdx}

	bp.mu.Lock()
	fr, ok := bp.frames[key]
	if !ok {
		fr = &Frame{key: key}
		bp.frames[key] = fr
	}
	atomic.AddInt32(&fr.pinCount, 1)
	bp.mu.Unlock()
	bp.metrics.PinObserved(ok)

	if !ok && mode == ReadPage {
		if err := fh.readPageAt(pageIdx, &fr.Data); err != nil {
			bp.Unpin(fr, false)
			return nil, err
		}
	}
	return fr, nil
}

// Unpin decrements the pin count and, if the frame is unpinned and dirty,
// flushes it to its backing file. dirty additionally marks the frame
// dirty before the check, matching setLockedPageDirty's role in the
// original update/insert page paths.
func (bp *BufferPool) Unpin(fr *Frame, dirty bool) error {
	if dirty {
		fr.dirty.Store(true)
	}
	remaining := atomic.AddInt32(&fr.pinCount, -1)
	if remaining > 0 {
		return nil
	}
	if !fr.dirty.Load() {
		return nil
	}
	fr.Latch.Lock()
	data := fr.Data
	fr.dirty.Store(false)
	fr.Latch.Unlock()
	return fr.key.file.writePageAt(fr.key.page, &data)
}

// Evict drops a frame from the pool without flushing it; callers must
// ensure it is unpinned and clean (or intentionally discarded, e.g. after
// a transaction rollback) first.
func (bp *BufferPool) Evict(fh *FileHandle, pageIdx uint32) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	delete(bp.frames, frameKey{fh, pageIdx})
}

// FlushAll writes every dirty, unpinned frame back to its file. Called at
// checkpoint time.
func (bp *BufferPool) FlushAll() error {
	bp.mu.Lock()
	frames := make([]*Frame, 0, len(bp.frames))
	for _, fr := range bp.frames {
		frames = append(frames, fr)
	}
	bp.mu.Unlock()

	for _, fr := range frames {
		if atomic.LoadInt32(&fr.pinCount) != 0 || !fr.dirty.Load() {
			continue
		}
		fr.Latch.Lock()
		data := fr.Data
		fr.dirty.Store(false)
		fr.Latch.Unlock()
		if err := fr.key.file.writePageAt(fr.key.page, &data); err != nil {
			return err
		}
	}
	return nil
}
