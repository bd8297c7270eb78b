// Package pageversion implements the copy-on-write page versioning layer:
// the first write to a page inside a transaction creates a WAL-file
// version of it, and every later reader/writer in that transaction is
// routed to the WAL version instead of the original data file page.
// Committing replays WAL versions over the data file; rolling back just
// drops the side table.
//
// Grounded on original_source's db_file_utils.cpp
// (createWALVersionIfNecessaryAndPinPage, getFileHandleAndPhysicalPageIdxToPin,
// insertNewPage, updatePage) and generalized from that file's single-file
// shape to cover any number of page files a caller registers.
package pageversion

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bobboyms/graphdb/pkg/pager"
	"github.com/bobboyms/graphdb/pkg/wal"
)

// FileID is the small integer a page file is registered under; it is what
// gets embedded in WAL page-image payloads instead of a path.
type FileID uint32

// Manager is the page versioning layer for a group of registered files.
// It is not safe for concurrent use by multiple goroutines belonging to
// different transactions over the same FileID without external
// coordination at the transaction layer (§5): a Manager serves one
// transaction at a time, and a transaction may Use several Managers.
type Manager struct {
	pool *pager.BufferPool
	walw *wal.WALWriter
	lsn  *LSNAllocator

	files map[FileID]*pager.FileHandle
	walFiles map[FileID]*pager.FileHandle // one overflow page file per registered file, holding WAL-version pages

	mu sync.Mutex
	// walPageIdx maps (fileID, originalPageIdx) -> page index inside
	// that file's WAL overflow file, the side table db_file_utils.cpp
	// calls the "WAL page index group".
	walPageIdx map[pageKey]uint32
	pageLocks  map[pageKey]*sync.Mutex
}

type pageKey struct {
	file FileID
	page uint32
}

// LSNAllocator hands out monotonically increasing log sequence numbers.
type LSNAllocator struct {
	mu  sync.Mutex
	cur uint64
}

func NewLSNAllocator(start uint64) *LSNAllocator { return &LSNAllocator{cur: start} }

func (a *LSNAllocator) Next() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cur++
	return a.cur
}

func (a *LSNAllocator) Current() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cur
}

// NewManager builds a versioning layer over the given buffer pool and WAL
// writer. walFiles holds, per registered data FileID, the page file its
// WAL-version pages are appended to (the "wal.<table>" file in spec.md
// §6's file layout).
func NewManager(pool *pager.BufferPool, walw *wal.WALWriter, lsn *LSNAllocator, files map[FileID]*pager.FileHandle, walFiles map[FileID]*pager.FileHandle) *Manager {
	return &Manager{
		pool:       pool,
		walw:       walw,
		lsn:        lsn,
		files:      files,
		walFiles:   walFiles,
		walPageIdx: make(map[pageKey]uint32),
		pageLocks:  make(map[pageKey]*sync.Mutex),
	}
}

func (m *Manager) pageLock(key pageKey) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.pageLocks[key]
	if !ok {
		l = &sync.Mutex{}
		m.pageLocks[key] = l
	}
	return l
}

// NumPages reports how many pages the registered data file for id
// currently has, the bound callers scan up to when walking a table
// linearly.
func (m *Manager) NumPages(file FileID) uint32 {
	fh, ok := m.files[file]
	if !ok {
		return 0
	}
	return fh.NumPages()
}

// ReadOnly pins the page a read-only transaction should see: the original
// data file page, ignoring any uncommitted WAL version, matching
// getFileHandleAndPhysicalPageIdxToPin's READ_ONLY branch.
func (m *Manager) ReadOnly(file FileID, pageIdx uint32) (*pager.Frame, error) {
	fh, ok := m.files[file]
	if !ok {
		return nil, fmt.Errorf("pageversion: unknown file id %d", file)
	}
	return m.pool.Pin(fh, pageIdx, pager.ReadPage)
}

// GetWritableFrame is the transactional write-path entry point: it
// creates the page's WAL version if one doesn't exist yet for this
// transaction and returns the pinned, locked frame the caller should
// mutate in place. Unpin (via Release) must run on every exit path,
// including error paths, which is why callers are expected to `defer
// release()`.
//
// insertingNewPage mirrors db_file_utils.cpp: when true, the WAL version
// is NOT seeded from the original page's contents (there is nothing
// meaningful there yet); when false, the original page is copied into the
// WAL frame before being handed to the caller.
func (m *Manager) GetWritableFrame(file FileID, pageIdx uint32, insertingNewPage bool) (frame *pager.Frame, release func(), err error) {
	key := pageKey{file, pageIdx}
	lock := m.pageLock(key)
	lock.Lock()

	m.mu.Lock()
	walIdx, hasVersion := m.walPageIdx[key]
	m.mu.Unlock()

	walFh, ok := m.walFiles[file]
	if !ok {
		lock.Unlock()
		return nil, nil, fmt.Errorf("pageversion: unknown wal file id %d", file)
	}

	if hasVersion {
		fr, perr := m.pool.Pin(walFh, walIdx, pager.ReadPage)
		if perr != nil {
			lock.Unlock()
			return nil, nil, perr
		}
		return fr, m.releaseFunc(fr, lock, false), nil
	}

	// First writer in this transaction for this page: allocate a new
	// page in the WAL overflow file and log a page record for it.
	newWalIdx, aerr := walFh.AddNewPage()
	if aerr != nil {
		lock.Unlock()
		return nil, nil, aerr
	}

	fr, perr := m.pool.Pin(walFh, newWalIdx, pager.DontReadPage)
	if perr != nil {
		lock.Unlock()
		return nil, nil, perr
	}

	if !insertingNewPage {
		origFh, ok := m.files[file]
		if !ok {
			m.pool.Unpin(fr, false)
			lock.Unlock()
			return nil, nil, fmt.Errorf("pageversion: unknown file id %d", file)
		}
		origFrame, perr := m.pool.Pin(origFh, pageIdx, pager.ReadPage)
		if perr != nil {
			m.pool.Unpin(fr, false)
			lock.Unlock()
			return nil, nil, perr
		}
		origFrame.OptimisticRead(func(data *pager.Page) {
			fr.BeginWrite()
			fr.Data = *data
			fr.EndWrite()
		})
		m.pool.Unpin(origFrame, false)
	}

	if err := m.logPageRecord(file, pageIdx, fr, wal.EntryPageUpdate); err != nil {
		m.pool.Unpin(fr, false)
		lock.Unlock()
		return nil, nil, err
	}

	m.mu.Lock()
	m.walPageIdx[key] = newWalIdx
	m.mu.Unlock()

	return fr, m.releaseFunc(fr, lock, true), nil
}

func (m *Manager) releaseFunc(fr *pager.Frame, lock *sync.Mutex, dirty bool) func() {
	once := false
	return func() {
		if once {
			return
		}
		once = true
		m.pool.Unpin(fr, dirty)
		lock.Unlock()
	}
}

// ReadCurrent pins whichever page a write transaction should currently
// see for (file, pageIdx): the WAL version if one has already been
// created in this transaction, otherwise the original data file page,
// without creating a new WAL version as a side effect. This is the
// read-your-own-writes path; GetWritableFrame is reserved for callers
// that are about to mutate the page.
func (m *Manager) ReadCurrent(file FileID, pageIdx uint32) (frame *pager.Frame, release func(), err error) {
	key := pageKey{file, pageIdx}
	lock := m.pageLock(key)
	lock.Lock()

	m.mu.Lock()
	walIdx, hasVersion := m.walPageIdx[key]
	m.mu.Unlock()

	if hasVersion {
		fr, perr := m.pool.Pin(m.walFiles[file], walIdx, pager.ReadPage)
		if perr != nil {
			lock.Unlock()
			return nil, nil, perr
		}
		return fr, m.releaseFunc(fr, lock, false), nil
	}

	fh, ok := m.files[file]
	if !ok {
		lock.Unlock()
		return nil, nil, fmt.Errorf("pageversion: unknown file id %d", file)
	}
	fr, perr := m.pool.Pin(fh, pageIdx, pager.ReadPage)
	if perr != nil {
		lock.Unlock()
		return nil, nil, perr
	}
	return fr, m.releaseFunc(fr, lock, false), nil
}

// InsertNewPage allocates a brand-new page in the data file, routes it
// through the same WAL-versioning path as an update (insertingNewPage =
// true), lets insertOp populate it, marks it dirty and releases it. It
// mirrors DBFileUtils::insertNewPage's addNewPage + logPageInsertRecord +
// pin(DONT_READ_PAGE) + insertOp + setDirty + unpin sequence.
func (m *Manager) InsertNewPage(file FileID, insertOp func(data *pager.Page)) (pageIdx uint32, err error) {
	fh, ok := m.files[file]
	if !ok {
		return 0, fmt.Errorf("pageversion: unknown file id %d", file)
	}
	newIdx, err := fh.AddNewPage()
	if err != nil {
		return 0, err
	}

	fr, release, err := m.GetWritableFrame(file, newIdx, true)
	if err != nil {
		return 0, err
	}
	defer release()

	fr.BeginWrite()
	insertOp(&fr.Data)
	fr.EndWrite()

	if err := m.logPageRecord(file, newIdx, fr, wal.EntryPageInsert); err != nil {
		return 0, err
	}
	return newIdx, nil
}

// UpdatePage pins the writable frame for (file, pageIdx), runs updateOp
// over it and releases it on every path — the scoped-release pattern
// db_file_utils.cpp's updatePage wraps in a try/catch so unpin/unlock run
// whether updateOp succeeds or panics with an error.
func (m *Manager) UpdatePage(file FileID, pageIdx uint32, updateOp func(data *pager.Page) error) (err error) {
	fr, release, err := m.GetWritableFrame(file, pageIdx, false)
	if err != nil {
		return err
	}
	defer release()

	fr.BeginWrite()
	err = updateOp(&fr.Data)
	fr.EndWrite()
	if err != nil {
		return err
	}
	return m.logPageRecord(file, pageIdx, fr, wal.EntryPageUpdate)
}

func (m *Manager) logPageRecord(file FileID, pageIdx uint32, fr *pager.Frame, entryType uint8) error {
	lsn := m.lsn.Next()
	payload := wal.EncodePagePayload(uint32(file), pageIdx, fr.Data[:])
	entry := wal.AcquireEntry()
	defer wal.ReleaseEntry(entry)
	entry.Header = wal.WALHeader{
		Magic:      wal.WALMagic,
		Version:    wal.WALVersion,
		EntryType:  entryType,
		LSN:        lsn,
		PayloadLen: uint32(len(payload)),
		CRC32:      wal.CalculateCRC32(payload),
	}
	entry.Payload = payload
	return m.walw.WriteEntry(entry)
}

// Checkpoint replays every versioned page back onto its original data
// file page and drops the side table, the in-memory analogue of
// DBFileUtils checkpointing a WAL back into the data files at commit.
func (m *Manager) Checkpoint() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, walIdx := range m.walPageIdx {
		origFh, ok := m.files[key.file]
		if !ok {
			return fmt.Errorf("pageversion: unknown file id %d during checkpoint", key.file)
		}
		walFh := m.walFiles[key.file]

		walFrame, err := m.pool.Pin(walFh, walIdx, pager.ReadPage)
		if err != nil {
			return err
		}
		origFrame, err := m.pool.Pin(origFh, key.page, pager.DontReadPage)
		if err != nil {
			m.pool.Unpin(walFrame, false)
			return err
		}
		origFrame.BeginWrite()
		origFrame.Data = walFrame.Data
		origFrame.EndWrite()
		m.pool.Unpin(origFrame, true)
		m.pool.Unpin(walFrame, false)
	}
	m.walPageIdx = make(map[pageKey]uint32)
	return m.pool.FlushAll()
}

// Recover replays the page-image log at logPath directly onto this
// Manager's registered data files. It is the crash-recovery counterpart
// to Checkpoint: Checkpoint flushes versions a live transaction tracked
// in the in-memory walPageIdx side table, but that table does not
// survive a restart, so after a crash the durable log at logPath is the
// only record of writes that were fsynced but never checkpointed.
// Replaying is idempotent — PageUpdate/PageInsert records are applied in
// log order, last write for a given page wins — so it is safe to call on
// every startup, including a clean shutdown where the log is empty or
// already fully checkpointed. A missing log file is not an error: it
// just means nothing has ever been written yet.
//
// Entries naming a FileID this Manager did not register are skipped, so
// several Managers (e.g. the node table's, each rel direction's and the
// PK index's) can each
// recover from a log file that also carries records for files none of
// them own.
func (m *Manager) Recover(logPath string) error {
	r, err := wal.NewWALReader(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("pageversion: open recovery log %s: %w", logPath, err)
	}
	defer r.Close()

	applied := false
	for {
		entry, err := r.ReadEntry()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("pageversion: recover %s: %w", logPath, err)
		}

		switch entry.Header.EntryType {
		case wal.EntryPageUpdate, wal.EntryPageInsert:
			fileID, pageIdx, page := wal.DecodePagePayload(entry.Payload)
			if err := m.replayPage(FileID(fileID), pageIdx, page); err != nil {
				wal.ReleaseEntry(entry)
				return fmt.Errorf("pageversion: replay file %d page %d: %w", fileID, pageIdx, err)
			}
			applied = true
		}
		wal.ReleaseEntry(entry)
	}

	if !applied {
		return nil
	}
	return m.pool.FlushAll()
}

// replayPage writes page directly onto (file, pageIdx) in the registered
// data file, growing the file with empty pages if the log recorded an
// index past its current end. Files this Manager did not register for
// are silently skipped (see Recover's doc comment).
func (m *Manager) replayPage(file FileID, pageIdx uint32, page []byte) error {
	fh, ok := m.files[file]
	if !ok {
		return nil
	}
	for fh.NumPages() <= pageIdx {
		if _, err := fh.AddNewPage(); err != nil {
			return err
		}
	}

	fr, err := m.pool.Pin(fh, pageIdx, pager.DontReadPage)
	if err != nil {
		return err
	}
	fr.BeginWrite()
	copy(fr.Data[:], page)
	fr.EndWrite()
	m.pool.Unpin(fr, true)
	return nil
}

// Rollback discards every WAL version created by this transaction without
// touching the data files.
func (m *Manager) Rollback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, walIdx := range m.walPageIdx {
		m.pool.Evict(m.walFiles[key.file], walIdx)
	}
	m.walPageIdx = make(map[pageKey]uint32)
}
