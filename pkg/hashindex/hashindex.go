// Package hashindex implements the primary-key hash index: 256
// independently-hashed partitions, each a linear-hashed table of primary
// slots with overflow chaining, matching the point-lookup/duplicate-check
// structure node tables use to enforce PK uniqueness.
//
// Grounded on original_source's
// src/include/storage/index/hash_index_utils.h (NUM_HASH_INDEXES,
// fingerprinting, getPrimarySlotIdForHash linear-hashing arithmetic,
// getNumRequiredEntries load-factor formula) with on-disk slot paging
// adapted from the teacher's pkg/btree node/page persistence idiom
// (fixed-size pages holding a packed entry array plus a header).
package hashindex

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/bobboyms/graphdb/pkg/graphdberr"
	"github.com/bobboyms/graphdb/pkg/metrics"
	"github.com/bobboyms/graphdb/pkg/pager"
	"github.com/bobboyms/graphdb/pkg/pageversion"
	"github.com/bobboyms/graphdb/pkg/valuevec"
)

const (
	// NumPartitionsLog2 / NumPartitions mirror NUM_HASH_INDEXES_LOG2 /
	// NUM_HASH_INDEXES: keys are sharded 256 ways up front so each
	// partition's linear-hash table stays small.
	NumPartitionsLog2 = 8
	NumPartitions     = 1 << NumPartitionsLog2

	// DefaultLoadFactor is the fraction of (numPrimarySlots *
	// entriesPerSlot) capacity the index targets before splitting,
	// matching hash_index_utils.h's DEFAULT_HT_LOAD_FACTOR.
	DefaultLoadFactor = 0.8

	maxKeyLen       = 48
	entrySize       = 1 + 2 + maxKeyLen + 16 // fingerprint + keyLen + key + InternalID
	slotHeaderSize  = 9                       // numEntries(1) + nextOverflowPageIdx(8)
	maxEntriesPerSlot = (pager.PageSize - slotHeaderSize) / entrySize

	headerPageIdx = 0 // partition header lives in primary-slots page 0
)

// hash64 is the key hash function the partitioning, fingerprinting and
// linear-hashing formulas below all derive from. hash_index_utils.h
// leaves the hash function itself external; FNV-1a is used here as the
// concrete choice.
func hash64(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}

// SerializeKey turns a Comparable PK value into the fixed-width byte
// string entries store and compare, tagging the first byte with the
// dynamic type so Compare-equal values of different Go types never alias.
//
// Unlike the ku_string scheme this is grounded on — inline storage up to 12
// bytes, an overflow pointer beyond that, with a (length, prefix) fast path
// before ever dereferencing the pointer — this implementation has no
// overflow page for keys, an intentional scope cut recorded in DESIGN.md.
// Every string PK longer than maxKeyLen-1 bytes is rejected up front with a
// typed, malformed-input error rather than being silently truncated or
// failing deep inside slot encoding.
func SerializeKey(k valuevec.Comparable) ([]byte, error) {
	var tag byte
	var payload []byte
	switch v := k.(type) {
	case valuevec.IntKey:
		tag = 1
		payload = make([]byte, 8)
		binary.BigEndian.PutUint64(payload, uint64(v))
	case valuevec.VarcharKey:
		tag = 2
		payload = []byte(v)
	case valuevec.FloatKey:
		tag = 3
		payload = make([]byte, 8)
		binary.BigEndian.PutUint64(payload, math.Float64bits(float64(v)))
	case valuevec.BoolKey:
		tag = 4
		if v {
			payload = []byte{1}
		} else {
			payload = []byte{0}
		}
	case valuevec.DateKey:
		tag = 5
		payload = make([]byte, 8)
		binary.BigEndian.PutUint64(payload, uint64(time.Time(v).UnixNano()))
	default:
		return nil, fmt.Errorf("hashindex: unsupported key type %T", k)
	}
	if len(payload) > maxKeyLen-1 {
		return nil, &graphdberr.KeyTooLongError{Length: len(payload), MaxLength: maxKeyLen - 1}
	}
	out := make([]byte, 1+len(payload))
	out[0] = tag
	copy(out[1:], payload)
	return out, nil
}

func getFingerprint(h uint64) uint8 {
	return uint8((h >> (64 - NumPartitionsLog2 - 8)) & 0xFF)
}

// PartitionFor returns which of the 256 partitions a key's hash routes to.
func PartitionFor(h uint64) int {
	return int((h >> (64 - NumPartitionsLog2)) & (NumPartitions - 1))
}

// getNumRequiredEntries mirrors hash_index_utils.h's
// getNumRequiredEntries: the entry capacity (not a slot count) needed to
// keep load factor under DefaultLoadFactor after adding newEntries to an
// index already holding existingEntries.
func getNumRequiredEntries(existingEntries, newEntries uint64) uint64 {
	total := float64(existingEntries + newEntries)
	return uint64(math.Ceil(total / DefaultLoadFactor))
}

// Entry is one fingerprint/key/value triple stored in a primary or
// overflow slot.
type Entry struct {
	Fingerprint uint8
	Key         []byte
	Value       valuevec.InternalID
}

func encodeEntry(e Entry) []byte {
	buf := make([]byte, entrySize)
	buf[0] = e.Fingerprint
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(e.Key)))
	copy(buf[3:3+maxKeyLen], e.Key)
	binary.LittleEndian.PutUint64(buf[3+maxKeyLen:3+maxKeyLen+8], e.Value.TableID)
	binary.LittleEndian.PutUint64(buf[3+maxKeyLen+8:3+maxKeyLen+16], e.Value.Offset)
	return buf
}

func decodeEntry(buf []byte) Entry {
	keyLen := binary.LittleEndian.Uint16(buf[1:3])
	key := make([]byte, keyLen)
	copy(key, buf[3:3+int(keyLen)])
	return Entry{
		Fingerprint: buf[0],
		Key:         key,
		Value: valuevec.InternalID{
			TableID: binary.LittleEndian.Uint64(buf[3+maxKeyLen : 3+maxKeyLen+8]),
			Offset:  binary.LittleEndian.Uint64(buf[3+maxKeyLen+8 : 3+maxKeyLen+16]),
		},
	}
}

// slotPage is the decoded form of one primary or overflow slot page.
type slotPage struct {
	entries          []Entry
	nextOverflowIdx  int64 // -1 if no overflow chained
}

func decodeSlotPage(p *pager.Page) slotPage {
	n := int(p[0])
	next := int64(binary.LittleEndian.Uint64(p[1:9]))
	sp := slotPage{nextOverflowIdx: next}
	off := slotHeaderSize
	for i := 0; i < n; i++ {
		sp.entries = append(sp.entries, decodeEntry(p[off:off+entrySize]))
		off += entrySize
	}
	return sp
}

func encodeSlotPage(sp slotPage, p *pager.Page) error {
	if len(sp.entries) > maxEntriesPerSlot {
		return fmt.Errorf("hashindex: slot overflow, %d entries exceeds capacity %d", len(sp.entries), maxEntriesPerSlot)
	}
	p[0] = byte(len(sp.entries))
	binary.LittleEndian.PutUint64(p[1:9], uint64(sp.nextOverflowIdx))
	off := slotHeaderSize
	for _, e := range sp.entries {
		copy(p[off:off+entrySize], encodeEntry(e))
		off += entrySize
	}
	for i := off; i < pager.PageSize; i++ {
		p[i] = 0
	}
	return nil
}

// header is partition page 0: the linear-hashing bookkeeping
// hash_index_utils.h's getPrimarySlotIdForHash consumes.
type header struct {
	numPrimarySlots      uint64
	nextSplitSlotId      uint64
	levelHashMask        uint64
	higherLevelHashMask  uint64
	numEntries           uint64
}

func decodeHeader(p *pager.Page) header {
	return header{
		numPrimarySlots:     binary.LittleEndian.Uint64(p[0:8]),
		nextSplitSlotId:     binary.LittleEndian.Uint64(p[8:16]),
		levelHashMask:       binary.LittleEndian.Uint64(p[16:24]),
		higherLevelHashMask: binary.LittleEndian.Uint64(p[24:32]),
		numEntries:          binary.LittleEndian.Uint64(p[32:40]),
	}
}

func encodeHeader(h header, p *pager.Page) {
	binary.LittleEndian.PutUint64(p[0:8], h.numPrimarySlots)
	binary.LittleEndian.PutUint64(p[8:16], h.nextSplitSlotId)
	binary.LittleEndian.PutUint64(p[16:24], h.levelHashMask)
	binary.LittleEndian.PutUint64(p[24:32], h.higherLevelHashMask)
	binary.LittleEndian.PutUint64(p[32:40], h.numEntries)
}

// Partition is one of the 256 independently linear-hashed sub-tables. Its
// primary and overflow pages are registered with mgr under their own
// FileIDs (see PrimaryFileID/OverflowFileID) so every slot/header mutation
// goes through the same Page Versioning Layer the node/rel tables use: a
// writer's changes live in a WAL-shadow page until the owning transaction
// calls mgr.Checkpoint(), and mgr.Rollback() discards them untouched,
// matching spec.md §4.3's durability requirement and invariant 1 (a PK
// index entry never becomes visible, or disappears, outside of a committed
// transaction).
type Partition struct {
	mgr            *pageversion.Manager
	primaryFileID  pageversion.FileID
	overflowFileID pageversion.FileID
	metrics        *metrics.Registry
}

// PrimaryFileID and OverflowFileID give partition i's two page files a
// stable FileID under a shared pageversion.Manager: 2i for the primary
// slots, 2i+1 for the overflow chain, so one Manager (and therefore one
// WAL writer and one LSN allocator) can version all 256 partitions.
func PrimaryFileID(i int) pageversion.FileID  { return pageversion.FileID(2 * i) }
func OverflowFileID(i int) pageversion.FileID { return pageversion.FileID(2*i + 1) }

func newPartition(mgr *pageversion.Manager, i int) (*Partition, error) {
	part := &Partition{mgr: mgr, primaryFileID: PrimaryFileID(i), overflowFileID: OverflowFileID(i)}
	if mgr.NumPages(part.primaryFileID) == 0 {
		if _, err := mgr.InsertNewPage(part.primaryFileID, func(data *pager.Page) {}); err != nil { // header page
			return nil, err
		}
		if _, err := mgr.InsertNewPage(part.primaryFileID, func(data *pager.Page) { // slot 0
			_ = encodeSlotPage(slotPage{nextOverflowIdx: -1}, data)
		}); err != nil {
			return nil, err
		}
		h := header{numPrimarySlots: 1, nextSplitSlotId: 0, levelHashMask: 0, higherLevelHashMask: 1}
		if err := part.writeHeader(h); err != nil {
			return nil, err
		}
	}
	return part, nil
}

func (p *Partition) readHeader() (header, error) {
	fr, release, err := p.mgr.ReadCurrent(p.primaryFileID, headerPageIdx)
	if err != nil {
		return header{}, err
	}
	defer release()
	var h header
	fr.OptimisticRead(func(data *pager.Page) { h = decodeHeader(data) })
	return h, nil
}

func (p *Partition) writeHeader(h header) error {
	return p.mgr.UpdatePage(p.primaryFileID, headerPageIdx, func(data *pager.Page) error {
		encodeHeader(h, data)
		return nil
	})
}

func (p *Partition) slotIDForHash(h header, keyHash uint64) uint64 {
	slotID := keyHash & h.levelHashMask
	if slotID < h.nextSplitSlotId {
		slotID = keyHash & h.higherLevelHashMask
	}
	return slotID
}

func (p *Partition) primaryPageIdx(slotID uint64) uint32 { return uint32(slotID) + 1 }

// Lookup returns the value stored for key, or ok=false if absent.
func (p *Partition) Lookup(key []byte, keyHash uint64) (valuevec.InternalID, bool, error) {
	h, err := p.readHeader()
	if err != nil {
		return valuevec.InternalID{}, false, err
	}
	fp := getFingerprint(keyHash)
	slotID := p.slotIDForHash(h, keyHash)

	sp, err := p.readSlot(p.primaryFileID, p.primaryPageIdx(slotID))
	if err != nil {
		return valuevec.InternalID{}, false, err
	}
	for {
		for _, e := range sp.entries {
			if e.Fingerprint == fp && string(e.Key) == string(key) {
				return e.Value, true, nil
			}
		}
		if sp.nextOverflowIdx < 0 {
			return valuevec.InternalID{}, false, nil
		}
		sp, err = p.readSlot(p.overflowFileID, uint32(sp.nextOverflowIdx))
		if err != nil {
			return valuevec.InternalID{}, false, err
		}
	}
}

func (p *Partition) readSlot(fileID pageversion.FileID, pageIdx uint32) (slotPage, error) {
	fr, release, err := p.mgr.ReadCurrent(fileID, pageIdx)
	if err != nil {
		return slotPage{}, err
	}
	defer release()
	var sp slotPage
	fr.OptimisticRead(func(data *pager.Page) { sp = decodeSlotPage(data) })
	return sp, nil
}

func (p *Partition) writeSlot(fileID pageversion.FileID, pageIdx uint32, sp slotPage) error {
	return p.mgr.UpdatePage(fileID, pageIdx, func(data *pager.Page) error {
		return encodeSlotPage(sp, data)
	})
}

// Insert adds key -> value, returning (false, nil) if key already exists
// (a duplicate PK — the caller turns this into DuplicatePrimaryKeyError),
// or triggers a split first if the load factor formula calls for it.
func (p *Partition) Insert(key []byte, keyHash uint64, value valuevec.InternalID) (inserted bool, err error) {
	h, err := p.readHeader()
	if err != nil {
		return false, err
	}

	if _, exists, err := p.Lookup(key, keyHash); err != nil {
		return false, err
	} else if exists {
		return false, nil
	}

	if getNumRequiredEntries(h.numEntries, 1) > h.numPrimarySlots*uint64(maxEntriesPerSlot) {
		if err := p.split(); err != nil {
			return false, err
		}
		if h, err = p.readHeader(); err != nil {
			return false, err
		}
	}

	fp := getFingerprint(keyHash)
	slotID := p.slotIDForHash(h, keyHash)
	pageIdx := p.primaryPageIdx(slotID)

	sp, err := p.readSlot(p.primaryFileID, pageIdx)
	if err != nil {
		return false, err
	}
	if err := p.insertIntoChain(p.primaryFileID, pageIdx, sp, Entry{Fingerprint: fp, Key: key, Value: value}); err != nil {
		return false, err
	}

	h.numEntries++
	if err := p.writeHeader(h); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Partition) insertIntoChain(fileID pageversion.FileID, pageIdx uint32, sp slotPage, e Entry) error {
	if len(sp.entries) < maxEntriesPerSlot {
		sp.entries = append(sp.entries, e)
		return p.writeSlot(fileID, pageIdx, sp)
	}
	if sp.nextOverflowIdx >= 0 {
		next, err := p.readSlot(p.overflowFileID, uint32(sp.nextOverflowIdx))
		if err != nil {
			return err
		}
		return p.insertIntoChain(p.overflowFileID, uint32(sp.nextOverflowIdx), next, e)
	}
	// Allocate a new overflow slot and chain it.
	newSlot := slotPage{entries: []Entry{e}, nextOverflowIdx: -1}
	newIdx, err := p.mgr.InsertNewPage(p.overflowFileID, func(data *pager.Page) {
		_ = encodeSlotPage(newSlot, data)
	})
	if err != nil {
		return err
	}
	sp.nextOverflowIdx = int64(newIdx)
	return p.writeSlot(fileID, pageIdx, sp)
}

// Delete removes key, returning ok=false if it wasn't present.
func (p *Partition) Delete(key []byte, keyHash uint64) (ok bool, err error) {
	h, err := p.readHeader()
	if err != nil {
		return false, err
	}
	fp := getFingerprint(keyHash)
	slotID := p.slotIDForHash(h, keyHash)
	pageIdx := p.primaryPageIdx(slotID)

	fileID := p.primaryFileID
	for {
		sp, err := p.readSlot(fileID, pageIdx)
		if err != nil {
			return false, err
		}
		for i, e := range sp.entries {
			if e.Fingerprint == fp && string(e.Key) == string(key) {
				sp.entries = append(sp.entries[:i], sp.entries[i+1:]...)
				if err := p.writeSlot(fileID, pageIdx, sp); err != nil {
					return false, err
				}
				h.numEntries--
				return true, p.writeHeader(h)
			}
		}
		if sp.nextOverflowIdx < 0 {
			return false, nil
		}
		fileID = p.overflowFileID
		pageIdx = uint32(sp.nextOverflowIdx)
	}
}

// split performs one step of linear hashing: the slot at nextSplitSlotId
// is redistributed into itself and a freshly appended slot, then
// nextSplitSlotId advances (bumping levelHashMask/higherLevelHashMask and
// resetting to 0 once a full level has been split), mirroring the
// getPrimarySlotIdForHash level-mask arithmetic in reverse.
func (p *Partition) split() error {
	h, err := p.readHeader()
	if err != nil {
		return err
	}

	splitSlotID := h.nextSplitSlotId
	splitPageIdx := p.primaryPageIdx(splitSlotID)

	newSlotID := h.numPrimarySlots
	newPageIdx, err := p.mgr.InsertNewPage(p.primaryFileID, func(data *pager.Page) {
		_ = encodeSlotPage(slotPage{nextOverflowIdx: -1}, data)
	})
	if err != nil {
		return err
	}
	if newPageIdx != p.primaryPageIdx(newSlotID) {
		return fmt.Errorf("hashindex: primary file layout drifted, expected page %d got %d", p.primaryPageIdx(newSlotID), newPageIdx)
	}

	sp, err := p.readSlot(p.primaryFileID, splitPageIdx)
	if err != nil {
		return err
	}

	var stay, move []Entry
	chain := sp
	chainFileID := p.primaryFileID
	for {
		for _, e := range chain.entries {
			eh := hash64(e.Key)
			if eh&h.higherLevelHashMask == newSlotID {
				move = append(move, e)
			} else {
				stay = append(stay, e)
			}
		}
		if chain.nextOverflowIdx < 0 {
			break
		}
		chainFileID = p.overflowFileID
		chain, err = p.readSlot(chainFileID, uint32(chain.nextOverflowIdx))
		if err != nil {
			return err
		}
	}

	if err := p.writeSlot(p.primaryFileID, splitPageIdx, slotPage{entries: stay, nextOverflowIdx: -1}); err != nil {
		return err
	}
	if err := p.writeSlot(p.primaryFileID, newPageIdx, slotPage{entries: move, nextOverflowIdx: -1}); err != nil {
		return err
	}

	h.numPrimarySlots++
	h.nextSplitSlotId++
	if h.nextSplitSlotId >= (h.levelHashMask+1) {
		h.levelHashMask = h.higherLevelHashMask
		h.higherLevelHashMask = (h.higherLevelHashMask << 1) | 1
		h.nextSplitSlotId = 0
	}
	p.metrics.HashIndexSplit()
	return p.writeHeader(h)
}

// Index is the full 256-partition PK hash index. Every partition shares one
// pageversion.Manager, which is what makes the index's slot/header pages
// transactional: a caller registers idx.Manager() with a txn.Transaction
// the same way it registers a node or rel table's manager, so an aborted
// transaction's PK-index writes are rolled back along with its row writes.
type Index struct {
	mgr        *pageversion.Manager
	partitions [NumPartitions]*Partition
	metrics    *metrics.Registry
}

// Manager returns the pageversion.Manager backing every partition's pages,
// for callers to register with a transaction via tx.Use.
func (idx *Index) Manager() *pageversion.Manager { return idx.mgr }

// WithMetrics attaches a metrics registry that Lookup/Insert/split
// report to. A nil registry is a valid no-op.
func (idx *Index) WithMetrics(m *metrics.Registry) *Index {
	idx.metrics = m
	for _, p := range idx.partitions {
		if p != nil {
			p.metrics = m
		}
	}
	return idx
}

// PartitionFileNames returns the primary/overflow data-file names a caller
// should open (or create) for partition i, following the
// "<basePath>.p<i>" / "<basePath>.o<i>" convention this package expects
// callers to wire through pkg/pager.
func PartitionFileNames(basePath string, i int) (primary, overflow string) {
	return fmt.Sprintf("%s.p%03d", basePath, i), fmt.Sprintf("%s.o%03d", basePath, i)
}

// PartitionWALFileNames returns the primary/overflow WAL-version page file
// names for partition i — the side files a pageversion.Manager shadows
// writes into before they are checkpointed onto the data files above.
func PartitionWALFileNames(basePath string, i int) (primaryWAL, overflowWAL string) {
	return fmt.Sprintf("%s.p%03d.wal", basePath, i), fmt.Sprintf("%s.o%03d.wal", basePath, i)
}

// Open builds an Index whose 256 partitions are all versioned through mgr.
// The caller must have already registered, for every partition i,
// PrimaryFileID(i)/OverflowFileID(i) and their WAL-version counterparts in
// mgr's file maps (e.g. via PartitionFileNames/PartitionWALFileNames).
func Open(mgr *pageversion.Manager) (*Index, error) {
	idx := &Index{mgr: mgr}
	for i := 0; i < NumPartitions; i++ {
		part, err := newPartition(mgr, i)
		if err != nil {
			return nil, fmt.Errorf("hashindex: open partition %d: %w", i, err)
		}
		idx.partitions[i] = part
	}
	// The header/slot-0 pages newPartition just created for any
	// previously-empty partition are, at this point, uncommitted WAL
	// versions under mgr — checkpoint them now so partition layout exists
	// on disk before any real transaction starts, rather than being at the
	// mercy of that transaction's eventual commit or rollback.
	if err := mgr.Checkpoint(); err != nil {
		return nil, fmt.Errorf("hashindex: checkpoint initial partition layout: %w", err)
	}
	return idx, nil
}

func (idx *Index) route(key []byte) (*Partition, uint64) {
	h := hash64(key)
	return idx.partitions[PartitionFor(h)], h
}

func (idx *Index) Lookup(key valuevec.Comparable) (valuevec.InternalID, bool, error) {
	kb, err := SerializeKey(key)
	if err != nil {
		return valuevec.InternalID{}, false, err
	}
	part, h := idx.route(kb)
	idx.metrics.HashIndexLookup()
	return part.Lookup(kb, h)
}

func (idx *Index) Insert(key valuevec.Comparable, value valuevec.InternalID) (bool, error) {
	kb, err := SerializeKey(key)
	if err != nil {
		return false, err
	}
	part, h := idx.route(kb)
	inserted, err := part.Insert(kb, h, value)
	if inserted {
		idx.metrics.HashIndexInsert()
	}
	return inserted, err
}

func (idx *Index) Delete(key valuevec.Comparable) (bool, error) {
	kb, err := SerializeKey(key)
	if err != nil {
		return false, err
	}
	part, h := idx.route(kb)
	return part.Delete(kb, h)
}

// SnapshotPartition dumps partition i's primary file as a flat page-image
// byte slice (header page followed by every primary slot page, in page
// order), the payload shape pkg/checkpoint stores per table/partition. Reads
// go through mgr.ReadCurrent so an in-flight transaction's own uncommitted
// writes are reflected, matching the read-your-own-writes semantics every
// other page read in this package gets.
func (idx *Index) SnapshotPartition(i int) ([]byte, error) {
	part := idx.partitions[i]
	n := idx.mgr.NumPages(part.primaryFileID)
	buf := make([]byte, 0, int(n)*pager.PageSize)
	for pageIdx := uint32(0); pageIdx < n; pageIdx++ {
		fr, release, err := idx.mgr.ReadCurrent(part.primaryFileID, pageIdx)
		if err != nil {
			return nil, fmt.Errorf("hashindex: snapshot partition %d page %d: %w", i, pageIdx, err)
		}
		fr.OptimisticRead(func(data *pager.Page) { buf = append(buf, data[:]...) })
		release()
	}
	return buf, nil
}

// RestorePartition overwrites partition i's primary file pages from a byte
// slice previously returned by SnapshotPartition, used to recover a
// partition from its latest checkpoint before replaying any WAL records
// newer than the checkpoint's LSN. Like every other mutation in this
// package, the restored pages land as WAL versions under mgr first; the
// caller commits or rolls back the surrounding transaction as usual.
func (idx *Index) RestorePartition(i int, snapshot []byte) error {
	if len(snapshot)%pager.PageSize != 0 {
		return fmt.Errorf("hashindex: restore partition %d: snapshot length %d not a multiple of page size", i, len(snapshot))
	}
	part := idx.partitions[i]
	numPages := uint32(len(snapshot) / pager.PageSize)
	existing := idx.mgr.NumPages(part.primaryFileID)
	for pageIdx := uint32(0); pageIdx < numPages; pageIdx++ {
		chunk := snapshot[int(pageIdx)*pager.PageSize : (int(pageIdx)+1)*pager.PageSize]
		if pageIdx < existing {
			err := idx.mgr.UpdatePage(part.primaryFileID, pageIdx, func(data *pager.Page) error {
				copy(data[:], chunk)
				return nil
			})
			if err != nil {
				return fmt.Errorf("hashindex: restore partition %d page %d: %w", i, pageIdx, err)
			}
			continue
		}
		if _, err := idx.mgr.InsertNewPage(part.primaryFileID, func(data *pager.Page) {
			copy(data[:], chunk)
		}); err != nil {
			return fmt.Errorf("hashindex: restore partition %d page %d: %w", i, pageIdx, err)
		}
	}
	return nil
}
