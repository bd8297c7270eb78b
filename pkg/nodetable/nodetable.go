// Package nodetable implements the node table mutation protocol: insert,
// update, delete with primary-key index maintenance, one row per page.
//
// Grounded line-for-line on original_source's
// src/storage/store/node_table.cpp (insert/update/delete_/insertPK/
// updatePK, the nullPKException/duplicatePKException paths, and the
// addNode/deleteNode free-list bookkeeping implied by
// NodesStoreStatsAndDeletedIDs), wired onto this module's own
// pkg/pageversion + pkg/hashindex instead of kuzu's column store.
package nodetable

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/bobboyms/graphdb/pkg/catalog"
	"github.com/bobboyms/graphdb/pkg/graphdberr"
	"github.com/bobboyms/graphdb/pkg/hashindex"
	"github.com/bobboyms/graphdb/pkg/pager"
	"github.com/bobboyms/graphdb/pkg/pageversion"
	"github.com/bobboyms/graphdb/pkg/rowscan"
	"github.com/bobboyms/graphdb/pkg/valuevec"
)

// rowPageHeaderSize is the length prefix ahead of the BSON-encoded
// property document each row's page holds.
const rowPageHeaderSize = 4

func encodeRowPage(props map[string]any) (pager.Page, error) {
	raw, err := valuevec.EncodeProperties(props)
	if err != nil {
		return pager.Page{}, err
	}
	if len(raw) > pager.PageSize-rowPageHeaderSize {
		return pager.Page{}, fmt.Errorf("nodetable: encoded row of %d bytes exceeds page capacity", len(raw))
	}
	var p pager.Page
	binary.LittleEndian.PutUint32(p[0:4], uint32(len(raw)))
	copy(p[rowPageHeaderSize:], raw)
	return p, nil
}

func decodeRowPage(p *pager.Page) (map[string]any, error) {
	n := binary.LittleEndian.Uint32(p[0:4])
	if int(n) > pager.PageSize-rowPageHeaderSize {
		return nil, fmt.Errorf("nodetable: corrupt row page, length prefix %d out of range", n)
	}
	return valuevec.DecodeProperties(p[rowPageHeaderSize : rowPageHeaderSize+int(n)])
}

// Allocator is the per-table deleted-IDs free list plus high-water mark
// described in SPEC_FULL's Catalog/Deleted-IDs allocator section:
// allocate() pops the free list first, else bumps the high-water mark.
type Allocator struct {
	mu            sync.Mutex
	freeList      []uint64
	released      map[uint64]bool
	highWaterMark uint64
}

func (a *Allocator) Allocate() (offset uint64, reused bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.freeList); n > 0 {
		offset = a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		delete(a.released, offset)
		return offset, true
	}
	offset = a.highWaterMark
	a.highWaterMark++
	return offset, false
}

func (a *Allocator) Release(offset uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freeList = append(a.freeList, offset)
	if a.released == nil {
		a.released = make(map[uint64]bool)
	}
	a.released[offset] = true
}

// IsLive reports whether offset currently holds a row — i.e. it has been
// allocated and not since released — used by Scan to skip tombstoned
// pages.
func (a *Allocator) IsLive(offset uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return offset < a.highWaterMark && !a.released[offset]
}

// HighWaterMark returns the smallest offset never yet allocated, the
// exclusive upper bound a full Scan walks up to.
func (a *Allocator) HighWaterMark() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.highWaterMark
}

// Table is one node table: its data pages, optional PK hash index (absent
// for SERIAL-keyed tables, mirroring initializePKIndex's skip), and the
// offset allocator.
type Table struct {
	Schema    *catalog.NodeTableSchema
	FileID    pageversion.FileID
	Mgr       *pageversion.Manager
	PKIndex   *hashindex.Index // nil when Schema.PKColumn is negative (no PK column)
	Allocator Allocator
}

func New(schema *catalog.NodeTableSchema, fileID pageversion.FileID, mgr *pageversion.Manager, pkIndex *hashindex.Index) (*Table, error) {
	if schema.PKColumn >= 0 {
		if _, err := schema.PKType(); err != nil {
			return nil, err
		}
		if pkIndex == nil {
			return nil, fmt.Errorf("nodetable: table %q declares a primary key column but no PK index was supplied", schema.Name)
		}
	}
	return &Table{Schema: schema, FileID: fileID, Mgr: mgr, PKIndex: pkIndex}, nil
}

func (t *Table) pkValue(props map[string]any) (valuevec.Value, error) {
	col := t.Schema.Columns[t.Schema.PKColumn]
	raw, ok := props[col.Name]
	if !ok || raw == nil {
		return valuevec.NullValue(col.Type), nil
	}
	return valuevec.Value{Type: col.Type, Data: raw}, nil
}

// Insert writes a new row, maintaining the PK index. Matches
// node_table.cpp's insert() + insertPK(): a null PK value is rejected
// before any page is touched (nullPKException), and a pre-existing key
// is reported as DuplicatePrimaryKeyError (duplicatePKException) after the
// allocated offset is released; the row page already written is left as
// it is.
func (t *Table) Insert(props map[string]any) (offset uint64, err error) {
	var key valuevec.Comparable
	if t.Schema.PKColumn >= 0 {
		pkVal, err := t.pkValue(props)
		if err != nil {
			return 0, err
		}
		if pkVal.IsNull {
			return 0, &graphdberr.NullPrimaryKeyError{Table: t.Schema.Name}
		}
		key, err = valuevec.KeyFromValue(pkVal)
		if err != nil {
			return 0, err
		}
	}

	offset, reused := t.Allocator.Allocate()
	page, err := encodeRowPage(props)
	if err != nil {
		t.Allocator.Release(offset)
		return 0, err
	}

	if reused {
		err = t.Mgr.UpdatePage(t.FileID, uint32(offset), func(data *pager.Page) error {
			*data = page
			return nil
		})
	} else {
		var newIdx uint32
		newIdx, err = t.Mgr.InsertNewPage(t.FileID, func(data *pager.Page) { *data = page })
		if err == nil && uint64(newIdx) != offset {
			err = fmt.Errorf("nodetable: page/offset drift, expected %d got %d", offset, newIdx)
		}
	}
	if err != nil {
		t.Allocator.Release(offset)
		return 0, err
	}

	if key != nil {
		inserted, ierr := t.PKIndex.Insert(key, valuevec.InternalID{TableID: t.Schema.TableID, Offset: offset})
		if ierr != nil {
			t.Allocator.Release(offset)
			return 0, ierr
		}
		if !inserted {
			t.Allocator.Release(offset)
			return 0, &graphdberr.DuplicatePrimaryKeyError{Table: t.Schema.Name, Key: key.String()}
		}
	}

	return offset, nil
}

// Read decodes the property document stored at offset.
func (t *Table) Read(offset uint64) (map[string]any, error) {
	fr, release, err := t.Mgr.ReadCurrent(t.FileID, uint32(offset))
	if err != nil {
		return nil, err
	}
	defer release()
	return decodeRowPage(&fr.Data)
}

// Update rewrites the row at offset. When the PK column's value changes,
// the index is updated to match (updatePK: delete old key, insert new
// key), surfacing DuplicatePrimaryKeyError if the new key already exists
// elsewhere.
func (t *Table) Update(offset uint64, props map[string]any) error {
	var newKey valuevec.Comparable
	var oldKey valuevec.Comparable

	if t.Schema.PKColumn >= 0 {
		existing, err := t.Read(offset)
		if err != nil {
			return err
		}
		oldVal, err := t.pkValue(existing)
		if err != nil {
			return err
		}
		if !oldVal.IsNull {
			oldKey, err = valuevec.KeyFromValue(oldVal)
			if err != nil {
				return err
			}
		}
		newVal, err := t.pkValue(props)
		if err != nil {
			return err
		}
		if newVal.IsNull {
			return &graphdberr.NullPrimaryKeyError{Table: t.Schema.Name}
		}
		newKey, err = valuevec.KeyFromValue(newVal)
		if err != nil {
			return err
		}
	}

	page, err := encodeRowPage(props)
	if err != nil {
		return err
	}
	if err := t.Mgr.UpdatePage(t.FileID, uint32(offset), func(data *pager.Page) error {
		*data = page
		return nil
	}); err != nil {
		return err
	}

	if newKey != nil && (oldKey == nil || oldKey.Compare(newKey) != 0) {
		if oldKey != nil {
			if _, err := t.PKIndex.Delete(oldKey); err != nil {
				return err
			}
		}
		inserted, err := t.PKIndex.Insert(newKey, valuevec.InternalID{TableID: t.Schema.TableID, Offset: offset})
		if err != nil {
			return err
		}
		if !inserted {
			return &graphdberr.DuplicatePrimaryKeyError{Table: t.Schema.Name, Key: newKey.String()}
		}
	}
	return nil
}

// RelChecker lets the node table ask whether deleting a row would violate
// the "no dangling rels" constraint, without importing pkg/reltable
// directly (the capability-interface pattern in SPEC_FULL §9).
type RelChecker interface {
	HasConnectedRels(tableID uint64, offset uint64) (bool, error)
}

// Delete removes the row at offset, maintaining the PK index, after
// confirming via checker (if non-nil) that no rel table still references
// this node — node_table.cpp's delete_() reads the PK first so it can be
// removed from the index even though the row itself is about to be freed.
func (t *Table) Delete(offset uint64, checker RelChecker) error {
	if checker != nil {
		has, err := checker.HasConnectedRels(t.Schema.TableID, offset)
		if err != nil {
			return err
		}
		if has {
			return &graphdberr.NodeHasConnectedRelsError{Table: t.Schema.Name, Offset: offset}
		}
	}

	if t.Schema.PKColumn >= 0 {
		props, err := t.Read(offset)
		if err != nil {
			return err
		}
		pkVal, err := t.pkValue(props)
		if err != nil {
			return err
		}
		if !pkVal.IsNull {
			key, err := valuevec.KeyFromValue(pkVal)
			if err != nil {
				return err
			}
			if _, err := t.PKIndex.Delete(key); err != nil {
				return err
			}
		}
	}

	t.Allocator.Release(offset)
	return nil
}

// AddColumn extends the table with a new property column and backfills
// every live row with defaultValue, mirroring node_table.cpp's
// addColumn(): extend the schema's column metadata first, then rewrite
// each existing row's page with the new property set to its default.
// Every rewritten page flows through Mgr.UpdatePage, which is what
// registers this table's file as updated in the WAL — there is no
// separate column store to append to (see DESIGN.md), so the default
// value is folded directly into each row's property document.
func (t *Table) AddColumn(cat *catalog.Catalog, property string, colType valuevec.LogicalTypeID, defaultValue any) error {
	if _, err := cat.AddNodeColumn(t.Schema.Name, catalog.ColumnSchema{Name: property, Type: colType}); err != nil {
		return err
	}

	high := t.Allocator.HighWaterMark()
	for offset := uint64(0); offset < high; offset++ {
		if !t.Allocator.IsLive(offset) {
			continue
		}
		props, err := t.Read(offset)
		if err != nil {
			return err
		}
		props[property] = defaultValue
		page, err := encodeRowPage(props)
		if err != nil {
			return err
		}
		if err := t.Mgr.UpdatePage(t.FileID, uint32(offset), func(data *pager.Page) error {
			*data = page
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// Scan walks every live row in offset order, decoding its property
// document and testing column's value against cond, invoking fn for each
// match. fn returning false stops the scan early. Unlike a PKIndex
// lookup this has no shortcut — every allocated offset is visited — so
// it's the fallback path for any predicate that isn't an indexed PK
// equality check, per rowscan's ShouldSeek doc comment.
func (t *Table) Scan(column string, cond *rowscan.Condition, fn func(offset uint64, props map[string]any) bool) error {
	colIdx := -1
	for i, c := range t.Schema.Columns {
		if c.Name == column {
			colIdx = i
			break
		}
	}
	if colIdx < 0 {
		return fmt.Errorf("nodetable: table %q has no column %q", t.Schema.Name, column)
	}
	colType := t.Schema.Columns[colIdx].Type

	high := t.Allocator.HighWaterMark()
	for offset := uint64(0); offset < high; offset++ {
		if !t.Allocator.IsLive(offset) {
			continue
		}
		props, err := t.Read(offset)
		if err != nil {
			return err
		}
		raw, ok := props[column]
		if !ok || raw == nil {
			continue
		}
		key, err := valuevec.KeyFromValue(valuevec.Value{Type: colType, Data: raw})
		if err != nil {
			return err
		}
		if !cond.Matches(key) {
			continue
		}
		if !fn(offset, props) {
			return nil
		}
	}
	return nil
}
