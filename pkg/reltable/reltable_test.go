package reltable

import (
	"path/filepath"
	"testing"

	"github.com/bobboyms/graphdb/pkg/catalog"
	"github.com/bobboyms/graphdb/pkg/pager"
	"github.com/bobboyms/graphdb/pkg/pageversion"
	"github.com/bobboyms/graphdb/pkg/valuevec"
	"github.com/bobboyms/graphdb/pkg/wal"
)

func newTestManager(t *testing.T, dir, name string, fileID pageversion.FileID) *pageversion.Manager {
	t.Helper()
	dataFh, err := pager.OpenFileHandle(filepath.Join(dir, name+".db"))
	if err != nil {
		t.Fatalf("OpenFileHandle: %v", err)
	}
	walPagesFh, err := pager.OpenFileHandle(filepath.Join(dir, name+".db.wal"))
	if err != nil {
		t.Fatalf("OpenFileHandle wal: %v", err)
	}
	walw, err := wal.NewWALWriter(filepath.Join(dir, name+".log.wal"), wal.DefaultOptions())
	if err != nil {
		t.Fatalf("NewWALWriter: %v", err)
	}
	t.Cleanup(func() { walw.Close() })
	return pageversion.NewManager(
		pager.NewBufferPool(), walw, pageversion.NewLSNAllocator(0),
		map[pageversion.FileID]*pager.FileHandle{fileID: dataFh},
		map[pageversion.FileID]*pager.FileHandle{fileID: walPagesFh},
	)
}

func newTestRelTable(t *testing.T) *Table {
	t.Helper()
	dir := t.TempDir()

	cat := catalog.New()
	person, err := cat.CreateNodeTable("Person", []catalog.ColumnSchema{{Name: "id", Type: valuevec.StringType}}, 0)
	if err != nil {
		t.Fatalf("CreateNodeTable: %v", err)
	}
	schema, err := cat.CreateRelTable("Knows", person, person, nil)
	if err != nil {
		t.Fatalf("CreateRelTable: %v", err)
	}

	const fwdFileID, bwdFileID pageversion.FileID = 0, 1
	fwdMgr := newTestManager(t, dir, "knows_fwd", fwdFileID)
	bwdMgr := newTestManager(t, dir, "knows_bwd", bwdFileID)

	return New(schema, fwdFileID, bwdFileID, fwdMgr, bwdMgr)
}

func TestInsertAndHasConnectedRels(t *testing.T) {
	rt := newTestRelTable(t)

	relID, err := rt.Insert(1, 2, map[string]any{"since": int64(2020)})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if relID == "" {
		t.Fatalf("expected a rel id")
	}

	has, err := rt.HasConnectedRels(rt.Schema.SrcTableID, 1)
	if err != nil || !has {
		t.Fatalf("expected node 1 to have connected rels, has=%v err=%v", has, err)
	}
	has, err = rt.HasConnectedRels(rt.Schema.SrcTableID, 99)
	if err != nil || has {
		t.Fatalf("expected node 99 to have no connected rels, has=%v err=%v", has, err)
	}
	if rt.Count() != 1 {
		t.Fatalf("expected rel count 1 after a single insert, got %d", rt.Count())
	}
}

func TestDetachDeleteRemovesBothDirections(t *testing.T) {
	rt := newTestRelTable(t)

	if _, err := rt.Insert(1, 2, map[string]any{}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := rt.Insert(1, 3, map[string]any{}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	n, err := rt.DetachDelete(1, Forward)
	if err != nil {
		t.Fatalf("DetachDelete: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rels deleted, got %d", n)
	}

	has, err := rt.HasConnectedRels(rt.Schema.SrcTableID, 1)
	if err != nil || has {
		t.Fatalf("expected node 1 to have no rels left, has=%v err=%v", has, err)
	}
	has, err = rt.HasConnectedRels(rt.Schema.DstTableID, 2)
	if err != nil || has {
		t.Fatalf("expected node 2's backward rel to be gone too, has=%v err=%v", has, err)
	}
	if rt.Count() != 0 {
		t.Fatalf("expected rel count 0 after detach-deleting both rels, got %d", rt.Count())
	}
}

// TestRelCountDecreasesByDeletedCount mirrors the "rel count decreased by
// 3" scenario: three rels inserted off one source node, detach-deleted in
// one call, and the count must drop by exactly 3, not merely to 0.
func TestRelCountDecreasesByDeletedCount(t *testing.T) {
	rt := newTestRelTable(t)

	for dst := uint64(2); dst <= 4; dst++ {
		if _, err := rt.Insert(1, dst, map[string]any{}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if _, err := rt.Insert(5, 6, map[string]any{}); err != nil {
		t.Fatalf("Insert unrelated rel: %v", err)
	}
	if rt.Count() != 4 {
		t.Fatalf("expected rel count 4 before detach delete, got %d", rt.Count())
	}

	n, err := rt.DetachDelete(1, Forward)
	if err != nil {
		t.Fatalf("DetachDelete: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rels deleted, got %d", n)
	}
	if rt.Count() != 1 {
		t.Fatalf("expected rel count to drop by 3 to 1, got %d", rt.Count())
	}
}

// TestRelCountTracksSingleDelete exercises Delete (as opposed to
// DetachDelete): the count decrements only once both directions agree the
// row existed.
func TestRelCountTracksSingleDelete(t *testing.T) {
	rt := newTestRelTable(t)

	relID, err := rt.Insert(1, 2, map[string]any{})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if rt.Count() != 1 {
		t.Fatalf("expected rel count 1, got %d", rt.Count())
	}

	if err := rt.Delete(1, 2, relID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if rt.Count() != 0 {
		t.Fatalf("expected rel count 0 after delete, got %d", rt.Count())
	}
}
