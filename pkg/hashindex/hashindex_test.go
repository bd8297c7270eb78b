package hashindex

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/bobboyms/graphdb/pkg/pager"
	"github.com/bobboyms/graphdb/pkg/pageversion"
	"github.com/bobboyms/graphdb/pkg/valuevec"
	"github.com/bobboyms/graphdb/pkg/wal"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	dir := t.TempDir()
	pool := pager.NewBufferPool()

	walw, err := wal.NewWALWriter(filepath.Join(dir, "pk.log.wal"), wal.DefaultOptions())
	if err != nil {
		t.Fatalf("NewWALWriter: %v", err)
	}
	t.Cleanup(func() { walw.Close() })

	files := make(map[pageversion.FileID]*pager.FileHandle)
	walFiles := make(map[pageversion.FileID]*pager.FileHandle)
	for i := 0; i < NumPartitions; i++ {
		p, o := PartitionFileNames(filepath.Join(dir, "pk"), i)
		pWAL, oWAL := PartitionWALFileNames(filepath.Join(dir, "pk"), i)

		pf, err := pager.OpenFileHandle(p)
		if err != nil {
			t.Fatalf("open primary %d: %v", i, err)
		}
		of, err := pager.OpenFileHandle(o)
		if err != nil {
			t.Fatalf("open overflow %d: %v", i, err)
		}
		pfWAL, err := pager.OpenFileHandle(pWAL)
		if err != nil {
			t.Fatalf("open primary wal %d: %v", i, err)
		}
		ofWAL, err := pager.OpenFileHandle(oWAL)
		if err != nil {
			t.Fatalf("open overflow wal %d: %v", i, err)
		}

		files[PrimaryFileID(i)] = pf
		files[OverflowFileID(i)] = of
		walFiles[PrimaryFileID(i)] = pfWAL
		walFiles[OverflowFileID(i)] = ofWAL
	}

	mgr := pageversion.NewManager(pool, walw, pageversion.NewLSNAllocator(0), files, walFiles)

	idx, err := Open(mgr)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return idx
}

func TestInsertLookupDelete(t *testing.T) {
	idx := openTestIndex(t)

	key := valuevec.VarcharKey("alice")
	val := valuevec.InternalID{TableID: 1, Offset: 42}

	inserted, err := idx.Insert(key, val)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !inserted {
		t.Fatalf("expected fresh insert to succeed")
	}

	got, ok, err := idx.Lookup(key)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok || got != val {
		t.Fatalf("expected to find %+v, got %+v ok=%v", val, got, ok)
	}

	inserted, err = idx.Insert(key, val)
	if err != nil {
		t.Fatalf("Insert duplicate: %v", err)
	}
	if inserted {
		t.Fatalf("expected duplicate insert to be rejected")
	}

	deleted, err := idx.Delete(key)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Fatalf("expected delete to find the key")
	}

	_, ok, err = idx.Lookup(key)
	if err != nil {
		t.Fatalf("Lookup after delete: %v", err)
	}
	if ok {
		t.Fatalf("expected key to be gone after delete")
	}
}

func TestInsertManyTriggersSplit(t *testing.T) {
	idx := openTestIndex(t)

	// A partition splits its first slot once it would hold more than 48
	// entries (61 per slot at 0.8 load); 60 keys per partition on average
	// makes most partitions split.
	const n = 60 * NumPartitions
	for i := 0; i < n; i++ {
		key := valuevec.VarcharKey(fmt.Sprintf("key-%04d", i))
		inserted, err := idx.Insert(key, valuevec.InternalID{TableID: 1, Offset: uint64(i)})
		if err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
		if !inserted {
			t.Fatalf("Insert %d: expected success", i)
		}
	}

	for i := 0; i < n; i++ {
		key := valuevec.VarcharKey(fmt.Sprintf("key-%04d", i))
		got, ok, err := idx.Lookup(key)
		if err != nil {
			t.Fatalf("Lookup %d: %v", i, err)
		}
		if !ok || got.Offset != uint64(i) {
			t.Fatalf("Lookup %d: expected offset %d, got %+v ok=%v", i, i, got, ok)
		}
	}
}

func TestSnapshotRestorePartitionRoundTrips(t *testing.T) {
	idx := openTestIndex(t)

	key := valuevec.VarcharKey("alice")
	val := valuevec.InternalID{TableID: 1, Offset: 7}
	if _, err := idx.Insert(key, val); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	kb, err := SerializeKey(key)
	if err != nil {
		t.Fatalf("SerializeKey: %v", err)
	}
	part := PartitionFor(hash64(kb))

	snap, err := idx.SnapshotPartition(part)
	if err != nil {
		t.Fatalf("SnapshotPartition: %v", err)
	}

	idx2 := openTestIndex(t)
	if err := idx2.RestorePartition(part, snap); err != nil {
		t.Fatalf("RestorePartition: %v", err)
	}

	got, ok, err := idx2.Lookup(key)
	if err != nil {
		t.Fatalf("Lookup after restore: %v", err)
	}
	if !ok || got != val {
		t.Fatalf("expected restored partition to contain %+v, got %+v ok=%v", val, got, ok)
	}
}
