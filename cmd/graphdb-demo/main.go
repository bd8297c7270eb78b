// Command graphdb-demo walks through the mutation core end to end:
// open a database directory, declare a Person node table and a Knows
// rel table, insert a few nodes and rels, detach-delete one node,
// checkpoint, and print a summary. It mirrors the shape of the
// teacher's examples/*/main.go programs: a single main() doing setup,
// a run, and cleanup, with a couple of plain `flag` options instead of
// a subcommand tree.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/bobboyms/graphdb/pkg/catalog"
	"github.com/bobboyms/graphdb/pkg/checkpoint"
	"github.com/bobboyms/graphdb/pkg/hashindex"
	"github.com/bobboyms/graphdb/pkg/metrics"
	"github.com/bobboyms/graphdb/pkg/nodetable"
	"github.com/bobboyms/graphdb/pkg/obslog"
	"github.com/bobboyms/graphdb/pkg/pager"
	"github.com/bobboyms/graphdb/pkg/pageversion"
	"github.com/bobboyms/graphdb/pkg/reltable"
	"github.com/bobboyms/graphdb/pkg/rowscan"
	"github.com/bobboyms/graphdb/pkg/txn"
	"github.com/bobboyms/graphdb/pkg/valuevec"
	"github.com/bobboyms/graphdb/pkg/wal"
)

func main() {
	dir := flag.String("dir", "./graphdb-demo-data", "database directory")
	reset := flag.Bool("reset", true, "wipe the database directory before running")
	sentryDSN := flag.String("sentry-dsn", "", "optional Sentry DSN for internal-invariant reporting")
	flag.Parse()

	if *reset {
		if err := os.RemoveAll(*dir); err != nil {
			log.Fatalf("reset %s: %v", *dir, err)
		}
	}
	if err := os.MkdirAll(*dir, 0755); err != nil {
		log.Fatalf("mkdir %s: %v", *dir, err)
	}

	if err := obslog.Init(obslog.Options{DSN: *sentryDSN, Environment: "demo"}); err != nil {
		log.Fatalf("obslog.Init: %v", err)
	}
	metricsReg := metrics.New()

	db, err := openDemoDatabase(*dir, metricsReg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.close()

	if err := runDemo(db); err != nil {
		log.Fatalf("demo: %v", err)
	}
}

// demoDatabase bundles everything opened against one directory: the
// catalog, the Person node table, the Knows rel table, and the shared
// transaction registry.
type demoDatabase struct {
	dir         string
	cat         *catalog.Catalog
	person      *nodetable.Table
	knows       *reltable.Table
	knowsFwdMgr *pageversion.Manager
	knowsBwdMgr *pageversion.Manager
	registry    *txn.Registry
	chk         *checkpoint.Manager
	closers     []func() error
}

func (db *demoDatabase) close() {
	for i := len(db.closers) - 1; i >= 0; i-- {
		if err := db.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
}

func openDemoDatabase(dir string, m *metrics.Registry) (*demoDatabase, error) {
	db := &demoDatabase{dir: dir, cat: catalog.New()}

	personSchema, err := db.cat.CreateNodeTable("Person", []catalog.ColumnSchema{
		{Name: "id", Type: valuevec.StringType},
		{Name: "age", Type: valuevec.Int64},
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("create Person table: %w", err)
	}

	knowsSchema, err := db.cat.CreateRelTable("Knows", personSchema, personSchema, []catalog.ColumnSchema{
		{Name: "since", Type: valuevec.Int64},
	})
	if err != nil {
		return nil, fmt.Errorf("create Knows table: %w", err)
	}

	chk, err := checkpoint.Open(filepath.Join(dir, "checkpoints"))
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	db.chk = chk
	db.closers = append(db.closers, chk.Close)

	const (
		personFileID pageversion.FileID = 0
		knowsFwdFile pageversion.FileID = 1
		knowsBwdFile pageversion.FileID = 2
	)

	personMgr, err := openManager(dir, "person", personFileID, m)
	if err != nil {
		return nil, err
	}
	db.closers = append(db.closers, personMgr.closeFn())

	fwdMgr, err := openManager(dir, "knows_fwd", knowsFwdFile, m)
	if err != nil {
		return nil, err
	}
	db.closers = append(db.closers, fwdMgr.closeFn())

	bwdMgr, err := openManager(dir, "knows_bwd", knowsBwdFile, m)
	if err != nil {
		return nil, err
	}
	db.closers = append(db.closers, bwdMgr.closeFn())

	pkIndex, pkCloseFns, err := openPKIndex(filepath.Join(dir, "person.pk"), m)
	if err != nil {
		return nil, err
	}
	db.closers = append(db.closers, pkCloseFns...)

	person, err := nodetable.New(personSchema, personFileID, personMgr.mgr, pkIndex)
	if err != nil {
		return nil, fmt.Errorf("nodetable.New: %w", err)
	}
	db.person = person

	db.knows = reltable.New(knowsSchema, knowsFwdFile, knowsBwdFile, fwdMgr.mgr, bwdMgr.mgr)
	db.knowsFwdMgr = fwdMgr.mgr
	db.knowsBwdMgr = bwdMgr.mgr
	db.registry = txn.NewRegistry().WithMetrics(m)
	return db, nil
}

// openedManager bundles a page versioning manager with the file handles
// and WAL writer it owns, so callers can close them all in one step.
type openedManager struct {
	mgr  *pageversion.Manager
	walw closer
	data *pager.FileHandle
	wal  *pager.FileHandle
}

type closer interface{ Close() error }

func (m *openedManager) closeFn() func() error {
	return func() error {
		if err := m.walw.Close(); err != nil {
			return err
		}
		if err := m.data.Close(); err != nil {
			return err
		}
		return m.wal.Close()
	}
}

func openManager(dir, name string, fileID pageversion.FileID, m *metrics.Registry) (*openedManager, error) {
	dataFh, err := pager.OpenFileHandle(filepath.Join(dir, name+".db"))
	if err != nil {
		return nil, fmt.Errorf("open %s.db: %w", name, err)
	}
	walPagesFh, err := pager.OpenFileHandle(filepath.Join(dir, name+".db.wal"))
	if err != nil {
		return nil, fmt.Errorf("open %s.db.wal: %w", name, err)
	}

	walWriterImpl, err := newWALWriter(filepath.Join(dir, name+".log.wal"), m)
	if err != nil {
		return nil, err
	}

	pool := pager.NewBufferPool().WithMetrics(m)
	mgr := pageversion.NewManager(
		pool, walWriterImpl.writer, pageversion.NewLSNAllocator(0),
		map[pageversion.FileID]*pager.FileHandle{fileID: dataFh},
		map[pageversion.FileID]*pager.FileHandle{fileID: walPagesFh},
	)
	if err := mgr.Recover(filepath.Join(dir, name+".log.wal")); err != nil {
		return nil, fmt.Errorf("recover %s: %w", name, err)
	}

	return &openedManager{mgr: mgr, walw: walWriterImpl.writer, data: dataFh, wal: walPagesFh}, nil
}

// openPKIndex wires up all 256 partitions of the PK hash index onto a
// single shared pageversion.Manager, the same page versioning layer the
// node and rel tables use, so every slot/header mutation the index makes
// is WAL-shadowed and rolls back with the rest of the transaction. It
// returns the opened index plus the close funcs for the manager's WAL
// writer and the 512 data + 512 WAL-version file handles it registered.
func openPKIndex(basePath string, m *metrics.Registry) (*hashindex.Index, []func() error, error) {
	walWriterImpl, err := newWALWriter(basePath+".log.wal", m)
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{walWriterImpl.writer.Close}

	files := make(map[pageversion.FileID]*pager.FileHandle, 2*hashindex.NumPartitions)
	walFiles := make(map[pageversion.FileID]*pager.FileHandle, 2*hashindex.NumPartitions)
	for i := 0; i < hashindex.NumPartitions; i++ {
		p, o := hashindex.PartitionFileNames(basePath, i)
		pWAL, oWAL := hashindex.PartitionWALFileNames(basePath, i)

		pf, err := pager.OpenFileHandle(p)
		if err != nil {
			return nil, nil, fmt.Errorf("open pk partition %d primary: %w", i, err)
		}
		closers = append(closers, pf.Close)
		of, err := pager.OpenFileHandle(o)
		if err != nil {
			return nil, nil, fmt.Errorf("open pk partition %d overflow: %w", i, err)
		}
		closers = append(closers, of.Close)
		pfWAL, err := pager.OpenFileHandle(pWAL)
		if err != nil {
			return nil, nil, fmt.Errorf("open pk partition %d primary wal: %w", i, err)
		}
		closers = append(closers, pfWAL.Close)
		ofWAL, err := pager.OpenFileHandle(oWAL)
		if err != nil {
			return nil, nil, fmt.Errorf("open pk partition %d overflow wal: %w", i, err)
		}
		closers = append(closers, ofWAL.Close)

		files[hashindex.PrimaryFileID(i)] = pf
		files[hashindex.OverflowFileID(i)] = of
		walFiles[hashindex.PrimaryFileID(i)] = pfWAL
		walFiles[hashindex.OverflowFileID(i)] = ofWAL
	}

	pool := pager.NewBufferPool().WithMetrics(m)
	mgr := pageversion.NewManager(pool, walWriterImpl.writer, pageversion.NewLSNAllocator(0), files, walFiles)
	if err := mgr.Recover(basePath + ".log.wal"); err != nil {
		return nil, nil, fmt.Errorf("recover pk index: %w", err)
	}

	idx, err := hashindex.Open(mgr)
	if err != nil {
		return nil, nil, err
	}
	return idx.WithMetrics(m), closers, nil
}

func runDemo(db *demoDatabase) error {
	tx := txn.Begin(db.registry, txn.Write, txn.ReadCommitted, 0)
	tx.Use(db.person.Mgr)
	tx.Use(db.person.PKIndex.Manager())
	tx.Use(db.knowsFwdMgr)
	tx.Use(db.knowsBwdMgr)

	aliceOffset, err := db.person.Insert(map[string]any{"id": "alice", "age": int64(30)})
	if err != nil {
		return fmt.Errorf("insert alice: %w", err)
	}
	bobOffset, err := db.person.Insert(map[string]any{"id": "bob", "age": int64(25)})
	if err != nil {
		return fmt.Errorf("insert bob: %w", err)
	}
	carolOffset, err := db.person.Insert(map[string]any{"id": "carol", "age": int64(40)})
	if err != nil {
		return fmt.Errorf("insert carol: %w", err)
	}

	if _, err := db.knows.Insert(aliceOffset, bobOffset, map[string]any{"since": int64(2019)}); err != nil {
		return fmt.Errorf("insert alice-knows-bob: %w", err)
	}
	if _, err := db.knows.Insert(aliceOffset, carolOffset, map[string]any{"since": int64(2021)}); err != nil {
		return fmt.Errorf("insert alice-knows-carol: %w", err)
	}

	fmt.Println("== People older than 28 ==")
	if err := db.person.Scan("age", rowscan.GreaterThan(valuevec.IntKey(28)), func(offset uint64, props map[string]any) bool {
		fmt.Printf("  %s (age %v, offset %d)\n", props["id"], props["age"], offset)
		return true
	}); err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	if err := db.person.Delete(bobOffset, db.knows); err == nil {
		return fmt.Errorf("expected deleting bob to fail while Knows rels still reference him")
	} else {
		fmt.Printf("delete bob blocked as expected: %v\n", err)
	}

	numDeleted, err := db.knows.DetachDelete(aliceOffset, reltable.Forward)
	if err != nil {
		return fmt.Errorf("detach delete alice: %w", err)
	}
	fmt.Printf("detach-deleted %d rel(s) from alice\n", numDeleted)

	if err := db.person.Delete(aliceOffset, db.knows); err != nil {
		return fmt.Errorf("delete alice: %w", err)
	}
	fmt.Println("alice deleted")

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	fmt.Println("transaction committed")

	snapshot, err := db.person.PKIndex.SnapshotPartition(0)
	if err != nil {
		return fmt.Errorf("snapshot pk partition 0: %w", err)
	}
	if err := db.chk.Save("Person", "pk-part-000", 0, snapshot); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if _, payload, found, err := db.chk.Load("Person", "pk-part-000"); err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	} else if !found {
		return fmt.Errorf("expected checkpoint to be found after save")
	} else if len(payload) != len(snapshot) {
		return fmt.Errorf("checkpoint payload length mismatch: saved %d, loaded %d", len(snapshot), len(payload))
	}
	fmt.Printf("checkpoint saved and verified (%d bytes)\n", len(snapshot))

	return nil
}

type walWriter struct {
	writer *wal.WALWriter
}

func newWALWriter(path string, m *metrics.Registry) (*walWriter, error) {
	w, err := wal.NewWALWriter(path, wal.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}
	return &walWriter{writer: w.WithMetrics(m)}, nil
}
