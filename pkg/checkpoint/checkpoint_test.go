package checkpoint

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	if err := m.Save("Person", "part-003", 42, []byte("header+slots")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	lsn, payload, found, err := m.Load("Person", "part-003")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found {
		t.Fatalf("expected checkpoint to be found")
	}
	if lsn != 42 {
		t.Fatalf("expected lsn 42, got %d", lsn)
	}
	if string(payload) != "header+slots" {
		t.Fatalf("expected payload roundtrip, got %q", payload)
	}
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	_, _, found, err := m.Load("Person", "part-999")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatalf("expected not found")
	}
}

func TestSaveOverwritesPriorCheckpointForSameKey(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	m.Save("Person", "part-000", 1, []byte("v1"))
	m.Save("Person", "part-000", 2, []byte("v2"))

	lsn, payload, found, err := m.Load("Person", "part-000")
	if err != nil || !found {
		t.Fatalf("Load: found=%v err=%v", found, err)
	}
	if lsn != 2 || string(payload) != "v2" {
		t.Fatalf("expected latest checkpoint to win, got lsn=%d payload=%q", lsn, payload)
	}
}

func TestForEachTableIteratesAllPartitions(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	m.Save("Person", "part-000", 1, []byte("a"))
	m.Save("Person", "part-001", 1, []byte("b"))
	m.Save("Company", "part-000", 1, []byte("c"))

	seen := map[string]bool{}
	err = m.ForEachTable("Person", func(partition string, lsn uint64, payload []byte) error {
		seen[partition] = true
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachTable: %v", err)
	}
	if len(seen) != 2 || !seen["part-000"] || !seen["part-001"] {
		t.Fatalf("expected exactly Person's two partitions, got %v", seen)
	}
}

func TestDeleteRemovesCheckpoint(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	m.Save("Person", "part-000", 1, []byte("a"))
	if err := m.Delete("Person", "part-000"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, _, found, err := m.Load("Person", "part-000")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatalf("expected checkpoint to be gone after Delete")
	}
}
