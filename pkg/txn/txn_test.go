package txn

import "testing"

type fakeResource struct {
	checkpointed bool
	rolledBack   bool
	failCheckpoint bool
}

func (f *fakeResource) Checkpoint() error {
	if f.failCheckpoint {
		return errBoom
	}
	f.checkpointed = true
	return nil
}
func (f *fakeResource) Rollback() { f.rolledBack = true }

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func TestCommitCheckpointsAllResources(t *testing.T) {
	reg := NewRegistry()
	tx := Begin(reg, Write, ReadCommitted, 10)

	r1, r2 := &fakeResource{}, &fakeResource{}
	tx.Use(r1)
	tx.Use(r2)

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !r1.checkpointed || !r2.checkpointed {
		t.Fatalf("expected both resources to be checkpointed")
	}
	if reg.MinActiveLSN() != 0 {
		t.Fatalf("expected registry to be empty after commit, minActiveLSN=%d", reg.MinActiveLSN())
	}
}

func TestRollbackRollsBackAllResources(t *testing.T) {
	reg := NewRegistry()
	tx := Begin(reg, Write, ReadCommitted, 10)

	r1 := &fakeResource{}
	tx.Use(r1)

	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if !r1.rolledBack {
		t.Fatalf("expected resource to be rolled back")
	}
}

func TestCommitAfterCloseFails(t *testing.T) {
	reg := NewRegistry()
	tx := Begin(reg, Write, ReadCommitted, 0)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := tx.Commit(); err == nil {
		t.Fatalf("expected second commit to fail")
	}
}

func TestRegistryTracksMinActiveLSN(t *testing.T) {
	reg := NewRegistry()
	tx1 := Begin(reg, ReadOnly, RepeatableRead, 5)
	tx2 := Begin(reg, ReadOnly, RepeatableRead, 2)

	if got := reg.MinActiveLSN(); got != 2 {
		t.Fatalf("expected min active LSN 2, got %d", got)
	}

	if err := tx2.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if got := reg.MinActiveLSN(); got != 5 {
		t.Fatalf("expected min active LSN 5 after tx2 closes, got %d", got)
	}
	tx1.Rollback()
}
