// Package txn implements the transaction type mutation operations run
// under: a snapshot LSN, an isolation level, and the set of page
// versioning managers it has written through, committed or rolled back
// together at the end.
//
// Grounded on the teacher's pkg/storage/transaction_manager.go
// (TransactionRegistry tracking active txns and the minimum active LSN)
// and the Transaction type embedded in pkg/storage/engine.go
// (BeginTransaction/Close, IsolationLevel, SnapshotLSN), generalized from
// a single document-store engine to an arbitrary set of page-versioned
// resources.
package txn

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/bobboyms/graphdb/pkg/graphdberr"
	"github.com/bobboyms/graphdb/pkg/metrics"
)

// Mode is READ_ONLY or WRITE, the distinction the page versioning layer's
// reader routing depends on.
type Mode int

const (
	ReadOnly Mode = iota
	Write
)

// IsolationLevel mirrors the teacher's two supported levels.
type IsolationLevel int

const (
	ReadCommitted IsolationLevel = iota
	RepeatableRead
)

// Versioned is anything a transaction must commit or roll back as a
// unit — in practice a *pageversion.Manager, but expressed as an
// interface here so txn never imports pageversion.
type Versioned interface {
	Checkpoint() error
	Rollback()
}

// Registry tracks every active transaction so the minimum active
// snapshot LSN can be computed; a checkpoint or vacuum below that LSN is
// safe even under repeatable-read isolation.
type Registry struct {
	mu           sync.Mutex
	active       map[*Transaction]struct{}
	minActiveLSN uint64
	metrics      *metrics.Registry
}

func NewRegistry() *Registry {
	return &Registry{active: make(map[*Transaction]struct{})}
}

// WithMetrics attaches a metrics registry that transactions started
// from r report commit/rollback counts to. A nil registry is a valid
// no-op.
func (r *Registry) WithMetrics(m *metrics.Registry) *Registry {
	r.metrics = m
	return r
}

func (r *Registry) register(t *Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[t] = struct{}{}
	r.recomputeMinLocked()
}

func (r *Registry) unregister(t *Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, t)
	r.recomputeMinLocked()
}

func (r *Registry) recomputeMinLocked() {
	if len(r.active) == 0 {
		r.minActiveLSN = 0
		return
	}
	min := ^uint64(0)
	for t := range r.active {
		if t.SnapshotLSN < min {
			min = t.SnapshotLSN
		}
	}
	r.minActiveLSN = min
}

func (r *Registry) MinActiveLSN() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minActiveLSN
}

// Transaction is one unit of work against the mutation core.
type Transaction struct {
	ID          string
	Mode        Mode
	Level       IsolationLevel
	SnapshotLSN uint64

	registry  *Registry
	mu        sync.Mutex
	resources []Versioned
	closed    bool
}

// Begin opens a new transaction at the given snapshot LSN (the current
// WAL LSN at open time for ReadCommitted, or pinned for the transaction's
// lifetime for RepeatableRead — the caller decides which LSN to pass in,
// matching BeginTransaction/BeginRead's split in the teacher's engine).
func Begin(registry *Registry, mode Mode, level IsolationLevel, snapshotLSN uint64) *Transaction {
	t := &Transaction{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Mode:        mode,
		Level:       level,
		SnapshotLSN: snapshotLSN,
		registry:    registry,
	}
	registry.register(t)
	return t
}

// Use registers a page-versioned resource (one per node/rel table file
// group the transaction has touched) so Commit/Rollback sweep it.
func (t *Transaction) Use(v Versioned) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resources = append(t.resources, v)
}

func (t *Transaction) checkOpen() error {
	if t.closed {
		return &graphdberr.TransactionClosedError{TxnID: t.ID}
	}
	return nil
}

// Commit checkpoints every resource the transaction touched. A failure
// partway through leaves already-checkpointed resources committed and
// the rest still holding their WAL versions; the caller is expected to
// retry Commit rather than Rollback at that point, since rolling back a
// partially committed transaction would discard real data.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return err
	}
	for i, res := range t.resources {
		if err := res.Checkpoint(); err != nil {
			return fmt.Errorf("txn %s: commit failed at resource %d/%d: %w", t.ID, i+1, len(t.resources), err)
		}
	}
	t.closed = true
	t.registry.unregister(t)
	t.registry.metrics.TxnCommitted()
	return nil
}

// Rollback discards every WAL version the transaction created across all
// resources it touched.
func (t *Transaction) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return err
	}
	for _, res := range t.resources {
		res.Rollback()
	}
	t.closed = true
	t.registry.unregister(t)
	t.registry.metrics.TxnRolledBack()
	return nil
}
