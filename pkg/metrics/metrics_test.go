package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilRegistryIsANoOp(t *testing.T) {
	var r *Registry
	r.PinObserved(true)
	r.WALAppendObserved(128)
	r.WALFlushObserved(0.01, false)
	r.HashIndexSplit()
	r.TxnCommitted()
}

func TestPinObservedIncrementsCounters(t *testing.T) {
	r := New()
	r.PinObserved(true)
	r.PinObserved(false)

	if got := testutil.ToFloat64(r.BufferPoolPins); got != 2 {
		t.Fatalf("expected 2 pins, got %v", got)
	}
	if got := testutil.ToFloat64(r.BufferPoolHits); got != 1 {
		t.Fatalf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(r.BufferPoolMisses); got != 1 {
		t.Fatalf("expected 1 miss, got %v", got)
	}
}

func TestGathererReturnsRegisteredMetrics(t *testing.T) {
	r := New()
	r.TxnCommitted()

	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected at least one metric family")
	}
}
