// Package metrics exposes the mutation core's Prometheus instruments:
// buffer pool pin/hit counters, WAL append counts/bytes and flush
// latency, and hash
// index split counters. Every mutation-path package takes a *Registry
// (or nil, in which case it's a no-op) instead of reaching for
// prometheus' global DefaultRegisterer, so tests and multiple engine
// instances in one process don't collide on metric registration.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every instrument the mutation core emits, registered
// against its own prometheus.Registry so callers can mount it under
// promhttp.HandlerFor at whatever path they choose.
type Registry struct {
	reg *prometheus.Registry

	BufferPoolPins   prometheus.Counter
	BufferPoolHits   prometheus.Counter
	BufferPoolMisses prometheus.Counter
	BufferPoolFrames prometheus.Gauge

	WALAppends         prometheus.Counter
	WALAppendBytes     prometheus.Counter
	WALFlushDuration   prometheus.Histogram
	WALFlushFailures   prometheus.Counter

	HashIndexSplits  prometheus.Counter
	HashIndexLookups prometheus.Counter
	HashIndexInserts prometheus.Counter

	TxnCommits   prometheus.Counter
	TxnRollbacks prometheus.Counter
}

// New creates a fresh instrument set registered against its own
// registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		BufferPoolPins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphdb", Subsystem: "buffer_pool", Name: "pins_total",
			Help: "Total number of frame pin requests.",
		}),
		BufferPoolHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphdb", Subsystem: "buffer_pool", Name: "hits_total",
			Help: "Pin requests served by an already-resident frame.",
		}),
		BufferPoolMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphdb", Subsystem: "buffer_pool", Name: "misses_total",
			Help: "Pin requests that required a disk read.",
		}),
		BufferPoolFrames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "graphdb", Subsystem: "buffer_pool", Name: "resident_frames",
			Help: "Number of frames currently resident in the buffer pool.",
		}),
		WALAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphdb", Subsystem: "wal", Name: "appends_total",
			Help: "Total number of WAL entries appended.",
		}),
		WALAppendBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphdb", Subsystem: "wal", Name: "append_bytes_total",
			Help: "Total bytes appended to the WAL, including entry headers.",
		}),
		WALFlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "graphdb", Subsystem: "wal", Name: "flush_duration_seconds",
			Help:    "Time spent in fsync of the WAL segment file.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		WALFlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphdb", Subsystem: "wal", Name: "flush_failures_total",
			Help: "Number of fsync failures on the WAL segment file.",
		}),
		HashIndexSplits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphdb", Subsystem: "hash_index", Name: "splits_total",
			Help: "Number of linear-hash slot splits performed.",
		}),
		HashIndexLookups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphdb", Subsystem: "hash_index", Name: "lookups_total",
			Help: "Total primary key lookups served.",
		}),
		HashIndexInserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphdb", Subsystem: "hash_index", Name: "inserts_total",
			Help: "Total primary key entries inserted.",
		}),
		TxnCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphdb", Subsystem: "txn", Name: "commits_total",
			Help: "Total committed transactions.",
		}),
		TxnRollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphdb", Subsystem: "txn", Name: "rollbacks_total",
			Help: "Total rolled-back transactions.",
		}),
	}

	reg.MustRegister(
		r.BufferPoolPins, r.BufferPoolHits, r.BufferPoolMisses, r.BufferPoolFrames,
		r.WALAppends, r.WALAppendBytes, r.WALFlushDuration, r.WALFlushFailures,
		r.HashIndexSplits, r.HashIndexLookups, r.HashIndexInserts,
		r.TxnCommits, r.TxnRollbacks,
	)
	return r
}

// Gatherer exposes the underlying registry for mounting under an HTTP
// handler (e.g. promhttp.HandlerFor(reg.Gatherer(), ...)).
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// incIfSet is the nil-safe helper every caller uses so a nil *Registry
// (metrics disabled) is always a valid zero-cost no-op.
func incIfSet(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// PinObserved records one buffer pool pin, hit or miss.
func (r *Registry) PinObserved(hit bool) {
	if r == nil {
		return
	}
	incIfSet(r.BufferPoolPins)
	if hit {
		incIfSet(r.BufferPoolHits)
	} else {
		incIfSet(r.BufferPoolMisses)
	}
}

// WALAppendObserved records one WAL append of n bytes.
func (r *Registry) WALAppendObserved(n int) {
	if r == nil {
		return
	}
	incIfSet(r.WALAppends)
	if r.WALAppendBytes != nil {
		r.WALAppendBytes.Add(float64(n))
	}
}

// WALFlushObserved records a flush's duration in seconds and whether it
// failed.
func (r *Registry) WALFlushObserved(seconds float64, failed bool) {
	if r == nil {
		return
	}
	if r.WALFlushDuration != nil {
		r.WALFlushDuration.Observe(seconds)
	}
	if failed {
		incIfSet(r.WALFlushFailures)
	}
}

func (r *Registry) HashIndexSplit() {
	if r != nil {
		incIfSet(r.HashIndexSplits)
	}
}

func (r *Registry) HashIndexLookup() {
	if r != nil {
		incIfSet(r.HashIndexLookups)
	}
}

func (r *Registry) HashIndexInsert() {
	if r != nil {
		incIfSet(r.HashIndexInserts)
	}
}

func (r *Registry) TxnCommitted() {
	if r != nil {
		incIfSet(r.TxnCommits)
	}
}

func (r *Registry) TxnRolledBack() {
	if r != nil {
		incIfSet(r.TxnRollbacks)
	}
}
