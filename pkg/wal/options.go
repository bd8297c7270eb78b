package wal

import "time"

// SyncPolicy selects a durability strategy for WALWriter.
type SyncPolicy int

const (
	// SyncEveryWrite fsyncs after every append. Safest, slowest.
	SyncEveryWrite SyncPolicy = iota

	// SyncInterval fsyncs on a periodic background tick. A middle ground.
	SyncInterval

	// SyncBatch fsyncs once the buffered, unsynced byte count crosses
	// SyncBatchBytes. Highest throughput, largest exposure window.
	SyncBatch
)

// Options configures a WALWriter.
type Options struct {
	// DirPath names a directory for log files. NewWALWriter does not read
	// it; it opens the log file path it is given directly.
	DirPath string

	// BufferSize is the bufio buffer size ahead of the OS write.
	BufferSize int

	SyncPolicy SyncPolicy

	// SyncIntervalDuration is the tick period for SyncInterval.
	SyncIntervalDuration time.Duration

	// SyncBatchBytes is the unsynced-byte threshold for SyncBatch.
	SyncBatchBytes int64
}

// DefaultOptions returns a conservative configuration: fsync every 200ms.
func DefaultOptions() Options {
	return Options{
		DirPath:              "./wal_data",
		BufferSize:           64 * 1024, // 64KB bufio buffer
		SyncPolicy:           SyncInterval,
		SyncIntervalDuration: 200 * time.Millisecond,
		SyncBatchBytes:       1 * 1024 * 1024, // 1MB
	}
}
