package wal

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func newEntry(lsn uint64, entryType uint8, payload []byte) *WALEntry {
	return &WALEntry{
		Header: WALHeader{
			Magic:      WALMagic,
			Version:    WALVersion,
			EntryType:  entryType,
			LSN:        lsn,
			PayloadLen: uint32(len(payload)),
			CRC32:      CalculateCRC32(payload),
		},
		Payload: payload,
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := NewWALWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewWALWriter: %v", err)
	}

	page := make([]byte, 64)
	for i := range page {
		page[i] = byte(i)
	}
	payload := EncodePagePayload(1, 7, page)

	e1 := newEntry(1, EntryPageUpdate, payload)
	if err := w.WriteEntry(e1); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	e2 := newEntry(2, EntryCommit, nil)
	if err := w.WriteEntry(e2); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewWALReader(path)
	if err != nil {
		t.Fatalf("NewWALReader: %v", err)
	}
	defer r.Close()

	got1, err := r.ReadEntry()
	if err != nil {
		t.Fatalf("ReadEntry 1: %v", err)
	}
	if got1.Header.EntryType != EntryPageUpdate || got1.Header.LSN != 1 {
		t.Fatalf("unexpected header: %+v", got1.Header)
	}
	fileID, pageIdx, gotPage := DecodePagePayload(got1.Payload)
	if fileID != 1 || pageIdx != 7 || string(gotPage) != string(page) {
		t.Fatalf("page payload mismatch: fileID=%d pageIdx=%d", fileID, pageIdx)
	}
	ReleaseEntry(got1)

	got2, err := r.ReadEntry()
	if err != nil {
		t.Fatalf("ReadEntry 2: %v", err)
	}
	if got2.Header.EntryType != EntryCommit {
		t.Fatalf("expected commit entry, got %+v", got2.Header)
	}

	if _, err := r.ReadEntry(); err != io.EOF {
		t.Fatalf("expected io.EOF at end of log, got %v", err)
	}
}

func TestReadEntryDetectsChecksumCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := NewWALWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewWALWriter: %v", err)
	}
	payload := EncodePagePayload(0, 3, []byte("hello page"))
	if err := w.WriteEntry(newEntry(1, EntryPageUpdate, payload)); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open for corruption: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xFF}, HeaderSize+PagePayloadHeaderSize); err != nil {
		t.Fatalf("corrupt payload: %v", err)
	}
	f.Close()

	r, err := NewWALReader(path)
	if err != nil {
		t.Fatalf("NewWALReader: %v", err)
	}
	defer r.Close()

	if _, err := r.ReadEntry(); err != ErrChecksumMismatch {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestSyncBatchPolicyDefersFsyncUntilThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	opts := DefaultOptions()
	opts.SyncPolicy = SyncBatch
	opts.SyncBatchBytes = 1 << 20

	w, err := NewWALWriter(path, opts)
	if err != nil {
		t.Fatalf("NewWALWriter: %v", err)
	}
	defer w.Close()

	if err := w.WriteEntry(newEntry(1, EntryPageUpdate, EncodePagePayload(0, 0, []byte("x")))); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if w.batchBytes == 0 {
		t.Fatalf("expected batchBytes to accumulate before threshold sync")
	}
}
