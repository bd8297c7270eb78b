package wal

import (
	"encoding/binary"
	"io"
)

// Constantes para Header e Tipos
const (
	HeaderSize = 24 // Tamanho fixo do Header em bytes
	WALVersion = 1  // Versão atual do formato WAL

	// Magic Number para validação rápida (0xDEADBEEF)
	WALMagic = 0xDEADBEEF
)

// EntryType classifies what a WAL record carries. The log is page-image
// based: PageUpdate/PageInsert payloads hold a full page, not a logical
// row-level diff, matching the page-versioning layer's copy-on-write
// contract.
const (
	EntryPageUpdate uint8 = iota + 1 // 1: full image of an existing page
	EntryPageInsert                  // 2: full image of a newly allocated page
	EntryBegin                       // 3: Begin Transaction
	EntryCommit                      // 4: Commit
	EntryAbort                       // 5: Rollback
	EntryCheckpoint                  // 6: checkpoint boundary marker
)

// WALHeader cabeçalho de 24 bytes para cada entrada
type WALHeader struct {
	Magic      uint32 // 4 bytes
	Version    uint8  // 1 byte
	EntryType  uint8  // 1 byte
	Reserved   uint16 // 2 bytes (padding/alinhamento)
	LSN        uint64 // 8 bytes (Log Sequence Number)
	PayloadLen uint32 // 4 bytes
	CRC32      uint32 // 4 bytes
}

// WALEntry representa uma entrada completa no log
type WALEntry struct {
	Header  WALHeader
	Payload []byte
}

// EncodeHeader serializa o header para um byte slice
func (h *WALHeader) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.EntryType
	binary.LittleEndian.PutUint16(buf[6:8], h.Reserved)
	binary.LittleEndian.PutUint64(buf[8:16], h.LSN)
	binary.LittleEndian.PutUint32(buf[16:20], h.PayloadLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.CRC32)
}

// DecodeHeader deserializa bytes para a struct Header
func (h *WALHeader) Decode(buf []byte) {
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = buf[4]
	h.EntryType = buf[5]
	h.Reserved = binary.LittleEndian.Uint16(buf[6:8])
	h.LSN = binary.LittleEndian.Uint64(buf[8:16])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[16:20])
	h.CRC32 = binary.LittleEndian.Uint32(buf[20:24])
}

// WriteTo escreve a entrada (header + payload) para um writer
func (e *WALEntry) WriteTo(w io.Writer) (int64, error) {
	var headerBuf [HeaderSize]byte
	e.Header.Encode(headerBuf[:])

	// Escreve Header
	n, err := w.Write(headerBuf[:])
	if err != nil {
		return int64(n), err
	}

	// Escreve Payload
	m, err := w.Write(e.Payload)
	return int64(n + m), err
}

// PagePayloadHeaderSize is the fixed prefix EncodePagePayload writes ahead
// of the raw page bytes: FileID(4) + PageIdx(4).
const PagePayloadHeaderSize = 8

// EncodePagePayload packs a page-image record's payload: which file and
// page index the image belongs to, followed by the page bytes themselves.
// fileID is the small integer the page versioning layer registered the
// file under (in the demo: 0 for the person table, 1 and 2 for the knows
// forward and backward files) rather than a path, so WAL records stay a
// fixed size regardless of path length.
func EncodePagePayload(fileID uint32, pageIdx uint32, page []byte) []byte {
	buf := make([]byte, PagePayloadHeaderSize+len(page))
	binary.LittleEndian.PutUint32(buf[0:4], fileID)
	binary.LittleEndian.PutUint32(buf[4:8], pageIdx)
	copy(buf[PagePayloadHeaderSize:], page)
	return buf
}

// DecodePagePayload is the inverse of EncodePagePayload.
func DecodePagePayload(payload []byte) (fileID uint32, pageIdx uint32, page []byte) {
	fileID = binary.LittleEndian.Uint32(payload[0:4])
	pageIdx = binary.LittleEndian.Uint32(payload[4:8])
	page = payload[PagePayloadHeaderSize:]
	return
}
