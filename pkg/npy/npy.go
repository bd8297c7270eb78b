// Package npy implements a read-only NPY v1.0 reader, the external
// collaborator that feeds typed row batches into node/rel table bulk
// inserts.
//
// Grounded on original_source's
// src/processor/operator/persistent/reader/npy/npy_reader.cpp: the
// 6-byte magic + 1-byte major/minor version check, the little-endian
// uint16 header length, the ASCII dict literal holding descr/
// fortran_order/shape, the fortran_order==false requirement, the
// endianness check against descr's leading byte, and the
// f8/f4/i8/i4/i2 dtype mapping. readBlock's DEFAULT_VECTOR_CAPACITY
// batching becomes ReadBatch here.
package npy

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"github.com/bobboyms/graphdb/pkg/graphdberr"
	"github.com/bobboyms/graphdb/pkg/valuevec"
)

var magic = []byte{0x93, 'N', 'U', 'M', 'P', 'Y'}

// BatchCapacity mirrors DEFAULT_VECTOR_CAPACITY: the max number of rows
// ReadBatch returns per call.
const BatchCapacity = valuevec.DefaultVectorCapacity

// Reader parses an NPY v1.0 file's header and serves its rows in
// batches.
type Reader struct {
	f         *os.File
	r         *bufio.Reader
	path      string
	Type      valuevec.LogicalTypeID
	Shape     []int64
	dataStart int64
	rowsRead  int64
}

// Open parses path's header and validates it per npy_reader.cpp's
// parseHeader/validate: magic, version 1.0, ASCII header dict, no
// fortran-order arrays, dtype one of f8/f4/i8/i4/i2, host-matching
// endianness.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &graphdberr.PageIOError{FilePath: path, Op: "open", Err: err}
	}
	r := bufio.NewReader(f)

	var head [8]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		f.Close()
		return nil, &graphdberr.MalformedNPYHeaderError{Path: path, Reason: "file shorter than the 8-byte magic+version prefix"}
	}
	for i := range magic {
		if head[i] != magic[i] {
			f.Close()
			return nil, &graphdberr.MalformedNPYHeaderError{Path: path, Reason: "bad magic bytes, not a NUMPY file"}
		}
	}
	major, minor := head[6], head[7]
	if major != 1 || minor != 0 {
		f.Close()
		return nil, &graphdberr.MalformedNPYHeaderError{Path: path, Reason: fmt.Sprintf("unsupported npy version %d.%d, only 1.0 is supported", major, minor)}
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		f.Close()
		return nil, &graphdberr.MalformedNPYHeaderError{Path: path, Reason: "truncated header length field"}
	}
	headerLen := binary.LittleEndian.Uint16(lenBuf[:])

	headerBuf := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		f.Close()
		return nil, &graphdberr.MalformedNPYHeaderError{Path: path, Reason: "truncated header dict"}
	}

	descr, fortranOrder, shape, err := parseHeaderDict(string(headerBuf))
	if err != nil {
		f.Close()
		return nil, &graphdberr.MalformedNPYHeaderError{Path: path, Reason: err.Error()}
	}
	if fortranOrder {
		f.Close()
		return nil, &graphdberr.MalformedNPYHeaderError{Path: path, Reason: "fortran-order arrays are not supported"}
	}

	typ, err := parseDtype(descr)
	if err != nil {
		f.Close()
		return nil, &graphdberr.MalformedNPYHeaderError{Path: path, Reason: err.Error()}
	}

	return &Reader{
		f:         f,
		r:         r,
		path:      path,
		Type:      typ,
		Shape:     shape,
		dataStart: int64(8 + 2 + int(headerLen)),
	}, nil
}

func (r *Reader) Close() error { return r.f.Close() }

// NumRows is Shape[0], the row count the original validates column
// lengths against.
func (r *Reader) NumRows() int64 {
	if len(r.Shape) == 0 {
		return 0
	}
	return r.Shape[0]
}

func parseHeaderDict(dict string) (descr string, fortranOrder bool, shape []int64, err error) {
	get := func(key string) (string, bool) {
		idx := strings.Index(dict, "'"+key+"'")
		if idx < 0 {
			return "", false
		}
		rest := dict[idx+len(key)+2:]
		colon := strings.Index(rest, ":")
		if colon < 0 {
			return "", false
		}
		rest = strings.TrimSpace(rest[colon+1:])
		rest = strings.TrimPrefix(rest, ":")
		rest = strings.TrimSpace(rest)

		if strings.HasPrefix(rest, "'") {
			end := strings.Index(rest[1:], "'")
			if end < 0 {
				return "", false
			}
			return rest[1 : 1+end], true
		}
		if strings.HasPrefix(rest, "(") {
			end := strings.Index(rest, ")")
			if end < 0 {
				return "", false
			}
			return rest[:end+1], true
		}
		comma := strings.IndexAny(rest, ",}")
		if comma < 0 {
			comma = len(rest)
		}
		return strings.TrimSpace(rest[:comma]), true
	}

	descr, ok := get("descr")
	if !ok {
		return "", false, nil, fmt.Errorf("header dict missing 'descr'")
	}
	forStr, ok := get("fortran_order")
	if !ok {
		return "", false, nil, fmt.Errorf("header dict missing 'fortran_order'")
	}
	fortranOrder = forStr == "True"

	shapeStr, ok := get("shape")
	if !ok {
		return "", false, nil, fmt.Errorf("header dict missing 'shape'")
	}
	shapeStr = strings.TrimPrefix(shapeStr, "(")
	shapeStr = strings.TrimSuffix(shapeStr, ")")
	for _, part := range strings.Split(shapeStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return "", false, nil, fmt.Errorf("malformed shape entry %q: %w", part, err)
		}
		shape = append(shape, n)
	}
	return descr, fortranOrder, shape, nil
}

func parseDtype(descr string) (valuevec.LogicalTypeID, error) {
	if descr == "" {
		return 0, fmt.Errorf("empty descr")
	}
	endianByte := descr[0]
	body := descr
	switch endianByte {
	case '<':
		body = descr[1:]
		if hostIsBigEndian() {
			return 0, fmt.Errorf("descr %q is little-endian but host is big-endian", descr)
		}
	case '>':
		body = descr[1:]
		if !hostIsBigEndian() {
			return 0, fmt.Errorf("descr %q is big-endian but host is little-endian", descr)
		}
	case '|', '=':
		body = descr[1:]
	}

	switch body {
	case "f8":
		return valuevec.Double, nil
	case "f4":
		return valuevec.Float, nil
	case "i8":
		return valuevec.Int64, nil
	case "i4":
		return valuevec.Int32, nil
	case "i2":
		return valuevec.Int16, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %q", descr)
	}
}

func hostIsBigEndian() bool {
	var x uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&x))
	return b[0] == 0
}

// ReadBatch fills vec with up to BatchCapacity rows read sequentially
// from the file, mirroring readBlock's per-call row cap. Returns the
// number of rows read; 0, nil at end of file.
func (r *Reader) ReadBatch() (*valuevec.Vector, int, error) {
	vec := valuevec.NewVector(r.Type, BatchCapacity)
	remaining := r.NumRows() - r.rowsRead
	if remaining <= 0 {
		return vec, 0, nil
	}
	n := int64(BatchCapacity)
	if remaining < n {
		n = remaining
	}

	elemSize := dtypeSize(r.Type)
	buf := make([]byte, int(n)*elemSize)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, 0, &graphdberr.PageIOError{FilePath: r.path, Op: "read npy rows", Err: err}
	}

	for i := int64(0); i < n; i++ {
		off := int(i) * elemSize
		vec.Values[i] = decodeElement(r.Type, buf[off:off+elemSize])
		vec.SelectedPositions[i] = uint32(i)
	}
	vec.SelectedSize = int(n)
	r.rowsRead += n
	return vec, int(n), nil
}

func dtypeSize(t valuevec.LogicalTypeID) int {
	switch t {
	case valuevec.Double, valuevec.Int64:
		return 8
	case valuevec.Float, valuevec.Int32:
		return 4
	case valuevec.Int16:
		return 2
	default:
		return 0
	}
}

func decodeElement(t valuevec.LogicalTypeID, b []byte) valuevec.Value {
	switch t {
	case valuevec.Double:
		bits := binary.LittleEndian.Uint64(b)
		return valuevec.Value{Type: t, Data: math.Float64frombits(bits)}
	case valuevec.Float:
		bits := binary.LittleEndian.Uint32(b)
		return valuevec.Value{Type: t, Data: math.Float32frombits(bits)}
	case valuevec.Int64:
		return valuevec.Value{Type: t, Data: int64(binary.LittleEndian.Uint64(b))}
	case valuevec.Int32:
		return valuevec.Value{Type: t, Data: int32(binary.LittleEndian.Uint32(b))}
	case valuevec.Int16:
		return valuevec.Value{Type: t, Data: int16(binary.LittleEndian.Uint16(b))}
	default:
		return valuevec.Value{Type: t, IsNull: true}
	}
}
