// Package valuevec implements the logical value system shared by the hash
// index, node table and rel table: typed scalar values, the Comparable key
// family PK keys and scan predicates use, and fixed-capacity value
// vectors batches of rows travel in.
package valuevec

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// DefaultVectorCapacity bounds how many rows a single Vector carries, the
// same batching unit the npy reader fills and the node/rel table mutation
// APIs accept.
const DefaultVectorCapacity = 2048

// LogicalTypeID names the stored scalar types the mutation core knows
// about. It intentionally stops well short of a full type system: callers
// above this module own query-language typing.
type LogicalTypeID uint8

const (
	Int64 LogicalTypeID = iota
	Int32
	Int16
	Double
	Float
	Bool
	StringType
	Date
	InternalIDType
	Serial
)

func (t LogicalTypeID) String() string {
	switch t {
	case Int64:
		return "INT64"
	case Int32:
		return "INT32"
	case Int16:
		return "INT16"
	case Double:
		return "DOUBLE"
	case Float:
		return "FLOAT"
	case Bool:
		return "BOOL"
	case StringType:
		return "STRING"
	case Date:
		return "DATE"
	case InternalIDType:
		return "INTERNAL_ID"
	case Serial:
		return "SERIAL"
	default:
		return "UNKNOWN"
	}
}

// InternalID identifies a row inside a table by table id and row offset,
// the value rel tables store as their src/dst endpoints.
type InternalID struct {
	TableID uint64
	Offset  uint64
}

func (id InternalID) String() string {
	return fmt.Sprintf("%d:%d", id.TableID, id.Offset)
}

// Value is a single typed, possibly-null scalar. The concrete Go type
// backing Data depends on Type: int64, int32, int16, float64, float32,
// bool, string, time.Time, InternalID.
type Value struct {
	Type   LogicalTypeID
	IsNull bool
	Data   any
}

func NullValue(t LogicalTypeID) Value { return Value{Type: t, IsNull: true} }

// Comparable is the interface PK keys and scan predicates are compared
// through, mirroring the original storage engine's key family. The hash
// index does not compare through it; it hashes serialized keys.
type Comparable interface {
	Compare(other Comparable) int
	String() string
}

type IntKey int64

func (k IntKey) Compare(other Comparable) int {
	o := other.(IntKey)
	switch {
	case k < o:
		return -1
	case k > o:
		return 1
	default:
		return 0
	}
}
func (k IntKey) String() string { return fmt.Sprintf("%d", int64(k)) }

type VarcharKey string

func (k VarcharKey) Compare(other Comparable) int {
	o := other.(VarcharKey)
	switch {
	case k < o:
		return -1
	case k > o:
		return 1
	default:
		return 0
	}
}
func (k VarcharKey) String() string { return string(k) }

type FloatKey float64

func (k FloatKey) Compare(other Comparable) int {
	o := other.(FloatKey)
	switch {
	case k < o:
		return -1
	case k > o:
		return 1
	default:
		return 0
	}
}
func (k FloatKey) String() string { return fmt.Sprintf("%f", float64(k)) }

type BoolKey bool

func (k BoolKey) Compare(other Comparable) int {
	o := other.(BoolKey)
	if k == o {
		return 0
	}
	if !k && o {
		return -1
	}
	return 1
}
func (k BoolKey) String() string { return fmt.Sprintf("%t", bool(k)) }

type DateKey time.Time

func (k DateKey) Compare(other Comparable) int {
	o := time.Time(other.(DateKey))
	t := time.Time(k)
	switch {
	case t.Before(o):
		return -1
	case t.After(o):
		return 1
	default:
		return 0
	}
}
func (k DateKey) String() string { return time.Time(k).Format(time.RFC3339) }

// KeyFromValue projects a Value into the Comparable the hash index hashes
// and orders on. Returns an error the caller should surface as a
// MalformedInput condition; it never panics on an unexpected Go type.
func KeyFromValue(v Value) (Comparable, error) {
	if v.IsNull {
		return nil, fmt.Errorf("cannot derive key from null value")
	}
	switch v.Type {
	case Int64, Int32, Int16, Serial:
		switch n := v.Data.(type) {
		case int64:
			return IntKey(n), nil
		case int32:
			return IntKey(n), nil
		case int16:
			return IntKey(n), nil
		case int:
			return IntKey(n), nil
		default:
			return nil, fmt.Errorf("key type %s backed by unexpected go type %T", v.Type, v.Data)
		}
	case StringType:
		s, ok := v.Data.(string)
		if !ok {
			return nil, fmt.Errorf("key type STRING backed by unexpected go type %T", v.Data)
		}
		return VarcharKey(s), nil
	case Double, Float:
		switch n := v.Data.(type) {
		case float64:
			return FloatKey(n), nil
		case float32:
			return FloatKey(n), nil
		default:
			return nil, fmt.Errorf("key type %s backed by unexpected go type %T", v.Type, v.Data)
		}
	case Bool:
		b, ok := v.Data.(bool)
		if !ok {
			return nil, fmt.Errorf("key type BOOL backed by unexpected go type %T", v.Data)
		}
		return BoolKey(b), nil
	case Date:
		t, ok := v.Data.(time.Time)
		if !ok {
			return nil, fmt.Errorf("key type DATE backed by unexpected go type %T", v.Data)
		}
		return DateKey(t), nil
	default:
		return nil, fmt.Errorf("logical type %s is not a valid primary key type", v.Type)
	}
}

// Vector holds up to DefaultVectorCapacity rows plus the selection vector
// identifying which positions within the backing slice are live, the same
// shape the npy reader and node/rel table scans exchange batches in.
type Vector struct {
	Type              LogicalTypeID
	Values            []Value
	SelectedPositions []uint32
	SelectedSize      int
}

func NewVector(t LogicalTypeID, capacity int) *Vector {
	if capacity <= 0 || capacity > DefaultVectorCapacity {
		capacity = DefaultVectorCapacity
	}
	sel := make([]uint32, capacity)
	for i := range sel {
		sel[i] = uint32(i)
	}
	return &Vector{
		Type:              t,
		Values:            make([]Value, capacity),
		SelectedPositions: sel,
		SelectedSize:      0,
	}
}

// IsSequential reports whether the selection vector is the identity
// 0..SelectedSize-1, the fast path node table scans take instead of random
// lookups.
func (v *Vector) IsSequential() bool {
	for i := 0; i < v.SelectedSize; i++ {
		if v.SelectedPositions[i] != uint32(i) {
			return false
		}
	}
	return true
}

// EncodeProperties serializes a property map to BSON, the on-disk encoding
// node/rel table property columns use.
func EncodeProperties(props map[string]any) ([]byte, error) {
	return bson.Marshal(props)
}

// DecodeProperties is the inverse of EncodeProperties.
func DecodeProperties(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
