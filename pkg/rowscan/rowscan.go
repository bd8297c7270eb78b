// Package rowscan implements predicate matching for full node/rel table
// scans: the comparison operators a caller uses when a lookup isn't a
// primary-key equality match the hash index can serve directly, e.g.
// "every Person older than 30".
//
// Grounded on the teacher's pkg/query/scan.go (ScanCondition, operator
// set, Matches/ShouldContinue short-circuiting), generalized from
// pkg/types.Comparable keys to valuevec.Comparable property values so it
// can filter on any node/rel table column, not just an indexed key.
package rowscan

import "github.com/bobboyms/graphdb/pkg/valuevec"

type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterOrEqual
	OpLessThan
	OpLessOrEqual
	OpBetween
)

// Condition is one column predicate a Scan evaluates against each row's
// decoded property value.
type Condition struct {
	Operator Operator
	Value    valuevec.Comparable
	ValueEnd valuevec.Comparable // only used by OpBetween
}

func Equal(v valuevec.Comparable) *Condition          { return &Condition{Operator: OpEqual, Value: v} }
func NotEqual(v valuevec.Comparable) *Condition       { return &Condition{Operator: OpNotEqual, Value: v} }
func GreaterThan(v valuevec.Comparable) *Condition    { return &Condition{Operator: OpGreaterThan, Value: v} }
func GreaterOrEqual(v valuevec.Comparable) *Condition { return &Condition{Operator: OpGreaterOrEqual, Value: v} }
func LessThan(v valuevec.Comparable) *Condition       { return &Condition{Operator: OpLessThan, Value: v} }
func LessOrEqual(v valuevec.Comparable) *Condition    { return &Condition{Operator: OpLessOrEqual, Value: v} }
func Between(start, end valuevec.Comparable) *Condition {
	return &Condition{Operator: OpBetween, Value: start, ValueEnd: end}
}

// Matches reports whether value satisfies the condition.
func (c *Condition) Matches(value valuevec.Comparable) bool {
	switch c.Operator {
	case OpEqual:
		return value.Compare(c.Value) == 0
	case OpNotEqual:
		return value.Compare(c.Value) != 0
	case OpGreaterThan:
		return value.Compare(c.Value) > 0
	case OpGreaterOrEqual:
		return value.Compare(c.Value) >= 0
	case OpLessThan:
		return value.Compare(c.Value) < 0
	case OpLessOrEqual:
		return value.Compare(c.Value) <= 0
	case OpBetween:
		return value.Compare(c.Value) >= 0 && value.Compare(c.ValueEnd) <= 0
	default:
		return false
	}
}

// ShouldSeek reports whether an ordered scan can jump straight to
// GetStartKey instead of starting at offset 0 — moot for the node/rel
// tables' unordered page layout today (every scan is a linear pass over
// offsets), but kept so a future ordered secondary index can reuse this
// condition type without a rewrite.
func (c *Condition) ShouldSeek() bool {
	switch c.Operator {
	case OpEqual, OpGreaterThan, OpGreaterOrEqual, OpBetween:
		return true
	default:
		return false
	}
}

func (c *Condition) GetStartKey() valuevec.Comparable {
	if c.ShouldSeek() {
		return c.Value
	}
	return nil
}

// ShouldContinue reports whether a scan walking rows in ascending key
// order can stop once it has passed value, e.g. an OpLessThan scan over
// an ordered index. Unused by the current unordered linear scan but
// evaluated by rowscan's tests so the short-circuit logic itself stays
// correct for when an ordered scan path is added.
func (c *Condition) ShouldContinue(value valuevec.Comparable) bool {
	switch c.Operator {
	case OpEqual:
		return value.Compare(c.Value) <= 0
	case OpLessThan:
		return value.Compare(c.Value) < 0
	case OpLessOrEqual:
		return value.Compare(c.Value) <= 0
	case OpBetween:
		return value.Compare(c.ValueEnd) <= 0
	default:
		return true
	}
}
