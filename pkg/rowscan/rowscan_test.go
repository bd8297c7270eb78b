package rowscan_test

import (
	"testing"

	"github.com/bobboyms/graphdb/pkg/rowscan"
	"github.com/bobboyms/graphdb/pkg/valuevec"
)

func TestEqualConstructor(t *testing.T) {
	cond := rowscan.Equal(valuevec.IntKey(10))
	if cond.Operator != rowscan.OpEqual {
		t.Fatalf("expected OpEqual, got %v", cond.Operator)
	}
	if cond.Value.Compare(valuevec.IntKey(10)) != 0 {
		t.Fatalf("expected value 10, got %v", cond.Value)
	}
}

func TestMatchesPerOperator(t *testing.T) {
	cases := []struct {
		name  string
		cond  *rowscan.Condition
		value valuevec.Comparable
		want  bool
	}{
		{"equal match", rowscan.Equal(valuevec.IntKey(5)), valuevec.IntKey(5), true},
		{"equal mismatch", rowscan.Equal(valuevec.IntKey(5)), valuevec.IntKey(6), false},
		{"not equal", rowscan.NotEqual(valuevec.IntKey(5)), valuevec.IntKey(6), true},
		{"greater than", rowscan.GreaterThan(valuevec.IntKey(5)), valuevec.IntKey(6), true},
		{"greater or equal boundary", rowscan.GreaterOrEqual(valuevec.IntKey(5)), valuevec.IntKey(5), true},
		{"less than", rowscan.LessThan(valuevec.IntKey(5)), valuevec.IntKey(4), true},
		{"less or equal boundary", rowscan.LessOrEqual(valuevec.IntKey(5)), valuevec.IntKey(5), true},
		{"between inside", rowscan.Between(valuevec.IntKey(1), valuevec.IntKey(10)), valuevec.IntKey(5), true},
		{"between outside", rowscan.Between(valuevec.IntKey(1), valuevec.IntKey(10)), valuevec.IntKey(11), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.cond.Matches(c.value); got != c.want {
				t.Fatalf("Matches(%v) = %v, want %v", c.value, got, c.want)
			}
		})
	}
}

func TestShouldSeek(t *testing.T) {
	if !rowscan.Equal(valuevec.IntKey(1)).ShouldSeek() {
		t.Fatalf("expected OpEqual to be seekable")
	}
	if rowscan.NotEqual(valuevec.IntKey(1)).ShouldSeek() {
		t.Fatalf("expected OpNotEqual to require a full scan")
	}
}

func TestShouldContinue(t *testing.T) {
	cond := rowscan.LessThan(valuevec.IntKey(10))
	if !cond.ShouldContinue(valuevec.IntKey(5)) {
		t.Fatalf("expected scan to continue before the bound")
	}
	if cond.ShouldContinue(valuevec.IntKey(10)) {
		t.Fatalf("expected scan to stop at the bound for OpLessThan")
	}
}
