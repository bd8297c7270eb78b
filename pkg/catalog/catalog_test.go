package catalog

import (
	"testing"

	"github.com/bobboyms/graphdb/pkg/valuevec"
)

func TestCreateNodeAndRelTableRoundTripsThroughBSON(t *testing.T) {
	c := New()

	person, err := c.CreateNodeTable("Person", []ColumnSchema{
		{Name: "id", Type: valuevec.StringType},
		{Name: "age", Type: valuevec.Int64},
	}, 0)
	if err != nil {
		t.Fatalf("CreateNodeTable: %v", err)
	}

	if _, err := c.CreateRelTable("Knows", person, person, []ColumnSchema{
		{Name: "since", Type: valuevec.Date},
	}); err != nil {
		t.Fatalf("CreateRelTable: %v", err)
	}

	raw, err := c.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	restored, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	got, ok := restored.NodeTable("Person")
	if !ok {
		t.Fatalf("expected Person table to survive round trip")
	}
	if got.TableID != person.TableID || len(got.Columns) != 2 {
		t.Fatalf("unexpected restored schema: %+v", got)
	}

	rel, ok := restored.RelTable("Knows")
	if !ok || rel.SrcTableID != person.TableID {
		t.Fatalf("expected Knows rel table to survive round trip, got %+v ok=%v", rel, ok)
	}
}

func TestCreateNodeTableRejectsDuplicateName(t *testing.T) {
	c := New()
	if _, err := c.CreateNodeTable("Person", nil, -1); err != nil {
		t.Fatalf("CreateNodeTable: %v", err)
	}
	if _, err := c.CreateNodeTable("Person", nil, -1); err == nil {
		t.Fatalf("expected duplicate table name to error")
	}
}
