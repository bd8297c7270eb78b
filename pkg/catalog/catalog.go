// Package catalog holds the node-table and rel-table schema registry: the
// explicit context object mutation APIs receive instead of a process-wide
// registry. Persisted as a single BSON document, the same marshal/
// unmarshal idiom the teacher's pkg/storage/bson.go wraps for documents,
// generalized here to a schema definition instead of row data.
package catalog

import (
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/bobboyms/graphdb/pkg/valuevec"
)

// ColumnSchema names one column's position and logical type.
type ColumnSchema struct {
	Name string              `bson:"name"`
	Type valuevec.LogicalTypeID `bson:"type"`
}

// NodeTableSchema describes one node table: its columns and which one is
// the primary key.
type NodeTableSchema struct {
	TableID   uint64         `bson:"tableId"`
	Name      string         `bson:"name"`
	Columns   []ColumnSchema `bson:"columns"`
	PKColumn  int            `bson:"pkColumn"` // index into Columns, -1 if SERIAL with no user-visible PK column
}

func (s *NodeTableSchema) PKType() (valuevec.LogicalTypeID, error) {
	if s.PKColumn < 0 || s.PKColumn >= len(s.Columns) {
		return 0, fmt.Errorf("catalog: table %q has no primary key column", s.Name)
	}
	return s.Columns[s.PKColumn].Type, nil
}

// RelTableSchema describes one rel table: its endpoint node tables and
// property columns. Rel tables have no PK of their own; identity is the
// (srcTableID, srcOffset, dstTableID, dstOffset, relID) tuple.
type RelTableSchema struct {
	TableID     uint64         `bson:"tableId"`
	Name        string         `bson:"name"`
	SrcTableID  uint64         `bson:"srcTableId"`
	DstTableID  uint64         `bson:"dstTableId"`
	Columns     []ColumnSchema `bson:"columns"`
}

// Catalog is the schema registry handed explicitly to node/rel table
// operations, never looked up through a global.
type Catalog struct {
	mu         sync.RWMutex
	nodeTables map[string]*NodeTableSchema
	relTables  map[string]*RelTableSchema
	nextTableID uint64
}

func New() *Catalog {
	return &Catalog{
		nodeTables: make(map[string]*NodeTableSchema),
		relTables:  make(map[string]*RelTableSchema),
	}
}

func (c *Catalog) CreateNodeTable(name string, columns []ColumnSchema, pkColumn int) (*NodeTableSchema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.nodeTables[name]; exists {
		return nil, fmt.Errorf("catalog: node table %q already exists", name)
	}
	if _, exists := c.relTables[name]; exists {
		return nil, fmt.Errorf("catalog: name %q already used by a rel table", name)
	}
	c.nextTableID++
	schema := &NodeTableSchema{
		TableID:  c.nextTableID,
		Name:     name,
		Columns:  columns,
		PKColumn: pkColumn,
	}
	c.nodeTables[name] = schema
	return schema, nil
}

func (c *Catalog) CreateRelTable(name string, src, dst *NodeTableSchema, columns []ColumnSchema) (*RelTableSchema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.relTables[name]; exists {
		return nil, fmt.Errorf("catalog: rel table %q already exists", name)
	}
	c.nextTableID++
	schema := &RelTableSchema{
		TableID:    c.nextTableID,
		Name:       name,
		SrcTableID: src.TableID,
		DstTableID: dst.TableID,
		Columns:    columns,
	}
	c.relTables[name] = schema
	return schema, nil
}

// AddNodeColumn extends tableName's schema with a new column, mirroring
// node_table.cpp's addColumn(): statistics (here, the column list itself)
// are extended under the same lock CreateNodeTable uses, so a concurrent
// reader never observes a partially-extended schema. It returns the new
// column's index.
func (c *Catalog) AddNodeColumn(tableName string, column ColumnSchema) (colIdx int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	schema, ok := c.nodeTables[tableName]
	if !ok {
		return 0, fmt.Errorf("catalog: node table %q not found", tableName)
	}
	for _, existing := range schema.Columns {
		if existing.Name == column.Name {
			return 0, fmt.Errorf("catalog: node table %q already has column %q", tableName, column.Name)
		}
	}
	schema.Columns = append(schema.Columns, column)
	return len(schema.Columns) - 1, nil
}

func (c *Catalog) NodeTable(name string) (*NodeTableSchema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.nodeTables[name]
	return s, ok
}

func (c *Catalog) RelTable(name string) (*RelTableSchema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.relTables[name]
	return s, ok
}

// snapshot is the BSON-serializable shape of the whole catalog.
type snapshot struct {
	NextTableID uint64            `bson:"nextTableId"`
	NodeTables  []NodeTableSchema `bson:"nodeTables"`
	RelTables   []RelTableSchema  `bson:"relTables"`
}

// Marshal encodes the catalog to BSON, the form the checkpoint manager
// persists it in.
func (c *Catalog) Marshal() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := snapshot{NextTableID: c.nextTableID}
	for _, t := range c.nodeTables {
		snap.NodeTables = append(snap.NodeTables, *t)
	}
	for _, t := range c.relTables {
		snap.RelTables = append(snap.RelTables, *t)
	}
	return bson.Marshal(snap)
}

// Unmarshal replaces the catalog's contents with a previously marshaled
// snapshot.
func Unmarshal(raw []byte) (*Catalog, error) {
	var snap snapshot
	if err := bson.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("catalog: unmarshal: %w", err)
	}
	c := New()
	c.nextTableID = snap.NextTableID
	for i := range snap.NodeTables {
		t := snap.NodeTables[i]
		c.nodeTables[t.Name] = &t
	}
	for i := range snap.RelTables {
		t := snap.RelTables[i]
		c.relTables[t.Name] = &t
	}
	return c, nil
}
