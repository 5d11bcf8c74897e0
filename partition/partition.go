// Package partition describes how rows of a table are partitioned and
// clustered: the partition token function and the clustering-key comparator
// that together define storage order.
package partition

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/kvsearch/model"
)

// Partitioner maps a serialized partition key to its token.
type Partitioner interface {
	Token(partitionKey []byte) model.Token
	Name() string
}

// XXHash is the default Partitioner. Tokens are the 64-bit xxhash of the
// partition key interpreted as a signed integer.
type XXHash struct{}

// Token implements Partitioner.
func (XXHash) Token(partitionKey []byte) model.Token {
	return model.Token(int64(xxhash.Sum64(partitionKey))) //nolint:gosec // wrap-around is intended
}

// Name implements Partitioner.
func (XXHash) Name() string { return "xxhash" }

// Func adapts a function to the Partitioner interface. Useful in tests that
// need predictable tokens.
type Func func(partitionKey []byte) model.Token

// Token implements Partitioner.
func (f Func) Token(partitionKey []byte) model.Token { return f(partitionKey) }

// Name implements Partitioner.
func (Func) Name() string { return "func" }

// ClusteringColumn describes one clustering component.
type ClusteringColumn struct {
	Name    string     `json:"name"`
	Type    model.Kind `json:"type"`
	Reverse bool       `json:"reverse,omitempty"`
}

// Layout is the primary-key layout of a table.
type Layout struct {
	PartitionKey []string           `json:"partition_key"`
	Clustering   []ClusteringColumn `json:"clustering,omitempty"`
	Partitioner  Partitioner        `json:"-"`
}

// Wide reports whether the table stores many rows per partition.
func (l Layout) Wide() bool { return len(l.Clustering) > 0 }

// Validate checks the layout for consistency.
func (l Layout) Validate() error {
	if len(l.PartitionKey) == 0 {
		return errors.New("partition: layout needs at least one partition key column")
	}
	seen := make(map[string]struct{}, len(l.PartitionKey)+len(l.Clustering))
	for _, name := range l.PartitionKey {
		if name == "" {
			return errors.New("partition: empty partition key column name")
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("partition: duplicate key column %q", name)
		}
		seen[name] = struct{}{}
	}
	for _, c := range l.Clustering {
		if c.Name == "" {
			return errors.New("partition: empty clustering column name")
		}
		if _, ok := seen[c.Name]; ok {
			return fmt.Errorf("partition: duplicate key column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

func (l Layout) partitioner() Partitioner {
	if l.Partitioner == nil {
		return XXHash{}
	}
	return l.Partitioner
}

// Key derives the row identity from the row's column values.
func (l Layout) Key(columns map[string]model.Value) (model.RowKey, error) {
	var buf bytes.Buffer
	for i, name := range l.PartitionKey {
		v, ok := columns[name]
		if !ok || v.IsNull() {
			return model.RowKey{}, fmt.Errorf("partition: missing partition key column %q", name)
		}
		if i > 0 {
			buf.WriteByte(0)
		}
		buf.WriteString(v.Key())
	}

	var clustering model.ClusteringKey
	if len(l.Clustering) > 0 {
		clustering = make(model.ClusteringKey, len(l.Clustering))
		for i, c := range l.Clustering {
			v, ok := columns[c.Name]
			if !ok || v.IsNull() {
				return model.RowKey{}, fmt.Errorf("partition: missing clustering column %q", c.Name)
			}
			clustering[i] = v
		}
	}

	pk := buf.Bytes()
	return model.RowKey{
		Token:      l.partitioner().Token(pk),
		Partition:  pk,
		Clustering: clustering,
	}, nil
}

// NewRecord builds a model.Record whose key is derived from its columns.
func (l Layout) NewRecord(columns map[string]model.Value) (*model.Record, error) {
	key, err := l.Key(columns)
	if err != nil {
		return nil, err
	}
	return model.NewRecord(key, columns), nil
}

// ClusteringType compares clustering keys the way the storage engine orders
// rows within a partition.
type ClusteringType struct {
	columns []ClusteringColumn
}

// NewClusteringType creates the comparator for the given clustering columns.
func NewClusteringType(columns []ClusteringColumn) ClusteringType {
	return ClusteringType{columns: columns}
}

// Compare orders two clustering keys component by component. A key that is a
// strict prefix of the other orders first.
func (c ClusteringType) Compare(a, b model.ClusteringKey) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		r := model.Compare(a[i], b[i])
		if i < len(c.columns) && c.columns[i].Reverse {
			r = -r
		}
		if r != 0 {
			return r
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// String describes the comparator.
func (c ClusteringType) String() string {
	var buf bytes.Buffer
	buf.WriteString("clustering(")
	for i, col := range c.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(col.Name)
		buf.WriteByte(':')
		buf.WriteString(col.Type.String())
		if col.Reverse {
			buf.WriteString(" desc")
		}
	}
	buf.WriteByte(')')
	return buf.String()
}
