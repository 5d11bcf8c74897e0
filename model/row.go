package model

import (
	"context"
	"encoding/hex"
	"io"
	"strconv"
	"strings"
)

// Token is the partition token derived from a partition key.
// Tokens order as signed integers.
type Token int64

// ClusteringKey holds the clustering components of a row in a wide table.
// It is empty for tables without clustering columns.
type ClusteringKey []Value

// Key returns a stable string representation.
func (c ClusteringKey) Key() string {
	if len(c) == 0 {
		return ""
	}
	parts := make([]string, len(c))
	for i := range c {
		parts[i] = c[i].Key()
	}
	return strings.Join(parts, "\x1f")
}

// RowKey identifies a logical row: partition token, raw partition key and
// clustering key.
type RowKey struct {
	Token      Token         `json:"t"`
	Partition  []byte        `json:"p,omitempty"`
	Clustering ClusteringKey `json:"c,omitempty"`
}

// ID returns the stable identity of the row. Two keys have the same ID if and
// only if they address the same logical row.
func (k RowKey) ID() string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(int64(k.Token), 16))
	sb.WriteByte('/')
	sb.WriteString(hex.EncodeToString(k.Partition))
	if len(k.Clustering) > 0 {
		sb.WriteByte('/')
		sb.WriteString(k.Clustering.Key())
	}
	return sb.String()
}

// String implements fmt.Stringer.
func (k RowKey) String() string {
	var sb strings.Builder
	sb.WriteString("token=")
	sb.WriteString(strconv.FormatInt(int64(k.Token), 10))
	sb.WriteString(" partition=")
	sb.WriteString(hex.EncodeToString(k.Partition))
	if len(k.Clustering) > 0 {
		sb.WriteString(" clustering=")
		sb.WriteString(List(k.Clustering...).String())
	}
	return sb.String()
}

// Row is a read view over one row of the underlying store.
type Row interface {
	// Key returns the identity of the row.
	Key() RowKey
	// Column returns the value of a column. The boolean is false when the
	// column does not exist in the row's table; an existing column without a
	// value yields a null Value and true.
	Column(name string) (Value, bool)
}

// Record is the in-memory Row implementation.
type Record struct {
	RowKey  RowKey           `json:"key"`
	Columns map[string]Value `json:"columns"`
}

// NewRecord creates a Record.
func NewRecord(key RowKey, columns map[string]Value) *Record {
	if columns == nil {
		columns = make(map[string]Value)
	}
	return &Record{RowKey: key, Columns: columns}
}

// Key implements Row.
func (r *Record) Key() RowKey { return r.RowKey }

// Column implements Row.
func (r *Record) Column(name string) (Value, bool) {
	v, ok := r.Columns[name]
	return v, ok
}

// RowIterator iterates rows of one partition range in storage order.
// Next returns io.EOF when exhausted.
type RowIterator interface {
	Next(ctx context.Context) (Row, error)
	Close() error
}

// SliceRowIterator is a RowIterator over an in-memory slice.
type SliceRowIterator struct {
	rows []Row
	pos  int
}

// NewSliceRowIterator creates a RowIterator over rows.
func NewSliceRowIterator(rows ...Row) *SliceRowIterator {
	return &SliceRowIterator{rows: rows}
}

// Next implements RowIterator.
func (it *SliceRowIterator) Next(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.rows) {
		return nil, io.EOF
	}
	r := it.rows[it.pos]
	it.pos++
	return r, nil
}

// Close implements RowIterator.
func (it *SliceRowIterator) Close() error { return nil }
