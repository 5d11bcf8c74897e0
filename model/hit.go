package model

// Hit is a matching row identity as produced by an index shard.
type Hit struct {
	Key RowKey `json:"key"`
	// Score is the relevance score; zero for unscored searches.
	Score float32 `json:"score,omitempty"`
	// Sort holds the values of the sort fields, in sort order.
	Sort []Value `json:"sort,omitempty"`
	// Shard is the shard that produced the hit.
	Shard int `json:"shard"`
}

// ID returns the identity of the hit's row.
func (h Hit) ID() string { return h.Key.ID() }
