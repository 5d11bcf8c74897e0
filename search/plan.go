package search

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/kvsearch/condition"
	"github.com/hupe1980/kvsearch/index"
	"github.com/hupe1980/kvsearch/model"
	"github.com/hupe1980/kvsearch/ordering"
	"github.com/hupe1980/kvsearch/partition"
)

// Plan is a compiled request. It is immutable and shared by every shard task
// and the merge of one search.
type Plan struct {
	// Query selects the matching documents.
	Query index.Query
	// Scored reports whether relevance scores are computed.
	Scored bool
	// Sort lists the compiled sort fields, in order.
	Sort []SortField
	// Comparator orders hits on shards and across shards.
	Comparator ordering.Comparator
	// Fingerprint identifies the plan; resume tokens are bound to it.
	Fingerprint uint64
	// Stats are collection statistics for scoring. Nil scores every shard
	// with its own statistics.
	Stats *index.Stats
}

// WithStats returns a copy of p that scores with st.
func (p *Plan) WithStats(st *index.Stats) *Plan {
	cp := *p
	cp.Stats = st
	return &cp
}

// Compile validates req against the schema and builds its plan. No error is
// deferred to execution time.
func Compile(req *Request, r condition.Resolver, layout partition.Layout) (*Plan, error) {
	if req == nil {
		req = NewRequest()
	}

	var query, filter index.Query
	if req.Query != nil {
		q, err := condition.Compile(req.Query, r)
		if err != nil {
			return nil, err
		}
		query = q
	}
	if req.Filter != nil {
		f, err := condition.Compile(req.Filter, r)
		if err != nil {
			return nil, err
		}
		filter = f
	}

	p := &Plan{Scored: query != nil}
	switch {
	case query != nil && filter != nil:
		p.Query = index.BooleanQuery{Must: []index.Query{query}, Filter: []index.Query{filter}}
	case query != nil:
		p.Query = query
	case filter != nil:
		p.Query = index.BooleanQuery{Filter: []index.Query{filter}}
	default:
		p.Query = index.MatchAllQuery{}
	}

	natural := ordering.NewNatural(layout)
	keys := make([]ordering.SortKey, 0, len(req.Sort))
	for _, sb := range req.Sort {
		sf, err := sb.Build(r)
		if err != nil {
			return nil, err
		}
		p.Sort = append(p.Sort, sf)
		keys = append(keys, sf.Key())
	}
	switch {
	case len(keys) > 0:
		p.Comparator = ordering.NewSorted(natural, keys...)
	case p.Scored:
		p.Comparator = ordering.NewScoring(natural)
	default:
		p.Comparator = natural
	}

	p.Fingerprint = xxhash.Sum64String(p.Explain())
	return p, nil
}

// Hit builds the hit of a matching document, resolving its sort values.
func (p *Plan) Hit(dv DocValues, doc uint32, key model.RowKey, score float32) model.Hit {
	h := model.Hit{Key: key, Score: score}
	if len(p.Sort) > 0 {
		h.Sort = make([]model.Value, len(p.Sort))
		for i, sf := range p.Sort {
			h.Sort[i] = sf.Value(dv, doc)
		}
	}
	return h
}

// Explain describes the plan.
func (p *Plan) Explain() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "query: %s\n", p.Query)
	fmt.Fprintf(&sb, "scored: %t\n", p.Scored)
	if len(p.Sort) > 0 {
		parts := make([]string, len(p.Sort))
		for i, sf := range p.Sort {
			parts[i] = sf.String()
		}
		fmt.Fprintf(&sb, "sort: %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&sb, "order: %s\n", p.Comparator.Describe())
	return sb.String()
}
