package index

import "github.com/hupe1980/kvsearch/lexical/bm25"

// Stats are the collection statistics a scored query reads: the length
// statistics of each text field and the document frequency of each term.
//
// Stats of several indexes can be summed so that every index scores with the
// statistics of the whole collection.
type Stats struct {
	Fields  map[string]bm25.Stats
	DocFreq map[string]map[string]int
}

// NewStats returns empty statistics.
func NewStats() *Stats {
	return &Stats{
		Fields:  make(map[string]bm25.Stats),
		DocFreq: make(map[string]map[string]int),
	}
}

// Add accumulates o into s.
func (s *Stats) Add(o *Stats) {
	for name, fs := range o.Fields {
		cur := s.Fields[name]
		cur.DocCount += fs.DocCount
		cur.TotalLength += fs.TotalLength
		s.Fields[name] = cur
	}
	for name, dfs := range o.DocFreq {
		cur, ok := s.DocFreq[name]
		if !ok {
			cur = make(map[string]int, len(dfs))
			s.DocFreq[name] = cur
		}
		for term, df := range dfs {
			cur[term] += df
		}
	}
}

// Divide scales s down by n, the number of indexes holding a copy of each
// document.
func (s *Stats) Divide(n int) {
	if n <= 1 {
		return
	}
	for name, fs := range s.Fields {
		fs.DocCount /= n
		fs.TotalLength /= int64(n)
		s.Fields[name] = fs
	}
	for _, dfs := range s.DocFreq {
		for term, df := range dfs {
			dfs[term] = df / n
		}
	}
}

// Stats returns the statistics of the fields and terms q scores on.
func (ix *Index) Stats(q Query) *Stats {
	st := NewStats()

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	visitScoredTerms(q, func(name, term string) {
		f, ok := ix.fields[name]
		if !ok {
			return
		}
		st.Fields[name] = f.stats()
		dfs, ok := st.DocFreq[name]
		if !ok {
			dfs = make(map[string]int)
			st.DocFreq[name] = dfs
		}
		df := 0
		if bm, ok := f.postings[term]; ok {
			df = int(bm.GetCardinality())
		}
		dfs[term] = df
	})
	return st
}

// visitScoredTerms calls fn for every term of q that contributes to scores.
// Filter and Not clauses never score.
func visitScoredTerms(q Query, fn func(field, term string)) {
	switch q := q.(type) {
	case TermQuery:
		fn(q.Field, q.Term)
	case *TermQuery:
		fn(q.Field, q.Term)
	case PhraseQuery:
		for _, t := range q.Terms {
			fn(q.Field, t)
		}
	case *PhraseQuery:
		visitScoredTerms(*q, fn)
	case BooleanQuery:
		for _, c := range q.Must {
			visitScoredTerms(c, fn)
		}
		for _, c := range q.Should {
			visitScoredTerms(c, fn)
		}
	case *BooleanQuery:
		visitScoredTerms(*q, fn)
	case BoostQuery:
		visitScoredTerms(q.Query, fn)
	case *BoostQuery:
		visitScoredTerms(q.Query, fn)
	}
}
