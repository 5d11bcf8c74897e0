package index

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/kvsearch/lexical/bm25"
)

// Query is an executable index query. Queries are immutable and may be
// evaluated concurrently against any number of indexes.
type Query interface {
	fmt.Stringer
	execute(s *searcher) (*resultSet, error)
}

type searcher struct {
	ix     *Index
	scored bool
	stats  *Stats
	ctx    context.Context
}

func (s *searcher) field(name string) *field {
	return s.ix.fields[name]
}

// fieldStats returns the statistics of a text field, preferring the
// collection statistics the search was given.
func (s *searcher) fieldStats(name string, f *field) bm25.Stats {
	if s.stats != nil {
		if st, ok := s.stats.Fields[name]; ok {
			return st
		}
	}
	return f.stats()
}

func (s *searcher) docFreq(name, term string, local *roaring.Bitmap) int {
	if s.stats != nil {
		if df, ok := s.stats.DocFreq[name][term]; ok {
			return df
		}
	}
	return int(local.GetCardinality())
}

func (s *searcher) universe() *roaring.Bitmap {
	return s.ix.live.Clone()
}

// resultSet is the outcome of evaluating a query: matching documents and,
// for scored searches, their scores. A nil scores map means every document
// scores constant.
type resultSet struct {
	docs     *roaring.Bitmap
	scores   map[uint32]float32
	constant float32
}

func (r *resultSet) score(doc uint32) float32 {
	if r.scores != nil {
		return r.scores[doc]
	}
	return r.constant
}

func empty() *resultSet { return &resultSet{docs: roaring.New()} }

func constantSet(docs *roaring.Bitmap) *resultSet {
	return &resultSet{docs: docs, constant: 1}
}

// MatchAllQuery matches every document.
type MatchAllQuery struct{}

func (MatchAllQuery) execute(s *searcher) (*resultSet, error) {
	return constantSet(s.universe()), nil
}

func (MatchAllQuery) String() string { return "*:*" }

// MatchNoneQuery matches no document.
type MatchNoneQuery struct{}

func (MatchNoneQuery) execute(*searcher) (*resultSet, error) { return empty(), nil }

func (MatchNoneQuery) String() string { return "-*:*" }

// TermQuery matches documents containing an exact term. On analysed fields
// matches are scored with BM25.
type TermQuery struct {
	Field string
	Term  string
}

func (q TermQuery) execute(s *searcher) (*resultSet, error) {
	f := s.field(q.Field)
	if f == nil {
		return empty(), nil
	}
	bm, ok := f.postings[q.Term]
	if !ok {
		return empty(), nil
	}
	docs := bm.Clone()

	pos, analysed := f.positions[q.Term]
	if !s.scored || !analysed {
		return constantSet(docs), nil
	}

	stats := s.fieldStats(q.Field, f)
	idf := stats.IDF(s.docFreq(q.Field, q.Term, bm))
	scores := make(map[uint32]float32, len(pos))
	for doc, p := range pos {
		scores[doc] = stats.Score(len(p), f.lengths[doc], idf)
	}
	return &resultSet{docs: docs, scores: scores}, nil
}

func (q TermQuery) String() string { return q.Field + ":" + strconv.Quote(q.Term) }

// PhraseQuery matches documents where the terms occur in order, allowing up
// to Slop total position displacement.
type PhraseQuery struct {
	Field string
	Terms []string
	Slop  int
}

func (q PhraseQuery) execute(s *searcher) (*resultSet, error) {
	switch len(q.Terms) {
	case 0:
		return empty(), nil
	case 1:
		return TermQuery{Field: q.Field, Term: q.Terms[0]}.execute(s)
	}

	f := s.field(q.Field)
	if f == nil {
		return empty(), nil
	}

	bms := make([]*roaring.Bitmap, len(q.Terms))
	for i, t := range q.Terms {
		bm, ok := f.postings[t]
		if !ok {
			return empty(), nil
		}
		bms[i] = bm
	}
	candidates := roaring.FastAnd(bms...)

	docs := roaring.New()
	it := candidates.Iterator()
	for it.HasNext() {
		doc := it.Next()
		if q.matches(f, doc) {
			docs.Add(doc)
		}
	}

	if !s.scored {
		return constantSet(docs), nil
	}

	stats := s.fieldStats(q.Field, f)
	scores := make(map[uint32]float32, docs.GetCardinality())
	for i, t := range q.Terms {
		idf := stats.IDF(s.docFreq(q.Field, t, bms[i]))
		pos := f.positions[t]
		it := docs.Iterator()
		for it.HasNext() {
			doc := it.Next()
			scores[doc] += stats.Score(len(pos[doc]), f.lengths[doc], idf)
		}
	}
	return &resultSet{docs: docs, scores: scores}, nil
}

func (q PhraseQuery) matches(f *field, doc uint32) bool {
	lists := make([][]int, len(q.Terms))
	for i, t := range q.Terms {
		lists[i] = f.positions[t][doc]
		if len(lists[i]) == 0 {
			return false
		}
	}

	for _, start := range lists[0] {
		budget := q.Slop
		ok := true
		for i := 1; i < len(lists) && ok; i++ {
			want := start + i
			best := math.MaxInt
			for _, p := range lists[i] {
				d := p - want
				if d < 0 {
					d = -d
				}
				if d < best {
					best = d
				}
			}
			budget -= best
			ok = budget >= 0
		}
		if ok {
			return true
		}
	}
	return false
}

func (q PhraseQuery) String() string {
	s := q.Field + ":" + strconv.Quote(strings.Join(q.Terms, " "))
	if q.Slop > 0 {
		s += "~" + strconv.Itoa(q.Slop)
	}
	return s
}

// multiTerm evaluates queries that expand to every term of a field accepted
// by a predicate.
func multiTerm(s *searcher, fieldName string, accept func(term string) bool) (*resultSet, error) {
	f := s.field(fieldName)
	if f == nil {
		return empty(), nil
	}
	var matched []*roaring.Bitmap
	n := 0
	for term, bm := range f.postings {
		n++
		if n%1024 == 0 {
			if err := s.ctx.Err(); err != nil {
				return nil, err
			}
		}
		if accept(term) {
			matched = append(matched, bm)
		}
	}
	if len(matched) == 0 {
		return empty(), nil
	}
	return constantSet(roaring.FastOr(matched...)), nil
}

// PrefixQuery matches terms starting with Prefix.
type PrefixQuery struct {
	Field  string
	Prefix string
}

func (q PrefixQuery) execute(s *searcher) (*resultSet, error) {
	return multiTerm(s, q.Field, func(t string) bool { return strings.HasPrefix(t, q.Prefix) })
}

func (q PrefixQuery) String() string { return q.Field + ":" + strconv.Quote(q.Prefix) + "*" }

// RegexpQuery matches terms fully matching a regular expression.
type RegexpQuery struct {
	Field   string
	Pattern string
	re      *regexp.Regexp
}

// NewRegexpQuery compiles pattern. The pattern must match a whole term.
func NewRegexpQuery(field, pattern string) (*RegexpQuery, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, err
	}
	return &RegexpQuery{Field: field, Pattern: pattern, re: re}, nil
}

// NewWildcardQuery builds a RegexpQuery from a wildcard pattern where '*'
// matches any sequence and '?' any single character.
func NewWildcardQuery(field, pattern string) *RegexpQuery {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return &RegexpQuery{Field: field, Pattern: pattern, re: regexp.MustCompile(sb.String())}
}

func (q *RegexpQuery) execute(s *searcher) (*resultSet, error) {
	return multiTerm(s, q.Field, q.re.MatchString)
}

func (q *RegexpQuery) String() string { return q.Field + ":/" + q.Pattern + "/" }

// FuzzyQuery matches terms within MaxEdits edits of Term.
type FuzzyQuery struct {
	Field          string
	Term           string
	MaxEdits       int
	PrefixLength   int
	MaxExpansions  int
	Transpositions bool
}

func (q FuzzyQuery) execute(s *searcher) (*resultSet, error) {
	f := s.field(q.Field)
	if f == nil {
		return empty(), nil
	}

	target := []rune(q.Term)
	prefix := ""
	if q.PrefixLength > 0 && q.PrefixLength <= len(target) {
		prefix = string(target[:q.PrefixLength])
	}

	type candidate struct {
		term  string
		edits int
	}
	var candidates []candidate
	for term := range f.postings {
		if !strings.HasPrefix(term, prefix) {
			continue
		}
		d := editDistance(target, []rune(term), q.Transpositions, q.MaxEdits)
		if d <= q.MaxEdits {
			candidates = append(candidates, candidate{term: term, edits: d})
		}
	}
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].edits != candidates[j].edits {
			return candidates[i].edits < candidates[j].edits
		}
		return candidates[i].term < candidates[j].term
	})
	if q.MaxExpansions > 0 && len(candidates) > q.MaxExpansions {
		candidates = candidates[:q.MaxExpansions]
	}

	if len(candidates) == 0 {
		return empty(), nil
	}
	bms := make([]*roaring.Bitmap, len(candidates))
	for i, c := range candidates {
		bms[i] = f.postings[c.term]
	}
	return constantSet(roaring.FastOr(bms...)), nil
}

func (q FuzzyQuery) String() string {
	return q.Field + ":" + strconv.Quote(q.Term) + "~" + strconv.Itoa(q.MaxEdits)
}

// editDistance returns the Levenshtein distance (optimal string alignment
// when transpositions is true), or max+1 once it is known to exceed max.
func editDistance(a, b []rune, transpositions bool, max int) int {
	if d := len(a) - len(b); d > max || -d > max {
		return max + 1
	}
	prev2 := make([]int, len(b)+1)
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if transpositions && i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				cur[j] = min(cur[j], prev2[j-2]+1)
			}
			rowMin = min(rowMin, cur[j])
		}
		if rowMin > max {
			return max + 1
		}
		prev2, prev, cur = prev, cur, prev2
	}
	return prev[len(b)]
}

// NumericRangeQuery matches documents with a numeric encoding in [Min, Max].
type NumericRangeQuery struct {
	Field string
	Min   uint64
	Max   uint64
}

func (q NumericRangeQuery) execute(s *searcher) (*resultSet, error) {
	f := s.field(q.Field)
	if f == nil || q.Min > q.Max {
		return empty(), nil
	}
	docs := roaring.New()
	for doc, vals := range f.numeric {
		for _, v := range vals {
			if v >= q.Min && v <= q.Max {
				docs.Add(doc)
				break
			}
		}
	}
	return constantSet(docs), nil
}

func (q NumericRangeQuery) String() string {
	return fmt.Sprintf("%s:[%d TO %d]", q.Field, q.Min, q.Max)
}

// TermRangeQuery matches terms within a lexicographic range. Nil bounds are
// open.
type TermRangeQuery struct {
	Field        string
	Lower        *string
	Upper        *string
	IncludeLower bool
	IncludeUpper bool
}

func (q TermRangeQuery) accept(t string) bool {
	if q.Lower != nil {
		c := strings.Compare(t, *q.Lower)
		if c < 0 || (c == 0 && !q.IncludeLower) {
			return false
		}
	}
	if q.Upper != nil {
		c := strings.Compare(t, *q.Upper)
		if c > 0 || (c == 0 && !q.IncludeUpper) {
			return false
		}
	}
	return true
}

func (q TermRangeQuery) execute(s *searcher) (*resultSet, error) {
	return multiTerm(s, q.Field, q.accept)
}

func (q TermRangeQuery) String() string {
	lo, hi := "*", "*"
	if q.Lower != nil {
		lo = strconv.Quote(*q.Lower)
	}
	if q.Upper != nil {
		hi = strconv.Quote(*q.Upper)
	}
	open, closing := "{", "}"
	if q.IncludeLower {
		open = "["
	}
	if q.IncludeUpper {
		closing = "]"
	}
	return q.Field + ":" + open + lo + " TO " + hi + closing
}

// BooleanQuery combines clauses.
//
// Documents must match every Must and Filter clause and no Not clause. When
// there are no Must or Filter clauses, at least MinimumShouldMatch (default 1)
// Should clauses must match; a query with only Not clauses matches every
// other document. Filter clauses do not contribute to the score.
type BooleanQuery struct {
	Must               []Query
	Should             []Query
	Not                []Query
	Filter             []Query
	MinimumShouldMatch int
}

func (q BooleanQuery) execute(s *searcher) (*resultSet, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}

	eval := func(qs []Query) ([]*resultSet, error) {
		out := make([]*resultSet, len(qs))
		for i, c := range qs {
			rs, err := c.execute(s)
			if err != nil {
				return nil, err
			}
			out[i] = rs
		}
		return out, nil
	}

	must, err := eval(q.Must)
	if err != nil {
		return nil, err
	}
	filter, err := eval(q.Filter)
	if err != nil {
		return nil, err
	}
	should, err := eval(q.Should)
	if err != nil {
		return nil, err
	}
	not, err := eval(q.Not)
	if err != nil {
		return nil, err
	}

	var docs *roaring.Bitmap
	required := append(append([]*resultSet{}, must...), filter...)
	msm := q.MinimumShouldMatch

	switch {
	case len(required) > 0:
		docs = required[0].docs.Clone()
		for _, r := range required[1:] {
			docs.And(r.docs)
		}
		if msm > 0 {
			docs.And(atLeast(should, msm))
		}
	case len(should) > 0:
		docs = atLeast(should, max(msm, 1))
	case len(not) > 0:
		docs = s.universe()
	default:
		docs = roaring.New()
	}

	for _, r := range not {
		docs.AndNot(r.docs)
	}

	if !s.scored {
		return &resultSet{docs: docs}, nil
	}

	scores := make(map[uint32]float32, docs.GetCardinality())
	scoring := append(append([]*resultSet{}, must...), should...)
	it := docs.Iterator()
	for it.HasNext() {
		doc := it.Next()
		var sum float32
		for _, r := range scoring {
			if r.docs.Contains(doc) {
				sum += r.score(doc)
			}
		}
		scores[doc] = sum
	}
	return &resultSet{docs: docs, scores: scores}, nil
}

// atLeast returns the documents matched by at least n of the sets.
func atLeast(sets []*resultSet, n int) *roaring.Bitmap {
	if n > len(sets) {
		return roaring.New()
	}
	if n <= 1 {
		bms := make([]*roaring.Bitmap, len(sets))
		for i, r := range sets {
			bms[i] = r.docs
		}
		return roaring.FastOr(bms...)
	}
	counts := make(map[uint32]int)
	for _, r := range sets {
		it := r.docs.Iterator()
		for it.HasNext() {
			counts[it.Next()]++
		}
	}
	out := roaring.New()
	for doc, c := range counts {
		if c >= n {
			out.Add(doc)
		}
	}
	return out
}

func (q BooleanQuery) String() string {
	var parts []string
	add := func(prefix string, qs []Query) {
		for _, c := range qs {
			parts = append(parts, prefix+c.String())
		}
	}
	add("+", q.Must)
	add("", q.Should)
	add("-", q.Not)
	add("#", q.Filter)
	s := "(" + strings.Join(parts, " ") + ")"
	if q.MinimumShouldMatch > 0 {
		s += "~" + strconv.Itoa(q.MinimumShouldMatch)
	}
	return s
}

// BoostQuery multiplies the score of the wrapped query.
type BoostQuery struct {
	Query Query
	Boost float32
}

// Boost wraps q unless boost is the neutral 1.
func Boost(q Query, boost float32) Query {
	if boost == 1 {
		return q
	}
	return BoostQuery{Query: q, Boost: boost}
}

func (q BoostQuery) execute(s *searcher) (*resultSet, error) {
	rs, err := q.Query.execute(s)
	if err != nil || !s.scored {
		return rs, err
	}
	if rs.scores == nil {
		rs.constant *= q.Boost
		return rs, nil
	}
	for doc, sc := range rs.scores {
		rs.scores[doc] = sc * q.Boost
	}
	return rs, nil
}

func (q BoostQuery) String() string {
	return "(" + q.Query.String() + ")^" + strconv.FormatFloat(float64(q.Boost), 'g', -1, 32)
}

// GeoDistanceQuery matches points whose distance to Center is within
// [MinMeters, MaxMeters]. Levels is the geohash depth indexed for the field;
// zero disables cell pre-filtering.
type GeoDistanceQuery struct {
	Field     string
	Center    GeoPoint
	MinMeters float64
	MaxMeters float64
	Levels    int
}

func (q GeoDistanceQuery) execute(s *searcher) (*resultSet, error) {
	minLat, maxLat, minLon, maxLon := boundingBox(q.Center, q.MaxMeters)
	return geoScan(s, q.Field, q.Levels, minLat, maxLat, minLon, maxLon, func(p GeoPoint) bool {
		d := Distance(q.Center, p)
		return d >= q.MinMeters && d <= q.MaxMeters
	})
}

func (q GeoDistanceQuery) String() string {
	return fmt.Sprintf("%s:geo_distance(%g,%g,[%g TO %g])", q.Field, q.Center.Lat, q.Center.Lon, q.MinMeters, q.MaxMeters)
}

// GeoBBoxQuery matches points within a bounding box. MinLon > MaxLon
// describes a box crossing the antimeridian.
type GeoBBoxQuery struct {
	Field  string
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
	Levels int
}

func (q GeoBBoxQuery) execute(s *searcher) (*resultSet, error) {
	minLon, maxLon := q.MinLon, q.MaxLon
	if minLon > maxLon {
		minLon, maxLon = -180, 180
	}
	return geoScan(s, q.Field, q.Levels, q.MinLat, q.MaxLat, minLon, maxLon, func(p GeoPoint) bool {
		if p.Lat < q.MinLat || p.Lat > q.MaxLat {
			return false
		}
		if q.MinLon <= q.MaxLon {
			return p.Lon >= q.MinLon && p.Lon <= q.MaxLon
		}
		return p.Lon >= q.MinLon || p.Lon <= q.MaxLon
	})
}

func (q GeoBBoxQuery) String() string {
	return fmt.Sprintf("%s:geo_bbox([%g,%g],[%g,%g])", q.Field, q.MinLat, q.MinLon, q.MaxLat, q.MaxLon)
}

func geoScan(s *searcher, fieldName string, levels int, minLat, maxLat, minLon, maxLon float64, accept func(GeoPoint) bool) (*resultSet, error) {
	f := s.field(fieldName)
	if f == nil {
		return empty(), nil
	}

	var cell *roaring.Bitmap
	if prefix := coveringCell(minLat, maxLat, minLon, maxLon, levels); prefix != "" {
		if cf := s.field(GeohashField(fieldName)); cf != nil {
			bm, ok := cf.postings[prefix]
			if !ok {
				return empty(), nil
			}
			cell = bm
		}
	}

	docs := roaring.New()
	for doc, pts := range f.points {
		if cell != nil && !cell.Contains(doc) {
			continue
		}
		for _, p := range pts {
			if accept(p) {
				docs.Add(doc)
				break
			}
		}
	}
	return constantSet(docs), nil
}
