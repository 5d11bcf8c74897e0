package index

import (
	"context"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/kvsearch/lexical/bm25"
	"github.com/hupe1980/kvsearch/model"
)

// field holds the inverted structures of one indexed field.
type field struct {
	// term -> documents
	postings map[string]*roaring.Bitmap
	// analysed term -> document -> positions
	positions map[string]map[uint32][]int
	// document -> analysed length
	lengths  map[uint32]int
	totalLen int64
	// document -> numeric encodings
	numeric map[uint32][]uint64
	// document -> points
	points map[uint32][]GeoPoint
	// document -> sort value
	docValues map[uint32]model.Value
}

func newField() *field {
	return &field{
		postings:  make(map[string]*roaring.Bitmap),
		positions: make(map[string]map[uint32][]int),
		lengths:   make(map[uint32]int),
		numeric:   make(map[uint32][]uint64),
		points:    make(map[uint32][]GeoPoint),
		docValues: make(map[uint32]model.Value),
	}
}

func (f *field) stats() bm25.Stats {
	return bm25.Stats{DocCount: len(f.lengths), TotalLength: f.totalLen}
}

// Index is an in-memory inverted index over the rows of one shard.
//
// Every row is a document identified by its RowKey; writing a row that is
// already indexed replaces the previous document. Index is safe for
// concurrent use: writes are serialized, searches run under a read lock.
type Index struct {
	mu sync.RWMutex

	ids    map[string]uint32
	keys   map[uint32]model.RowKey
	docs   map[uint32]*Document
	live   *roaring.Bitmap
	fields map[string]*field
	next   uint32
}

// New creates an empty Index.
func New() *Index {
	return &Index{
		ids:    make(map[string]uint32),
		keys:   make(map[uint32]model.RowKey),
		docs:   make(map[uint32]*Document),
		live:   roaring.New(),
		fields: make(map[string]*field),
	}
}

// Len returns the number of live documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return int(ix.live.GetCardinality())
}

// Upsert indexes doc for the row key, replacing any previous document.
func (ix *Index) Upsert(key model.RowKey, doc *Document) {
	id := key.ID()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.ids[id]; ok {
		ix.removeLocked(old)
	}

	docID := ix.next
	ix.next++

	ix.ids[id] = docID
	ix.keys[docID] = key
	ix.docs[docID] = doc
	ix.live.Add(docID)
	ix.addLocked(docID, doc)
}

// Delete removes the document for key. It reports whether one existed.
func (ix *Index) Delete(key model.RowKey) bool {
	id := key.ID()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	docID, ok := ix.ids[id]
	if !ok {
		return false
	}
	ix.removeLocked(docID)
	return true
}

func (ix *Index) fieldLocked(name string) *field {
	f, ok := ix.fields[name]
	if !ok {
		f = newField()
		ix.fields[name] = f
	}
	return f
}

func (ix *Index) addLocked(docID uint32, doc *Document) {
	for name, terms := range doc.terms {
		f := ix.fieldLocked(name)
		for _, t := range terms {
			bm, ok := f.postings[t]
			if !ok {
				bm = roaring.New()
				f.postings[t] = bm
			}
			bm.Add(docID)
		}
	}

	for name, terms := range doc.text {
		f := ix.fieldLocked(name)
		for _, t := range terms {
			bm, ok := f.postings[t.Text]
			if !ok {
				bm = roaring.New()
				f.postings[t.Text] = bm
			}
			bm.Add(docID)

			pos, ok := f.positions[t.Text]
			if !ok {
				pos = make(map[uint32][]int)
				f.positions[t.Text] = pos
			}
			pos[docID] = append(pos[docID], t.Position)
		}
		f.lengths[docID] = len(terms)
		f.totalLen += int64(len(terms))
	}

	for name, vals := range doc.numeric {
		ix.fieldLocked(name).numeric[docID] = vals
	}
	for name, pts := range doc.points {
		ix.fieldLocked(name).points[docID] = pts
	}
	for name, v := range doc.docValues {
		ix.fieldLocked(name).docValues[docID] = v
	}
}

func (ix *Index) removeLocked(docID uint32) {
	doc := ix.docs[docID]
	key := ix.keys[docID]

	for name, terms := range doc.terms {
		f := ix.fields[name]
		for _, t := range terms {
			removePosting(f, t, docID)
		}
	}
	for name, terms := range doc.text {
		f := ix.fields[name]
		for _, t := range terms {
			removePosting(f, t.Text, docID)
			if pos, ok := f.positions[t.Text]; ok {
				delete(pos, docID)
				if len(pos) == 0 {
					delete(f.positions, t.Text)
				}
			}
		}
		f.totalLen -= int64(f.lengths[docID])
		delete(f.lengths, docID)
	}
	for name := range doc.numeric {
		delete(ix.fields[name].numeric, docID)
	}
	for name := range doc.points {
		delete(ix.fields[name].points, docID)
	}
	for name := range doc.docValues {
		delete(ix.fields[name].docValues, docID)
	}

	delete(ix.ids, key.ID())
	delete(ix.keys, docID)
	delete(ix.docs, docID)
	ix.live.Remove(docID)
}

func removePosting(f *field, term string, docID uint32) {
	bm, ok := f.postings[term]
	if !ok {
		return
	}
	bm.Remove(docID)
	if bm.IsEmpty() {
		delete(f.postings, term)
	}
}

// Match is one search result of an Index.
type Match struct {
	Doc   uint32
	Key   model.RowKey
	Score float32
}

// Search evaluates q and returns the matching documents in document order.
// When scored is false all scores are zero.
func (ix *Index) Search(ctx context.Context, q Query, scored bool) ([]Match, error) {
	return ix.search(ctx, &searcher{ix: ix, scored: scored, ctx: ctx}, q)
}

// SearchWithStats is a scored Search that weighs terms with the given
// collection statistics instead of the statistics of this index. Fields and
// terms missing from stats fall back to the local statistics.
func (ix *Index) SearchWithStats(ctx context.Context, q Query, stats *Stats) ([]Match, error) {
	return ix.search(ctx, &searcher{ix: ix, scored: true, stats: stats, ctx: ctx}, q)
}

func (ix *Index) search(ctx context.Context, s *searcher, q Query) ([]Match, error) {
	if q == nil {
		q = MatchAllQuery{}
	}
	scored := s.scored

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	rs, err := q.execute(s)
	if err != nil {
		return nil, err
	}

	docs := roaring.And(rs.docs, ix.live)
	out := make([]Match, 0, docs.GetCardinality())
	it := docs.Iterator()
	for it.HasNext() {
		doc := it.Next()
		m := Match{Doc: doc, Key: ix.keys[doc]}
		if scored {
			m.Score = rs.score(doc)
		}
		out = append(out, m)
	}
	return out, ctx.Err()
}

// DocValue returns the sort value stored for doc on field.
func (ix *Index) DocValue(doc uint32, field string) (model.Value, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	f, ok := ix.fields[field]
	if !ok {
		return model.Value{}, false
	}
	v, ok := f.docValues[doc]
	return v, ok
}

// Points returns the points stored for doc on field.
func (ix *Index) Points(doc uint32, field string) []GeoPoint {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	f, ok := ix.fields[field]
	if !ok {
		return nil
	}
	return f.points[doc]
}

// Key returns the row key of a live document.
func (ix *Index) Key(doc uint32) (model.RowKey, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	k, ok := ix.keys[doc]
	return k, ok
}

// Terms returns the number of distinct terms of field.
func (ix *Index) Terms(field string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	f, ok := ix.fields[field]
	if !ok {
		return 0
	}
	return len(f.postings)
}
