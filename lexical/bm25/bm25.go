// Package bm25 implements Okapi BM25 term weighting.
package bm25

import "math"

const (
	k1 = 1.2
	b  = 0.75
)

// Stats are the collection statistics of one text field.
type Stats struct {
	DocCount    int
	TotalLength int64
}

// AvgDocLength returns the average field length.
func (s Stats) AvgDocLength() float64 {
	if s.DocCount == 0 {
		return 0
	}
	return float64(s.TotalLength) / float64(s.DocCount)
}

// IDF returns the inverse document frequency of a term found in df documents.
func (s Stats) IDF(df int) float64 {
	// IDF = log(1 + (N - n + 0.5) / (n + 0.5))
	N := float64(s.DocCount)
	n := float64(df)
	return math.Log(1 + (N-n+0.5)/(n+0.5))
}

// Score returns the BM25 weight of a term occurring tf times in a document of
// length docLen.
func (s Stats) Score(tf, docLen int, idf float64) float32 {
	if tf == 0 {
		return 0
	}
	avgDL := s.AvgDocLength()
	if avgDL == 0 {
		avgDL = 1
	}
	f := float64(tf)
	num := f * (k1 + 1)
	denom := f + k1*(1-b+b*(float64(docLen)/avgDL))
	return float32(idf * (num / denom))
}
