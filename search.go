package kvsearch

import (
	"context"
	"iter"

	"github.com/hupe1980/kvsearch/condition"
	"github.com/hupe1980/kvsearch/model"
	"github.com/hupe1980/kvsearch/search"
)

// Query creates a new fluent search builder.
//
// Example:
//
//	res, err := t.Query().
//	    Match(condition.Match("bio", "go")).
//	    Filter(condition.Range("age").Lower(30, true)).
//	    Limit(10).
//	    Execute(ctx)
//
//	// Or page through every hit:
//	for hit, err := range t.Query().SortBy(search.Field("age")).Limit(100).Stream(ctx) {
//	    if err != nil { break }
//	    process(hit)
//	}
func (t *Table) Query() *QueryBuilder {
	return &QueryBuilder{t: t, req: search.NewRequest()}
}

// QueryBuilder is a fluent builder for constructing searches.
type QueryBuilder struct {
	t    *Table
	req  *search.Request
	page Page
}

// Match sets the scored condition. Hits are ordered by relevance unless a
// sort is given.
func (qb *QueryBuilder) Match(c condition.Builder) *QueryBuilder {
	qb.req.WithQuery(c)
	return qb
}

// Filter sets the unscored condition.
func (qb *QueryBuilder) Filter(c condition.Builder) *QueryBuilder {
	qb.req.WithFilter(c)
	return qb
}

// SortBy appends sort fields.
func (qb *QueryBuilder) SortBy(fields ...search.SortFieldBuilder) *QueryBuilder {
	qb.req.SortBy(fields...)
	return qb
}

// Limit sets the page size. Zero means unlimited.
func (qb *QueryBuilder) Limit(n int) *QueryBuilder {
	qb.page.Limit = n
	return qb
}

// After resumes after the page that returned token.
func (qb *QueryBuilder) After(token string) *QueryBuilder {
	qb.page.Token = token
	return qb
}

// Request returns the built request.
func (qb *QueryBuilder) Request() *search.Request { return qb.req }

// Execute runs the search and returns one page.
func (qb *QueryBuilder) Execute(ctx context.Context) (*Result, error) {
	return qb.t.Search(ctx, qb.req, qb.page)
}

// MustExecute runs the search, panicking on error.
// Use this only in tests or when you're certain the query is valid.
func (qb *QueryBuilder) MustExecute(ctx context.Context) *Result {
	res, err := qb.Execute(ctx)
	if err != nil {
		panic(err)
	}
	return res
}

// Explain describes the compiled plan.
func (qb *QueryBuilder) Explain() (string, error) {
	return qb.t.Explain(qb.req)
}

// Stream returns an iterator over all hits, fetching pages of the builder's
// limit with resume tokens. The iterator supports early termination by
// breaking from the loop.
func (qb *QueryBuilder) Stream(ctx context.Context) iter.Seq2[model.Hit, error] {
	return func(yield func(model.Hit, error) bool) {
		page := qb.page
		for {
			res, err := qb.t.Search(ctx, qb.req, page)
			if err != nil {
				yield(model.Hit{}, err)
				return
			}
			for _, h := range res.Hits {
				if !yield(h, nil) {
					return
				}
			}
			if res.Token == "" {
				return
			}
			page.Token = res.Token
		}
	}
}

// First returns the first hit, or false if nothing matches.
func (qb *QueryBuilder) First(ctx context.Context) (model.Hit, bool, error) {
	res, err := qb.t.Search(ctx, qb.req, Page{Limit: 1, Token: qb.page.Token})
	if err != nil || len(res.Hits) == 0 {
		return model.Hit{}, false, err
	}
	return res.Hits[0], true, nil
}

// Count executes the search over all pages and returns the number of
// distinct matching rows.
func (qb *QueryBuilder) Count(ctx context.Context) (int, error) {
	res, err := qb.t.Search(ctx, qb.req, Page{Token: qb.page.Token})
	if err != nil {
		return 0, err
	}
	return len(res.Hits), nil
}

// Exists checks if at least one row matches.
func (qb *QueryBuilder) Exists(ctx context.Context) (bool, error) {
	_, ok, err := qb.First(ctx)
	return ok, err
}
