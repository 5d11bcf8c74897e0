// Package kvsearch provides an embedded secondary index for wide-column
// key-value tables.
//
// Rows are identified by a partition token, a partition key and an optional
// clustering key. A Table indexes the mapped columns of each row on the
// shards that own its token and answers declarative searches: a scored
// query, an unscored filter and an optional sort. Every shard streams its
// hits in one shared order, and a k-way merge combines the streams into
// globally ordered, deduplicated pages that resume with opaque tokens.
//
// # Quick Start
//
//	s, _ := schema.NewBuilder().
//	    Field("name", mapping.String().Sorted(true)).
//	    Field("age", mapping.Integer().Sorted(true)).
//	    Field("bio", mapping.Text()).
//	    Build("users")
//
//	layout := partition.Layout{PartitionKey: []string{"id"}}
//	t, _ := kvsearch.New(layout, s, kvsearch.WithShards(4), kvsearch.WithReplication(2))
//	defer t.Close()
//
//	_ = t.UpsertColumns(ctx, map[string]model.Value{
//	    "id":   model.String("u1"),
//	    "name": model.String("alice"),
//	    "age":  model.Int(29),
//	})
//
//	res, _ := t.Query().
//	    Filter(condition.Range("age").Lower(18, true)).
//	    SortBy(search.Field("name")).
//	    Limit(10).
//	    Execute(ctx)
//	next, _ := t.Query().SortBy(search.Field("name")).Limit(10).After(res.Token).Execute(ctx)
//
// # Catalogs
//
// Table descriptors (layout, schema document and shard topology) are kept
// in a catalog.Catalog backed by memory, local disk, S3, MinIO or S3 with
// DynamoDB commits:
//
//	cat := catalog.New(catalog.NewMemoryStore())
//	t, _ := kvsearch.Create(ctx, cat, descriptor)
//	t2, _ := kvsearch.Open(ctx, cat, "users")
//
// # Failure Handling
//
// A failing shard fails the search with a ShardExecutionError unless the
// table was created WithPartialResults, in which case the result is marked
// partial and names the excluded shards. Request errors (unknown fields,
// unsupported operations, values that cannot be coerced) are returned
// before any shard is searched.
package kvsearch
