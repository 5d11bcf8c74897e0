package kvsearch_test

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/hupe1980/kvsearch"
	"github.com/hupe1980/kvsearch/catalog"
	"github.com/hupe1980/kvsearch/condition"
	"github.com/hupe1980/kvsearch/mapping"
	"github.com/hupe1980/kvsearch/model"
	"github.com/hupe1980/kvsearch/partition"
	"github.com/hupe1980/kvsearch/schema"
	"github.com/hupe1980/kvsearch/search"
)

func exampleTable() *kvsearch.Table {
	s, err := schema.NewBuilder().
		Field("name", mapping.String().Sorted(true)).
		Field("age", mapping.Integer().Sorted(true)).
		Field("bio", mapping.Text()).
		Build("users")
	if err != nil {
		log.Fatal(err)
	}

	t, err := kvsearch.New(partition.Layout{PartitionKey: []string{"id"}}, s,
		kvsearch.WithShards(4),
		kvsearch.WithReplication(2),
	)
	if err != nil {
		log.Fatal(err)
	}

	people := []struct {
		name string
		age  int64
		bio  string
	}{
		{"alice", 29, "writes go services"},
		{"bob", 41, "rust and go"},
		{"carol", 35, "databases"},
		{"dave", 52, "go tooling"},
	}
	for _, p := range people {
		err := t.UpsertColumns(context.Background(), map[string]model.Value{
			"id":   model.String(p.name),
			"name": model.String(p.name),
			"age":  model.Int(p.age),
			"bio":  model.String(p.bio),
		})
		if err != nil {
			log.Fatal(err)
		}
	}
	return t
}

// Example_sortedSearch filters rows and sorts them by a column across shards.
func Example_sortedSearch() {
	t := exampleTable()
	defer t.Close()

	res, err := t.Query().
		Filter(condition.Range("age").Lower(30, true)).
		SortBy(search.Field("age").Desc()).
		Execute(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	for _, h := range res.Hits {
		fmt.Println(h.Sort[0])
	}
	// Output:
	// 52
	// 41
	// 35
}

// Example_pagination pages through results with resume tokens.
func Example_pagination() {
	t := exampleTable()
	defer t.Close()

	req := search.NewRequest().SortBy(search.Field("name"))
	page := kvsearch.Page{Limit: 3}
	for {
		res, err := t.Search(context.Background(), req, page)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(len(res.Hits), res.Token != "")
		if res.Token == "" {
			break
		}
		page.Token = res.Token
	}
	// Output:
	// 3 true
	// 1 false
}

// Example_errors shows that invalid requests fail before any shard is searched.
func Example_errors() {
	t := exampleTable()
	defer t.Close()

	_, err := t.Query().Filter(condition.Match("email", "a@b.c")).Execute(context.Background())
	var unknown *kvsearch.UnknownFieldError
	fmt.Println(errors.As(err, &unknown))

	_, err = t.Search(context.Background(), search.NewRequest(), kvsearch.Page{Token: "bogus"})
	fmt.Println(errors.Is(err, kvsearch.ErrInvalidResumeToken))
	// Output:
	// true
	// true
}

// Example_catalog persists a table descriptor and opens the table from it.
func Example_catalog() {
	ctx := context.Background()
	cat := catalog.New(catalog.NewMemoryStore())

	created, err := kvsearch.Create(ctx, cat, &catalog.Descriptor{
		Name:        "users",
		Layout:      partition.Layout{PartitionKey: []string{"id"}},
		Schema:      schema.NewBuilder().Field("name", mapping.String().Sorted(true)),
		Shards:      2,
		Replication: 1,
	})
	if err != nil {
		log.Fatal(err)
	}
	created.Close()

	t, err := kvsearch.Open(ctx, cat, "users")
	if err != nil {
		log.Fatal(err)
	}
	defer t.Close()

	names, _ := cat.List(ctx)
	fmt.Println(names, t.Schema().Fields())
	// Output: [users] [name]
}
