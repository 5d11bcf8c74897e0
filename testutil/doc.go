// Package testutil provides testing utilities for kvsearch.
//
// This package is intended for use in tests and benchmarks only.
// It provides seeded generators for row keys and hits and an in-memory
// ordered hit source that can stand in for a shard.
//
// # Random Data
//
//	rng := testutil.NewRNG(seed)
//	keys := rng.RowKeys(100, 16, true) // token collisions, wide rows
//	hits := rng.Hits(keys, 5)          // one in five sort values null
//
// # Scripted Shards
//
//	src := testutil.NewSource(0, testutil.Hit(1, "a"), testutil.Hit(3, "c"))
//	src.Err = errors.New("disk failure") // fail after the hits
package testutil
