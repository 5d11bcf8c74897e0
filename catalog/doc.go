// Package catalog persists table descriptors: the primary-key layout, the
// index schema document and the shard topology of each table.
//
// Descriptors are stored as self-describing frames in a [Store]. A frame
// records the codec and compression it was written with, so catalogs with
// different settings can read each other's documents.
//
// Backends:
//
//   - [MemoryStore] for tests
//   - [LocalStore] for a directory on local disk
//   - catalog/s3 and catalog/minio for object storage
//   - catalog/dynamodb for versioned commits on top of any Store
//
// Saves are optimistic: a descriptor carries the version it was loaded at
// and Save fails with [ErrConflict] when the stored version moved on.
package catalog
