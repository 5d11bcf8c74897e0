// Package fs provides the file system abstraction of the local catalog:
// atomic file replacement, advisory directory locks and fault injection for
// tests.
//
// Production code uses fs.Default ([LocalFS]). Tests wrap it in a
// [FaultyFS] to simulate failed writes, syncs and renames:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("users", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
package fs
