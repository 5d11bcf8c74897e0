// Package s3 provides an S3 implementation of the catalog.Store interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", s3.WithPrefix("kvsearch/"))
//	cat := catalog.New(store)
//
// Uploads carry a CRC32C checksum. Documents larger than the part size are
// uploaded in parts by the SDK upload manager.
package s3
