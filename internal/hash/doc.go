// Package hash provides the CRC32-Castagnoli checksums that guard persisted
// catalog documents and object store uploads.
//
//	sum := hash.CRC32C(block)
//	...
//	if err := hash.Verify(block, sum); err != nil {
//		// corrupt
//	}
package hash
