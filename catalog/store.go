package catalog

import (
	"context"
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned when a document does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrConflict is returned when a document was changed by another writer.
var ErrConflict = errors.New("catalog: concurrent modification")

// Store is an abstraction for reading and writing whole documents.
type Store interface {
	// Get opens a document for reading.
	Get(ctx context.Context, name string) (io.ReadCloser, error)
	// Put writes a document atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all documents with the prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Committer is implemented by stores that can swap a document atomically.
//
// Commit writes data only if the currently stored document is at version
// prev (0 for a missing document); otherwise it returns ErrConflict. The
// version of a stored document is read with [FrameVersion].
type Committer interface {
	Commit(ctx context.Context, name string, prev uint64, data []byte) error
}
