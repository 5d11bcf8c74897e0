//go:build !unix

package fs

import "os"

// Lock opens the lock file. Advisory locking is not available on this
// platform, so only in-process callers are serialized by the catalog.
func Lock(path string) (*Locker, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return &Locker{f: f}, nil
}

// Unlock releases the lock.
func (l *Locker) Unlock() error { return l.f.Close() }
