package fs

import "os"

// Locker is a held file lock.
type Locker struct {
	f *os.File
}
