package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	kvfs "github.com/hupe1980/kvsearch/internal/fs"
)

const lockFile = "LOCK"

// LocalStore implements Store using a directory on the local file system.
//
// Writes replace documents atomically. Put, Commit and Delete hold an
// exclusive lock on the directory, so several processes may share it.
type LocalStore struct {
	root string
	fs   kvfs.FileSystem
}

// NewLocalStore creates a new LocalStore rooted at the given directory,
// creating the directory if needed.
func NewLocalStore(root string, optFns ...func(s *LocalStore)) (*LocalStore, error) {
	s := &LocalStore{root: root, fs: kvfs.Default}
	for _, fn := range optFns {
		fn(s)
	}
	if err := s.fs.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return s, nil
}

// WithFileSystem replaces the file system, typically with a fault injecting one.
func WithFileSystem(fsys kvfs.FileSystem) func(s *LocalStore) {
	return func(s *LocalStore) { s.fs = fsys }
}

func (s *LocalStore) path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") || clean == lockFile {
		return "", fmt.Errorf("catalog: invalid document name %q", name)
	}
	return filepath.Join(s.root, clean), nil
}

// Get opens a document for reading.
func (s *LocalStore) Get(_ context.Context, name string) (io.ReadCloser, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.OpenFile(p, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Put writes a document atomically.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	return s.locked(ctx, name, func(p string) error {
		return kvfs.WriteFileAtomic(s.fs, p, data)
	})
}

// Commit implements Committer.
func (s *LocalStore) Commit(ctx context.Context, name string, prev uint64, data []byte) error {
	return s.locked(ctx, name, func(p string) error {
		current, err := s.read(p)
		if err != nil {
			return err
		}
		if err := checkVersion(current, prev); err != nil {
			return err
		}
		return kvfs.WriteFileAtomic(s.fs, p, data)
	})
}

// Delete removes a document.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	return s.locked(ctx, name, func(p string) error {
		if err := s.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	})
}

// List returns the documents whose slash separated name has the prefix.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	err := s.walk("", func(name string) {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

func (s *LocalStore) walk(dir string, fn func(name string)) error {
	entries, err := s.fs.ReadDir(filepath.Join(s.root, filepath.FromSlash(dir)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if dir == "" && name == lockFile || strings.HasPrefix(name, ".") {
			continue
		}
		rel := name
		if dir != "" {
			rel = dir + "/" + name
		}
		if e.IsDir() {
			if err := s.walk(rel, fn); err != nil {
				return err
			}
			continue
		}
		fn(rel)
	}
	return nil
}

// read returns the document at p, or nil if it does not exist.
func (s *LocalStore) read(p string) ([]byte, error) {
	f, err := s.fs.OpenFile(p, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func (s *LocalStore) locked(ctx context.Context, name string, fn func(p string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	l, err := kvfs.Lock(filepath.Join(s.root, lockFile))
	if err != nil {
		return err
	}
	if err := fn(p); err != nil {
		_ = l.Unlock()
		return err
	}
	return l.Unlock()
}
