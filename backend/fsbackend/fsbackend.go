// Package fsbackend contains an implementation of the backend.Backend
// interface for the filesystem
package fsbackend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goabstract/gitcore/backend"
	"github.com/goabstract/gitcore/ginternals"
	"github.com/goabstract/gitcore/internal/cache"
	"github.com/gofrs/flock"
	"github.com/spf13/afero"
)

// we make sure the struct implements the interface
var _ backend.Backend = (*Backend)(nil)

// amount of objects to keep in memory
const objectCacheSize = 1000

// Backend is a backend.Backend implementation that uses the
// filesystem to store data
type Backend struct {
	fs   afero.Fs
	root string

	cache *cache.LRU

	// packMu serializes the in-process rewrites of the packed-refs
	// file; cross-process exclusion is handled by a flock
	packMu sync.Mutex
}

// New returns a new Backend storing its data in the given directory
// of the given filesystem
func New(fs afero.Fs, root string) *Backend {
	return &Backend{
		fs:    fs,
		root:  root,
		cache: cache.NewLRU(objectCacheSize),
	}
}

// NewOsBackend returns a new Backend storing its data in the given
// directory of the OS filesystem
func NewOsBackend(root string) *Backend {
	return New(afero.NewOsFs(), root)
}

// Close frees the resources used by the backend
func (b *Backend) Close() error {
	b.cache.Clear()
	return nil
}

// Path returns the root path of the backend
func (b *Backend) Path() string {
	return b.root
}

// systemPath returns a filesystem path from a ref name
// Ex.: On windows refs/heads/master would return refs\heads\master
func (b *Backend) systemPath(name string) string {
	return filepath.Join(b.root, filepath.FromSlash(name))
}

// Init initializes a repository.
// Calling this method on an existing repository is safe. It will not
// overwrite things that are already there, but will add what's missing
func (b *Backend) Init(ctx context.Context, defaultBranch string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Create the directories
	dirs := []string{
		"objects",
		"objects/info",
		"refs/tags",
		"refs/heads",
		"logs",
	}
	for _, d := range dirs {
		fullPath := filepath.Join(b.root, filepath.FromSlash(d))
		if err := b.fs.MkdirAll(fullPath, 0o750); err != nil {
			return fmt.Errorf("could not create directory %s: %w", d, err)
		}
	}

	// Create the files with the default content
	// (taken from a repo created on github)
	files := []struct {
		path    string
		content []byte
	}{
		{
			path:    "description",
			content: []byte("Unnamed repository; edit this file 'description' to name the repository.\n"),
		},
	}
	for _, f := range files {
		fullPath := filepath.Join(b.root, f.path)
		if _, err := b.fs.Stat(fullPath); err == nil {
			continue
		}
		if err := afero.WriteFile(b.fs, fullPath, f.content, 0o644); err != nil {
			return fmt.Errorf("could not create file %s: %w", f.path, err)
		}
	}

	// Create HEAD if it doesn't exist yet
	head := ginternals.NewSymbolicReference(ginternals.Head, ginternals.LocalBranchFullName(defaultBranch))
	err := b.WriteReferenceSafe(ctx, head)
	if err != nil && !errors.Is(err, ginternals.ErrRefExists) {
		return fmt.Errorf("could not write HEAD: %w", err)
	}
	return nil
}

// writeFileAtomic writes data at the given path through a temporary
// file and a rename, so readers never observe a partial write
func (b *Backend) writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = b.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create the destination directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(b.fs, dir, "tmp-")
	if err != nil {
		return fmt.Errorf("could not create a temporary file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			b.fs.Remove(tmpName) //nolint:errcheck // we're already failing
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // the write already failed
		return fmt.Errorf("could not write %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("could not close %s: %w", tmpName, err)
	}
	if err = b.fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf("could not rename %s to %s: %w", tmpName, path, err)
	}
	return nil
}

// LockRef acquires the exclusive lock of the given reference by
// creating its .lock file. The acquisition is retried with a capped
// exponential backoff until the timeout expires
func (b *Backend) LockRef(ctx context.Context, name string, timeout time.Duration) (backend.RefLock, error) {
	lockPath := b.systemPath(name) + ".lock"
	dir := filepath.Dir(lockPath)
	if err := b.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create the destination directory %s: %w", dir, err)
	}

	tryOnce := func() error {
		f, err := b.fs.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				// somebody else holds the lock, retry
				return err
			}
			return backoff.Permanent(err)
		}
		return f.Close()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = 100 * time.Millisecond
	// a MaxElapsedTime of 0 means no deadline beyond ctx
	bo.MaxElapsedTime = timeout

	err := backoff.Retry(tryOnce, backoff.WithContext(bo, ctx))
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefLocked)
		}
		return nil, fmt.Errorf(`could not lock ref "%s": %w`, name, err)
	}
	return &refLock{backend: b, name: name, path: lockPath}, nil
}

// refLock implements backend.RefLock with a .lock file next to the
// reference
type refLock struct {
	backend  *Backend
	name     string
	path     string
	mu       sync.Mutex
	released bool
}

// Name returns the name of the locked reference
func (l *refLock) Name() string {
	return l.name
}

// Release frees the lock by removing its file
func (l *refLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return nil
	}
	l.released = true
	if err := l.backend.fs.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf(`could not release the lock of "%s": %w`, l.name, err)
	}
	return nil
}

// packedRefsFlock returns a cross-process lock for the packed-refs
// file, or nil when the backend isn't running on the OS filesystem
func (b *Backend) packedRefsFlock() *flock.Flock {
	if _, ok := b.fs.(*afero.OsFs); !ok {
		return nil
	}
	return flock.New(filepath.Join(b.root, ginternals.PackedRefsFile+".flock"))
}
