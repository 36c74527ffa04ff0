// Package membackend contains an implementation of the backend.Backend
// interface that keeps everything in memory. It's the reference
// implementation, used by tests and by callers that don't need
// persistence
package membackend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goabstract/gitcore/backend"
	"github.com/goabstract/gitcore/ginternals"
	"github.com/goabstract/gitcore/internal/syncutil"
)

// we make sure the struct implements the interface
var _ backend.Backend = (*Backend)(nil)

// Backend is a backend.Backend implementation that keeps all the data
// in memory
type Backend struct {
	mu sync.RWMutex

	objects map[string]*memObject
	refs    map[string][]byte
	reflogs map[string][]ginternals.ReflogEntry

	refLocks *syncutil.NamedMutex

	// now is the clock used to timestamp object insertions
	now func() time.Time
}

// New returns a new in-memory Backend
func New() *Backend {
	return &Backend{
		objects:  map[string]*memObject{},
		refs:     map[string][]byte{},
		reflogs:  map[string][]ginternals.ReflogEntry{},
		refLocks: syncutil.NewNamedMutex(),
		now:      time.Now,
	}
}

// Close frees the resources used by the backend
func (b *Backend) Close() error {
	return nil
}

// Init initializes the storage, creating HEAD as a symbolic reference
// to the given branch
func (b *Backend) Init(ctx context.Context, defaultBranch string) error {
	head := ginternals.NewSymbolicReference(ginternals.Head, ginternals.LocalBranchFullName(defaultBranch))
	err := b.WriteReferenceSafe(ctx, head)
	if err != nil && !errors.Is(err, ginternals.ErrRefExists) {
		return fmt.Errorf("could not write HEAD: %w", err)
	}
	return nil
}

// LockRef acquires the exclusive lock of the given reference
func (b *Backend) LockRef(ctx context.Context, name string, timeout time.Duration) (backend.RefLock, error) {
	if err := b.refLocks.Lock(ctx, name, timeout); err != nil {
		if errors.Is(err, syncutil.ErrTimeout) {
			return nil, fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefLocked)
		}
		return nil, err
	}
	return &refLock{name: name, locks: b.refLocks}, nil
}

// refLock implements backend.RefLock on top of a NamedMutex
type refLock struct {
	name     string
	locks    *syncutil.NamedMutex
	released bool
	mu       sync.Mutex
}

// Name returns the name of the locked reference
func (l *refLock) Name() string {
	return l.name
}

// Release frees the lock
func (l *refLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return nil
	}
	l.released = true
	l.locks.Unlock(l.name)
	return nil
}

// AppendReflog appends an entry to the log of the given reference
func (b *Backend) AppendReflog(ctx context.Context, name string, entry ginternals.ReflogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.reflogs[name] = append(b.reflogs[name], entry)
	return nil
}

// Reflog returns the log of the given reference, oldest entry first
func (b *Backend) Reflog(ctx context.Context, name string) ([]ginternals.ReflogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]ginternals.ReflogEntry, len(b.reflogs[name]))
	copy(out, b.reflogs[name])
	return out, nil
}
