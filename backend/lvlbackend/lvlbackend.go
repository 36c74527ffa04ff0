// Package lvlbackend contains an implementation of the backend.Backend
// interface on top of LevelDB, for callers that want a persistent
// engine without a full repository layout on disk
package lvlbackend

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goabstract/gitcore/backend"
	"github.com/goabstract/gitcore/ginternals"
	"github.com/goabstract/gitcore/internal/syncutil"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// we make sure the struct implements the interface
var _ backend.Backend = (*Backend)(nil)

// key spaces. Each kind of data lives under its own prefix
const (
	objectKeyPrefix = "o/"
	metaKeyPrefix   = "m/"
	refKeyPrefix    = "r/"
	reflogKeyPrefix = "l/"
)

// Backend is a backend.Backend implementation that stores everything
// in a LevelDB database
type Backend struct {
	db *leveldb.DB

	refLocks *syncutil.NamedMutex

	// now is the clock used to timestamp object insertions
	now func() time.Time
}

// New returns a new Backend storing its data in a LevelDB database
// at the given path
func New(path string) (*Backend, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("could not open the database at %s: %w", path, err)
	}
	return &Backend{
		db:       db,
		refLocks: syncutil.NewNamedMutex(),
		now:      time.Now,
	}, nil
}

// Close frees the resources used by the backend
func (b *Backend) Close() error {
	if err := b.db.Close(); err != nil && !errors.Is(err, leveldb.ErrClosed) {
		return fmt.Errorf("could not close the database: %w", err)
	}
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

func objectKey(suffix []byte) []byte {
	return append([]byte(objectKeyPrefix), suffix...)
}

func metaKey(suffix []byte) []byte {
	return append([]byte(metaKeyPrefix), suffix...)
}

func refKey(name string) []byte {
	return []byte(refKeyPrefix + name)
}

func reflogKey(name string) []byte {
	return []byte(reflogKeyPrefix + name)
}

// encodeMeta encodes an object's insertion time
func encodeMeta(createdAt time.Time) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(createdAt.UnixNano()))
	return out
}

// decodeMeta decodes an object's insertion time
func decodeMeta(data []byte) (time.Time, error) {
	if len(data) != 8 {
		return time.Time{}, fmt.Errorf("unexpected meta entry of %d bytes", len(data))
	}
	nanos := int64(binary.BigEndian.Uint64(data))
	return time.Unix(0, nanos), nil
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

	key := reflogKey(name)
	current, err := b.db.Get(key, nil)
	if err != nil && !errors.Is(err, leveldb.ErrNotFound) {
		return fmt.Errorf("could not read the log of %s: %w", name, err)
	}
	if err := b.db.Put(key, append(current, entry.Line()...), nil); err != nil {
		return fmt.Errorf("could not append to the log of %s: %w", name, err)
	}
	return nil
}

// Reflog returns the log of the given reference, oldest entry first
func (b *Backend) Reflog(ctx context.Context, name string) ([]ginternals.ReflogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := b.db.Get(reflogKey(name), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return []ginternals.ReflogEntry{}, nil
		}
		return nil, fmt.Errorf("could not read the log of %s: %w", name, err)
	}
	return ginternals.ParseReflog(data)
}

// iterate runs f on every key of the given key space
func (b *Backend) iterate(prefix string, f func(key string, value []byte) error) error {
	iter := b.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	for iter.Next() {
		key := string(iter.Key()[len(prefix):])
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())
		if err := f(key, value); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("could not iterate over %q: %w", prefix, err)
	}
	return nil
}
