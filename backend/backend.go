// Package backend contains the interface implemented by every storage
// backend, alongside the common types they share
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/goabstract/gitcore/ginternals"
	"github.com/goabstract/gitcore/ginternals/githash"
	"github.com/goabstract/gitcore/ginternals/object"
)

// ObjectInfo describes a stored object without materializing its
// payload
type ObjectInfo struct {
	// CreatedAt is the time the object was inserted in this store
	CreatedAt time.Time
	ID        githash.Oid
	Size      int64
	Type      object.Type
}

// ObjectWalkFunc represents a function that will be applied on all
// objects found by WalkObjects()
type ObjectWalkFunc = func(info ObjectInfo) error

// RefWalkFunc represents a function that will be applied on all
// references found by WalkReferences()
type RefWalkFunc = func(ref *ginternals.Reference) error

// WalkStop is a fake error used to tell a Walk method to stop
var WalkStop = errors.New("stop walking") //nolint:errname // it's not a real error

// RefLock is an exclusive lock held on a single reference name.
// Holding the lock doesn't block operations on unrelated references
type RefLock interface {
	// Name returns the name of the locked reference
	Name() string
	// Release frees the lock. Releasing an already released lock is
	// a no-op
	Release() error
}

// Backend represents an object that can store and retrieve data
// from and to the odb
type Backend interface {
	// Close frees the resources used by the backend
	Close() error

	// Init initializes the storage, creating HEAD as a symbolic
	// reference to the given branch.
	// Calling this method on an existing repository is safe and
	// won't overwrite what's already there
	Init(ctx context.Context, defaultBranch string) error

	// Object returns the object that has given oid.
	// ginternals.ErrObjectNotFound is returned on unknown ids, and
	// ginternals.ErrObjectCorrupted if the stored bytes don't hash
	// back to the oid
	Object(ctx context.Context, oid githash.Oid) (*object.Object, error)
	// HasObject returns whether an object exists in the odb, without
	// materializing its payload
	HasObject(ctx context.Context, oid githash.Oid) (bool, error)
	// WriteObject adds an object to the odb. The write is idempotent:
	// writing an object that already exists is a successful no-op
	WriteObject(ctx context.Context, o *object.Object) (githash.Oid, error)
	// DeleteObject removes an object from the odb. Deleting an
	// unknown id is a no-op
	DeleteObject(ctx context.Context, oid githash.Oid) error
	// WalkObjects runs the provided method on all the stored objects,
	// in unspecified order
	WalkObjects(ctx context.Context, f ObjectWalkFunc) error

	// Reference returns a stored reference from its name, without
	// resolving symbolic targets.
	// ginternals.ErrRefNotFound is returned if the reference doesn't
	// exists
	Reference(ctx context.Context, name string) (*ginternals.Reference, error)
	// WriteReference writes the given reference in the db. If the
	// reference already exists it will be overwritten
	WriteReference(ctx context.Context, ref *ginternals.Reference) error
	// WriteReferenceSafe writes the given reference in the db.
	// ginternals.ErrRefExists is returned if the reference already
	// exists
	WriteReferenceSafe(ctx context.Context, ref *ginternals.Reference) error
	// DeleteReference removes the given reference.
	// ginternals.ErrRefNotFound is returned if the reference doesn't
	// exists
	DeleteReference(ctx context.Context, name string) error
	// WalkReferences runs the provided method on all the references
	WalkReferences(ctx context.Context, f RefWalkFunc) error
	// PackRefs consolidates all the direct, non-HEAD references into
	// a single packed snapshot. Callers are expected to hold the lock
	// of every reference being packed
	PackRefs(ctx context.Context) error

	// LockRef acquires the exclusive lock of the given reference.
	// ginternals.ErrRefLocked is returned if the lock cannot be
	// acquired before the timeout. A timeout of 0 means no deadline
	// beyond ctx
	LockRef(ctx context.Context, name string, timeout time.Duration) (RefLock, error)

	// AppendReflog appends an entry to the log of the given reference
	AppendReflog(ctx context.Context, name string, entry ginternals.ReflogEntry) error
	// Reflog returns the log of the given reference, oldest entry
	// first. A reference without a log returns an empty slice
	Reflog(ctx context.Context, name string) ([]ginternals.ReflogEntry, error)
}
