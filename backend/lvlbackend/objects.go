package lvlbackend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goabstract/gitcore/backend"
	"github.com/goabstract/gitcore/ginternals"
	"github.com/goabstract/gitcore/ginternals/githash"
	"github.com/goabstract/gitcore/ginternals/object"
	"github.com/syndtr/goleveldb/leveldb"
)

// Object returns the object that has given oid.
// This method can be called concurrently
func (b *Backend) Object(ctx context.Context, oid githash.Oid) (*object.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := b.db.Get(objectKey(oid.Bytes()), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, fmt.Errorf("object %s: %w", oid.String(), ginternals.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("could not read object %s: %w", oid.String(), err)
	}

	o, err := object.NewFromEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("could not parse object %s: %w", oid.String(), err)
	}
	if o.ID() != oid {
		return nil, fmt.Errorf("object %s hashes to %s: %w", oid.String(), o.ID().String(), ginternals.ErrObjectCorrupted)
	}
	return o, nil
}

// HasObject returns whether an object exists in the odb
func (b *Backend) HasObject(ctx context.Context, oid githash.Oid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	has, err := b.db.Has(objectKey(oid.Bytes()), nil)
	if err != nil {
		return false, fmt.Errorf("could not check object %s: %w", oid.String(), err)
	}
	return has, nil
}

// WriteObject adds an object to the odb. Writing an object that
// already exists is a successful no-op
func (b *Backend) WriteObject(ctx context.Context, o *object.Object) (githash.Oid, error) {
	if err := ctx.Err(); err != nil {
		return githash.NullOid, err
	}

	oid := o.ID()
	found, err := b.HasObject(ctx, oid)
	if err != nil {
		return githash.NullOid, err
	}
	if found {
		return oid, nil
	}

	batch := new(leveldb.Batch)
	batch.Put(objectKey(oid.Bytes()), o.Envelope())
	batch.Put(metaKey(oid.Bytes()), encodeMeta(b.now()))
	if err := b.db.Write(batch, nil); err != nil {
		return githash.NullOid, fmt.Errorf("could not persist object %s: %w", oid.String(), err)
	}
	return oid, nil
}

// DeleteObject removes an object from the odb. Deleting an unknown id
// is a no-op
func (b *Backend) DeleteObject(ctx context.Context, oid githash.Oid) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Delete(objectKey(oid.Bytes()))
	batch.Delete(metaKey(oid.Bytes()))
	if err := b.db.Write(batch, nil); err != nil {
		return fmt.Errorf("could not delete object %s: %w", oid.String(), err)
	}
	return nil
}

// WalkObjects runs the provided method on all the stored objects
func (b *Backend) WalkObjects(ctx context.Context, f backend.ObjectWalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.iterate(objectKeyPrefix, func(key string, value []byte) error {
		oid, err := githash.NewOidFromBytes([]byte(key))
		if err != nil {
			return fmt.Errorf("unexpected object key %x: %w", key, err)
		}
		o, err := object.NewFromEnvelope(value)
		if err != nil {
			return fmt.Errorf("could not parse object %s: %w", oid.String(), err)
		}

		createdAt, err := b.objectCreationTime(oid)
		if err != nil {
			return err
		}
		return f(backend.ObjectInfo{
			ID:        oid,
			Type:      o.Type(),
			Size:      int64(o.Size()),
			CreatedAt: createdAt,
		})
	})
	if err != nil {
		if err == backend.WalkStop { //nolint:errorlint // it's a fake error so no need to use errors.Is()
			return nil
		}
		return err
	}
	return nil
}

// objectCreationTime returns the insertion time of an object
func (b *Backend) objectCreationTime(oid githash.Oid) (createdAt time.Time, err error) {
	meta, err := b.db.Get(metaKey(oid.Bytes()), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			// an object without meta predates the store, treat it as old
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("could not read the meta of %s: %w", oid.String(), err)
	}
	return decodeMeta(meta)
}
