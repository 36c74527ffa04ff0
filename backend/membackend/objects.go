package membackend

import (
	"context"
	"fmt"
	"time"

	"github.com/goabstract/gitcore/backend"
	"github.com/goabstract/gitcore/ginternals"
	"github.com/goabstract/gitcore/ginternals/githash"
	"github.com/goabstract/gitcore/ginternals/object"
)

// memObject is a stored object alongside its insertion time
type memObject struct {
	createdAt time.Time
	typ       object.Type
	content   []byte
}

// Object returns the object that has given oid.
// This method can be called concurrently
func (b *Backend) Object(ctx context.Context, oid githash.Oid) (*object.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	mo, ok := b.objects[string(oid.Bytes())]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %s: %w", oid.String(), ginternals.ErrObjectNotFound)
	}

	o := object.New(mo.typ, mo.content)
	// the id is content-derived, a mismatch means the stored payload
	// was tampered with
	if o.ID() != oid {
		return nil, fmt.Errorf("object %s hashes to %s: %w", oid.String(), o.ID().String(), ginternals.ErrObjectCorrupted)
	}
	return o, nil
}

// HasObject returns whether an object exists in the odb.
// This method can be called concurrently
func (b *Backend) HasObject(ctx context.Context, oid githash.Oid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[string(oid.Bytes())]
	return ok, nil
}

// WriteObject adds an object to the odb. Writing an object that
// already exists is a successful no-op.
// This method can be called concurrently
func (b *Backend) WriteObject(ctx context.Context, o *object.Object) (githash.Oid, error) {
	if err := ctx.Err(); err != nil {
		return githash.NullOid, err
	}

	oid := o.ID()
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.objects[string(oid.Bytes())]; ok {
		return oid, nil
	}

	content := make([]byte, len(o.Bytes()))
	copy(content, o.Bytes())
	b.objects[string(oid.Bytes())] = &memObject{
		typ:       o.Type(),
		content:   content,
		createdAt: b.now(),
	}
	return oid, nil
}

// DeleteObject removes an object from the odb. Deleting an unknown id
// is a no-op
func (b *Backend) DeleteObject(ctx context.Context, oid githash.Oid) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, string(oid.Bytes()))
	return nil
}

// WalkObjects runs the provided method on all the stored objects
func (b *Backend) WalkObjects(ctx context.Context, f backend.ObjectWalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// we walk over a snapshot so f is free to mutate the store
	b.mu.RLock()
	infos := make([]backend.ObjectInfo, 0, len(b.objects))
	for key, mo := range b.objects {
		oid, err := githash.NewOidFromBytes([]byte(key))
		if err != nil {
			b.mu.RUnlock()
			return fmt.Errorf("invalid key %x: %w", key, err)
		}
		infos = append(infos, backend.ObjectInfo{
			ID:        oid,
			Type:      mo.typ,
			Size:      int64(len(mo.content)),
			CreatedAt: mo.createdAt,
		})
	}
	b.mu.RUnlock()

	for _, info := range infos {
		if err := f(info); err != nil {
			if err == backend.WalkStop { //nolint:errorlint // it's a fake error so no need to use errors.Is()
				return nil
			}
			return err
		}
	}
	return nil
}
