package lvlbackend

import (
	"context"
	"errors"
	"fmt"

	"github.com/goabstract/gitcore/backend"
	"github.com/goabstract/gitcore/ginternals"
	"github.com/syndtr/goleveldb/leveldb"
)

// Reference returns a stored reference from its name, without
// resolving symbolic targets
func (b *Backend) Reference(ctx context.Context, name string) (*ginternals.Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := b.db.Get(refKey(name), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefNotFound)
		}
		return nil, fmt.Errorf(`could not read ref "%s": %w`, name, err)
	}
	return ginternals.NewReferenceFromContent(name, data)
}

// WriteReference writes the given reference in the db. If the
// reference already exists it will be overwritten
func (b *Backend) WriteReference(ctx context.Context, ref *ginternals.Reference) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !ginternals.IsRefNameValid(ref.Name()) {
		return fmt.Errorf(`ref "%s": %w`, ref.Name(), ginternals.ErrRefNameInvalid)
	}
	data, err := ginternals.ContentOf(ref)
	if err != nil {
		return err
	}
	if err := b.db.Put(refKey(ref.Name()), data, nil); err != nil {
		return fmt.Errorf(`could not persist ref "%s": %w`, ref.Name(), err)
	}
	return nil
}

// WriteReferenceSafe writes the given reference in the db.
// ginternals.ErrRefExists is returned if the reference already exists
func (b *Backend) WriteReferenceSafe(ctx context.Context, ref *ginternals.Reference) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	has, err := b.db.Has(refKey(ref.Name()), nil)
	if err != nil {
		return fmt.Errorf(`could not check ref "%s": %w`, ref.Name(), err)
	}
	if has {
		return fmt.Errorf(`ref "%s": %w`, ref.Name(), ginternals.ErrRefExists)
	}
	return b.WriteReference(ctx, ref)
}

// DeleteReference removes the given reference
func (b *Backend) DeleteReference(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	has, err := b.db.Has(refKey(name), nil)
	if err != nil {
		return fmt.Errorf(`could not check ref "%s": %w`, name, err)
	}
	if !has {
		return fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefNotFound)
	}
	if err := b.db.Delete(refKey(name), nil); err != nil {
		return fmt.Errorf(`could not delete ref "%s": %w`, name, err)
	}
	return nil
}

// WalkReferences runs the provided method on all the references
func (b *Backend) WalkReferences(ctx context.Context, f backend.RefWalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.iterate(refKeyPrefix, func(name string, data []byte) error {
		ref, err := ginternals.NewReferenceFromContent(name, data)
		if err != nil {
			return fmt.Errorf(`could not parse ref "%s": %w`, name, err)
		}
		return f(ref)
	})
	if err != nil {
		if err == backend.WalkStop { //nolint:errorlint // it's a fake error so no need to use errors.Is()
			return nil
		}
		return err
	}
	return nil
}

// PackRefs is a no-op for the LevelDB backend: the references already
// live in a single consolidated key space
func (b *Backend) PackRefs(ctx context.Context) error {
	return ctx.Err()
}
