package membackend

import (
	"context"
	"fmt"

	"github.com/goabstract/gitcore/backend"
	"github.com/goabstract/gitcore/ginternals"
)

// Reference returns a stored reference from its name, without
// resolving symbolic targets.
// This method can be called concurrently
func (b *Backend) Reference(ctx context.Context, name string) (*ginternals.Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	data, ok := b.refs[name]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefNotFound)
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

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refs[ref.Name()] = data
	return nil
}

// WriteReferenceSafe writes the given reference in the db.
// ginternals.ErrRefExists is returned if the reference already exists
func (b *Backend) WriteReferenceSafe(ctx context.Context, ref *ginternals.Reference) error {
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

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.refs[ref.Name()]; ok {
		return fmt.Errorf(`ref "%s": %w`, ref.Name(), ginternals.ErrRefExists)
	}
	b.refs[ref.Name()] = data
	return nil
}

// DeleteReference removes the given reference
func (b *Backend) DeleteReference(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.refs[name]; !ok {
		return fmt.Errorf(`ref "%s": %w`, name, ginternals.ErrRefNotFound)
	}
	delete(b.refs, name)
	return nil
}

// WalkReferences runs the provided method on all the references
func (b *Backend) WalkReferences(ctx context.Context, f backend.RefWalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	refs := make([]*ginternals.Reference, 0, len(b.refs))
	for name, data := range b.refs {
		ref, err := ginternals.NewReferenceFromContent(name, data)
		if err != nil {
			b.mu.RUnlock()
			return fmt.Errorf(`could not parse ref "%s": %w`, name, err)
		}
		refs = append(refs, ref)
	}
	b.mu.RUnlock()

	for _, ref := range refs {
		if err := f(ref); err != nil {
			if err == backend.WalkStop { //nolint:errorlint // it's a fake error so no need to use errors.Is()
				return nil
			}
			return err
		}
	}
	return nil
}

// PackRefs is a no-op for the in-memory backend: the references
// already live in a single consolidated map
func (b *Backend) PackRefs(ctx context.Context) error {
	return ctx.Err()
}
