package gitcore

import (
	"context"
	"fmt"

	"github.com/goabstract/gitcore/ginternals/githash"
	"github.com/goabstract/gitcore/ginternals/object"
)

// TreeBuilder is used to build trees
type TreeBuilder struct {
	repo    *Repository
	entries map[string]object.TreeEntry
}

// NewTreeBuilder creates a new empty tree builder
func (r *Repository) NewTreeBuilder() *TreeBuilder {
	return &TreeBuilder{
		repo:    r,
		entries: map[string]object.TreeEntry{},
	}
}

// NewTreeBuilderFromTree creates a new tree builder containing the
// entries of another tree
func (r *Repository) NewTreeBuilderFromTree(t *object.Tree) *TreeBuilder {
	entries := map[string]object.TreeEntry{}
	for _, e := range t.Entries() {
		entries[e.Path] = e
	}
	return &TreeBuilder{
		repo:    r,
		entries: entries,
	}
}

// Insert inserts a new entry in the tree, replacing any previous
// entry with the same name. The target object must already be in the
// odb, except for gitlinks which live in another repository
func (tb *TreeBuilder) Insert(ctx context.Context, name string, oid githash.Oid, mode object.TreeObjectMode) error {
	e := object.TreeEntry{
		Mode: mode,
		Path: name,
		ID:   oid,
	}
	if !e.IsValid() {
		return fmt.Errorf("entry %q with mode %o: %w", name, mode, object.ErrTreeEntryInvalid)
	}

	if mode != object.ModeGitLink {
		o, err := tb.repo.Object(ctx, oid)
		if err != nil {
			return fmt.Errorf("cannot verify object: %w", err)
		}
		if o.Type() != mode.ObjectType() {
			return fmt.Errorf("object %s is a %s, mode %o wants a %s: %w",
				oid.String(), o.Type(), mode, mode.ObjectType(), object.ErrObjectInvalid)
		}
	}

	tb.entries[name] = e
	return nil
}

// Remove removes an entry from the tree
func (tb *TreeBuilder) Remove(name string) {
	delete(tb.entries, name)
}

// Write creates and persists a new Tree object
func (tb *TreeBuilder) Write(ctx context.Context) (*object.Tree, error) {
	entries := make([]object.TreeEntry, 0, len(tb.entries))
	for _, e := range tb.entries {
		entries = append(entries, e)
	}
	// NewTree takes care of the canonical ordering
	return tb.repo.WriteTree(ctx, entries)
}
