package gitcore

import (
	"context"
	"fmt"
	"sort"

	"github.com/goabstract/gitcore/ginternals/githash"
	"github.com/goabstract/gitcore/ginternals/object"
)

// ChangeType describes what happened to a path between two trees
type ChangeType int8

const (
	// ChangeAdded means the path only exists in the new tree
	ChangeAdded ChangeType = iota + 1
	// ChangeRemoved means the path only exists in the old tree
	ChangeRemoved
	// ChangeModified means the path exists on both sides with
	// different content or mode
	ChangeModified
	// ChangeTypeChanged means the path changed kind between the two
	// sides (ex. a file became a directory)
	ChangeTypeChanged
)

func (t ChangeType) String() string {
	switch t {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeModified:
		return "modified"
	case ChangeTypeChanged:
		return "type-changed"
	default:
		panic(fmt.Sprintf("unknown change type %d", t))
	}
}

// TreeChange is one entry of a tree diff, keyed by the full path of
// the changed entry
type TreeChange struct {
	Path    string
	OldID   githash.Oid
	NewID   githash.Oid
	OldMode object.TreeObjectMode
	NewMode object.TreeObjectMode
	Type    ChangeType
}

// TreeDiff compares two trees and returns the list of changes between
// them, sorted by path.
// Matching subtrees are compared recursively; gitlink entries are
// compared by id and never followed.
// The zero id stands for an empty tree, which makes TreeDiff usable
// against a root commit
func (r *Repository) TreeDiff(ctx context.Context, oldID, newID githash.Oid) ([]TreeChange, error) {
	oldEntries, err := r.treeEntries(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newEntries, err := r.treeEntries(ctx, newID)
	if err != nil {
		return nil, err
	}

	out := []TreeChange{}
	if err := r.diffEntries(ctx, "", oldEntries, newEntries, &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// treeEntries returns the entries of a tree, the zero id standing for
// an empty tree
func (r *Repository) treeEntries(ctx context.Context, oid githash.Oid) ([]object.TreeEntry, error) {
	if oid.IsZero() {
		return nil, nil
	}
	t, err := r.Tree(ctx, oid)
	if err != nil {
		return nil, err
	}
	return t.Entries(), nil
}

// diffEntries compares two lists of sibling entries and accumulates
// the changes
func (r *Repository) diffEntries(ctx context.Context, prefix string, oldEntries, newEntries []object.TreeEntry, out *[]TreeChange) error {
	olds := map[string]object.TreeEntry{}
	for _, e := range oldEntries {
		olds[e.Path] = e
	}
	news := map[string]object.TreeEntry{}
	for _, e := range newEntries {
		news[e.Path] = e
	}

	names := make([]string, 0, len(olds)+len(news))
	for name := range olds {
		names = append(names, name)
	}
	for name := range news {
		if _, ok := olds[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		fullPath := name
		if prefix != "" {
			fullPath = prefix + "/" + name
		}
		oldE, hasOld := olds[name]
		newE, hasNew := news[name]

		switch {
		case hasOld && !hasNew:
			*out = append(*out, TreeChange{
				Path:    fullPath,
				Type:    ChangeRemoved,
				OldID:   oldE.ID,
				OldMode: oldE.Mode,
			})
		case !hasOld && hasNew:
			*out = append(*out, TreeChange{
				Path:    fullPath,
				Type:    ChangeAdded,
				NewID:   newE.ID,
				NewMode: newE.Mode,
			})
		case oldE.Mode.ObjectType() != newE.Mode.ObjectType():
			*out = append(*out, TreeChange{
				Path:    fullPath,
				Type:    ChangeTypeChanged,
				OldID:   oldE.ID,
				NewID:   newE.ID,
				OldMode: oldE.Mode,
				NewMode: newE.Mode,
			})
		case oldE.Mode == object.ModeDirectory:
			// two subtrees, recurse into them
			if oldE.ID == newE.ID {
				continue
			}
			oldSub, err := r.treeEntries(ctx, oldE.ID)
			if err != nil {
				return err
			}
			newSub, err := r.treeEntries(ctx, newE.ID)
			if err != nil {
				return err
			}
			if err := r.diffEntries(ctx, fullPath, oldSub, newSub, out); err != nil {
				return err
			}
		case oldE.ID != newE.ID || oldE.Mode != newE.Mode:
			*out = append(*out, TreeChange{
				Path:    fullPath,
				Type:    ChangeModified,
				OldID:   oldE.ID,
				NewID:   newE.ID,
				OldMode: oldE.Mode,
				NewMode: newE.Mode,
			})
		}
	}
	return nil
}
