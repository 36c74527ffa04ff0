package gitcore_test

import (
	"context"
	"testing"

	gitcore "github.com/goabstract/gitcore"
	"github.com/goabstract/gitcore/ginternals/githash"
	"github.com/goabstract/gitcore/ginternals/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBlobID(t *testing.T, r *gitcore.Repository, content string) githash.Oid {
	t.Helper()
	b, err := r.WriteBlob(context.Background(), []byte(content))
	require.NoError(t, err)
	return b.ID()
}

func writeTreeID(t *testing.T, r *gitcore.Repository, entries []object.TreeEntry) githash.Oid {
	t.Helper()
	tree, err := r.WriteTree(context.Background(), entries)
	require.NoError(t, err)
	return tree.ID()
}

func TestTreeDiff(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRepo(t)

	blobA := writeBlobID(t, r, "a\n")
	blobB := writeBlobID(t, r, "b\n")
	blobC := writeBlobID(t, r, "c\n")

	t.Run("flat trees", func(t *testing.T) {
		t.Parallel()

		oldTree := writeTreeID(t, r, []object.TreeEntry{
			{Mode: object.ModeFile, Path: "kept", ID: blobA},
			{Mode: object.ModeFile, Path: "changed", ID: blobA},
			{Mode: object.ModeFile, Path: "removed", ID: blobB},
		})
		newTree := writeTreeID(t, r, []object.TreeEntry{
			{Mode: object.ModeFile, Path: "kept", ID: blobA},
			{Mode: object.ModeFile, Path: "changed", ID: blobB},
			{Mode: object.ModeFile, Path: "added", ID: blobC},
		})

		changes, err := r.TreeDiff(ctx, oldTree, newTree)
		require.NoError(t, err)
		require.Len(t, changes, 3)

		// sorted by path: added, changed, removed
		assert.Equal(t, "added", changes[0].Path)
		assert.Equal(t, gitcore.ChangeAdded, changes[0].Type)
		assert.Equal(t, blobC, changes[0].NewID)

		assert.Equal(t, "changed", changes[1].Path)
		assert.Equal(t, gitcore.ChangeModified, changes[1].Type)
		assert.Equal(t, blobA, changes[1].OldID)
		assert.Equal(t, blobB, changes[1].NewID)

		assert.Equal(t, "removed", changes[2].Path)
		assert.Equal(t, gitcore.ChangeRemoved, changes[2].Type)
	})

	t.Run("identical trees", func(t *testing.T) {
		t.Parallel()

		tree := writeTreeID(t, r, []object.TreeEntry{
			{Mode: object.ModeFile, Path: "a", ID: blobA},
		})
		changes, err := r.TreeDiff(ctx, tree, tree)
		require.NoError(t, err)
		assert.Empty(t, changes)
	})

	t.Run("nested trees recurse with full paths", func(t *testing.T) {
		t.Parallel()

		oldSub := writeTreeID(t, r, []object.TreeEntry{
			{Mode: object.ModeFile, Path: "file", ID: blobA},
		})
		newSub := writeTreeID(t, r, []object.TreeEntry{
			{Mode: object.ModeFile, Path: "file", ID: blobB},
		})
		oldTree := writeTreeID(t, r, []object.TreeEntry{
			{Mode: object.ModeDirectory, Path: "sub", ID: oldSub},
		})
		newTree := writeTreeID(t, r, []object.TreeEntry{
			{Mode: object.ModeDirectory, Path: "sub", ID: newSub},
		})

		changes, err := r.TreeDiff(ctx, oldTree, newTree)
		require.NoError(t, err)
		require.Len(t, changes, 1)
		assert.Equal(t, "sub/file", changes[0].Path)
		assert.Equal(t, gitcore.ChangeModified, changes[0].Type)
	})

	t.Run("kind change is type-changed, not modified", func(t *testing.T) {
		t.Parallel()

		sub := writeTreeID(t, r, []object.TreeEntry{
			{Mode: object.ModeFile, Path: "inner", ID: blobA},
		})
		oldTree := writeTreeID(t, r, []object.TreeEntry{
			{Mode: object.ModeFile, Path: "thing", ID: blobA},
		})
		newTree := writeTreeID(t, r, []object.TreeEntry{
			{Mode: object.ModeDirectory, Path: "thing", ID: sub},
		})

		changes, err := r.TreeDiff(ctx, oldTree, newTree)
		require.NoError(t, err)
		require.Len(t, changes, 1)
		assert.Equal(t, "thing", changes[0].Path)
		assert.Equal(t, gitcore.ChangeTypeChanged, changes[0].Type)
	})

	t.Run("mode flip is modified", func(t *testing.T) {
		t.Parallel()

		oldTree := writeTreeID(t, r, []object.TreeEntry{
			{Mode: object.ModeFile, Path: "script", ID: blobA},
		})
		newTree := writeTreeID(t, r, []object.TreeEntry{
			{Mode: object.ModeExecutable, Path: "script", ID: blobA},
		})

		changes, err := r.TreeDiff(ctx, oldTree, newTree)
		require.NoError(t, err)
		require.Len(t, changes, 1)
		assert.Equal(t, gitcore.ChangeModified, changes[0].Type)
	})

	t.Run("gitlinks are compared by id, never followed", func(t *testing.T) {
		t.Parallel()

		oldTree := writeTreeID(t, r, []object.TreeEntry{
			{Mode: object.ModeGitLink, Path: "vendored", ID: githash.Oid{1}},
		})
		newTree := writeTreeID(t, r, []object.TreeEntry{
			{Mode: object.ModeGitLink, Path: "vendored", ID: githash.Oid{2}},
		})

		changes, err := r.TreeDiff(ctx, oldTree, newTree)
		require.NoError(t, err)
		require.Len(t, changes, 1)
		assert.Equal(t, gitcore.ChangeModified, changes[0].Type)
	})

	t.Run("zero id stands for the empty tree", func(t *testing.T) {
		t.Parallel()

		tree := writeTreeID(t, r, []object.TreeEntry{
			{Mode: object.ModeFile, Path: "a", ID: blobA},
		})
		changes, err := r.TreeDiff(ctx, githash.NullOid, tree)
		require.NoError(t, err)
		require.Len(t, changes, 1)
		assert.Equal(t, gitcore.ChangeAdded, changes[0].Type)
	})
}
