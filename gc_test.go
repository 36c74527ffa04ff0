package gitcore_test

import (
	"context"
	"testing"
	"time"

	gitcore "github.com/goabstract/gitcore"
	"github.com/goabstract/gitcore/ginternals/githash"
	"github.com/goabstract/gitcore/ginternals/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGCGracePeriod(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRepo(t)

	// a freshly written unreferenced blob
	blob, err := r.WriteBlob(ctx, []byte("orphan data"))
	require.NoError(t, err)

	// a dry run within the grace period classifies it but keeps it
	stats, err := r.GC(ctx, gitcore.GCOptions{Grace: time.Hour, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Unreferenced)
	assert.Equal(t, 1, stats.SkippedGrace)
	assert.Equal(t, 0, stats.Deleted)

	has, err := r.HasObject(ctx, blob.ID())
	require.NoError(t, err)
	assert.True(t, has)

	// one hour later the object is old enough to be reclaimed
	later := func() time.Time { return time.Now().Add(time.Hour) }
	stats, err = r.GC(ctx, gitcore.GCOptions{Grace: time.Hour, Now: later})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, int64(len("orphan data")), stats.BytesFreed)
	assert.Equal(t, 0, stats.SkippedGrace)

	has, err = r.HasObject(ctx, blob.ID())
	require.NoError(t, err)
	assert.False(t, has)
}

func TestGCKeepsReachableObjects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRepo(t)

	// a referenced chain: branch → commit → tree → blob
	blob, err := r.WriteBlob(ctx, []byte("kept\n"))
	require.NoError(t, err)
	tree, err := r.WriteTree(ctx, []object.TreeEntry{
		{Mode: object.ModeFile, Path: "file", ID: blob.ID()},
	})
	require.NoError(t, err)
	commit, err := r.WriteCommit(ctx, tree.ID(), testWho(t), &object.CommitOptions{Message: "keep"})
	require.NoError(t, err)
	_, err = r.UpdateReference(ctx, "refs/heads/main", commit.ID(), gitcore.UpdateRefOptions{Create: true})
	require.NoError(t, err)

	// an annotated tag referencing another commit
	taggedCommit := writeTestCommit(t, r, "tagged")
	tag, err := r.WriteTag(ctx, &object.TagParams{
		Target:    mustObject(t, r, taggedCommit),
		Name:      "v1",
		Message:   "release",
		OptTagger: testWho(t),
	})
	require.NoError(t, err)
	_, err = r.UpdateReference(ctx, "refs/tags/v1", tag.ID(), gitcore.UpdateRefOptions{Create: true})
	require.NoError(t, err)

	// an orphan
	orphan, err := r.WriteBlob(ctx, []byte("orphan\n"))
	require.NoError(t, err)

	// run far in the future so the grace period protects nothing
	future := func() time.Time { return time.Now().Add(24 * time.Hour) }
	stats, err := r.GC(ctx, gitcore.GCOptions{Grace: time.Hour, Now: future})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, 1, stats.Unreferenced)

	// everything reachable survived, the tag target included
	for _, oid := range []string{
		blob.ID().String(), tree.ID().String(), commit.ID().String(),
		tag.ID().String(), taggedCommit.String(),
	} {
		has, err := r.HasObject(ctx, mustOidFromStr(t, oid))
		require.NoError(t, err)
		assert.True(t, has, "object %s should have survived", oid)
	}

	has, err := r.HasObject(ctx, orphan.ID())
	require.NoError(t, err)
	assert.False(t, has)
}

func TestGCDeletionCaps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRepo(t)

	_, err := r.WriteBlob(ctx, []byte("orphan one"))
	require.NoError(t, err)
	_, err = r.WriteBlob(ctx, []byte("orphan two"))
	require.NoError(t, err)

	future := func() time.Time { return time.Now().Add(24 * time.Hour) }
	stats, err := r.GC(ctx, gitcore.GCOptions{Grace: time.Hour, Now: future, MaxDeletions: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, 1, stats.SkippedCap)
	assert.Equal(t, 2, stats.Unreferenced)

	// a second run reclaims the rest
	stats, err = r.GC(ctx, gitcore.GCOptions{Grace: time.Hour, Now: future})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)
}

func TestGCStatsAccounting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRepo(t)

	commit := writeTestCommit(t, r, "root")
	_, err := r.UpdateReference(ctx, "refs/heads/main", commit, gitcore.UpdateRefOptions{Create: true})
	require.NoError(t, err)

	_, err = r.WriteBlob(ctx, []byte("orphan\n"))
	require.NoError(t, err)

	stats, err := r.GC(ctx, gitcore.GCOptions{Grace: time.Hour, DryRun: true})
	require.NoError(t, err)
	// commit + empty tree are reachable, the orphan is not
	assert.Equal(t, 2, stats.Reachable)
	assert.Equal(t, 3, stats.TotalScanned)
	assert.Equal(t, 1, stats.Unreferenced)
	assert.GreaterOrEqual(t, int64(stats.Duration), int64(0))
}

func mustObject(t *testing.T, r *gitcore.Repository, oid githash.Oid) *object.Object {
	t.Helper()
	o, err := r.Object(context.Background(), oid)
	require.NoError(t, err)
	return o
}

func mustOidFromStr(t *testing.T, s string) githash.Oid {
	t.Helper()
	oid, err := githash.NewOidFromStr(s)
	require.NoError(t, err)
	return oid
}

// ensure HEAD resolution feeds the mark phase: a detached HEAD keeps
// its commit alive
func TestGCDetachedHead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRepo(t)

	commit := writeTestCommit(t, r, "detached")
	_, err := r.DetachHead(ctx, commit)
	require.NoError(t, err)

	future := func() time.Time { return time.Now().Add(24 * time.Hour) }
	stats, err := r.GC(ctx, gitcore.GCOptions{Grace: time.Hour, Now: future})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Deleted)

	has, err := r.HasObject(ctx, commit)
	require.NoError(t, err)
	assert.True(t, has)
}

// a broken symbolic HEAD (pointing at a branch that doesn't exist
// yet) must not fail the collection
func TestGCUnbornBranch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRepo(t)

	_, err := r.WriteBlob(ctx, []byte("orphan\n"))
	require.NoError(t, err)

	stats, err := r.GC(ctx, gitcore.GCOptions{Grace: time.Hour, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Unreferenced)
	assert.Equal(t, 0, stats.Reachable)
}
