package fsbackend_test

import (
	"context"
	"testing"
	"time"

	"github.com/goabstract/gitcore/backend/fsbackend"
	"github.com/goabstract/gitcore/ginternals"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) *fsbackend.Backend {
	t.Helper()
	b := fsbackend.New(afero.NewMemMapFs(), "/repo")
	require.NoError(t, b.Init(context.Background(), "master"))
	t.Cleanup(func() {
		require.NoError(t, b.Close())
	})
	return b
}

func TestInit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := afero.NewMemMapFs()
	b := fsbackend.New(fs, "/repo")
	require.NoError(t, b.Init(ctx, "main"))

	head, err := b.Reference(ctx, ginternals.Head)
	require.NoError(t, err)
	assert.True(t, head.IsSymbolic())
	assert.Equal(t, "refs/heads/main", head.SymbolicTarget())

	exists, err := afero.DirExists(fs, "/repo/refs/heads")
	require.NoError(t, err)
	assert.True(t, exists)

	// reinitializing doesn't reset HEAD
	require.NoError(t, b.Init(ctx, "other"))
	head, err = b.Reference(ctx, ginternals.Head)
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/main", head.SymbolicTarget())
}

func TestLockRef(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("lock is exclusive and released on Release", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)

		lock, err := b.LockRef(ctx, "refs/heads/main", 0)
		require.NoError(t, err)

		_, err = b.LockRef(ctx, "refs/heads/main", 50*time.Millisecond)
		require.ErrorIs(t, err, ginternals.ErrRefLocked)

		require.NoError(t, lock.Release())
		require.NoError(t, lock.Release(), "double release should be a no-op")

		relock, err := b.LockRef(ctx, "refs/heads/main", 50*time.Millisecond)
		require.NoError(t, err)
		require.NoError(t, relock.Release())
	})

	t.Run("locks on different names don't block each other", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)

		l1, err := b.LockRef(ctx, "refs/heads/a", 0)
		require.NoError(t, err)
		l2, err := b.LockRef(ctx, "refs/heads/b", 50*time.Millisecond)
		require.NoError(t, err)
		require.NoError(t, l1.Release())
		require.NoError(t, l2.Release())
	})
}
