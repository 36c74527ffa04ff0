package membackend_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goabstract/gitcore/backend"
	"github.com/goabstract/gitcore/backend/membackend"
	"github.com/goabstract/gitcore/ginternals"
	"github.com/goabstract/gitcore/ginternals/githash"
	"github.com/goabstract/gitcore/ginternals/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("write then read", func(t *testing.T) {
		t.Parallel()

		b := membackend.New()
		o := object.New(object.TypeBlob, []byte("hello\n"))
		oid, err := b.WriteObject(ctx, o)
		require.NoError(t, err)
		assert.Equal(t, "ce013625030ba8dba906f756967f9e9ca394464a", oid.String())

		got, err := b.Object(ctx, oid)
		require.NoError(t, err)
		assert.Equal(t, o.Type(), got.Type())
		assert.Equal(t, o.Bytes(), got.Bytes())

		has, err := b.HasObject(ctx, oid)
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("unknown object", func(t *testing.T) {
		t.Parallel()

		b := membackend.New()
		_, err := b.Object(ctx, githash.Oid{1})
		require.ErrorIs(t, err, ginternals.ErrObjectNotFound)

		has, err := b.HasObject(ctx, githash.Oid{1})
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("write is idempotent", func(t *testing.T) {
		t.Parallel()

		b := membackend.New()
		o := object.New(object.TypeBlob, []byte("hello\n"))
		first, err := b.WriteObject(ctx, o)
		require.NoError(t, err)
		second, err := b.WriteObject(ctx, object.New(object.TypeBlob, []byte("hello\n")))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("concurrent writers with the same content all succeed", func(t *testing.T) {
		t.Parallel()

		b := membackend.New()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := b.WriteObject(ctx, object.New(object.TypeBlob, []byte("same content")))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		count := 0
		err := b.WalkObjects(ctx, func(info backend.ObjectInfo) error {
			count++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("delete is a no-op on unknown ids", func(t *testing.T) {
		t.Parallel()

		b := membackend.New()
		require.NoError(t, b.DeleteObject(ctx, githash.Oid{1}))
	})

	t.Run("delete removes the object", func(t *testing.T) {
		t.Parallel()

		b := membackend.New()
		oid, err := b.WriteObject(ctx, object.New(object.TypeBlob, []byte("bye")))
		require.NoError(t, err)
		require.NoError(t, b.DeleteObject(ctx, oid))
		_, err = b.Object(ctx, oid)
		require.ErrorIs(t, err, ginternals.ErrObjectNotFound)
	})

	t.Run("walk reports size type and creation time", func(t *testing.T) {
		t.Parallel()

		b := membackend.New()
		before := time.Now()
		oid, err := b.WriteObject(ctx, object.New(object.TypeBlob, []byte("hello\n")))
		require.NoError(t, err)

		var got backend.ObjectInfo
		err = b.WalkObjects(ctx, func(info backend.ObjectInfo) error {
			got = info
			return backend.WalkStop
		})
		require.NoError(t, err)
		assert.Equal(t, oid, got.ID)
		assert.Equal(t, object.TypeBlob, got.Type)
		assert.Equal(t, int64(6), got.Size)
		assert.False(t, got.CreatedAt.Before(before))
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		b := membackend.New()
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := b.WriteObject(cancelled, object.New(object.TypeBlob, []byte("x")))
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestReferences(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	oid, err := githash.NewOidFromStr("0343d67ca3d80a531d0d163f0078a81c95c9085a")
	require.NoError(t, err)

	t.Run("init creates HEAD", func(t *testing.T) {
		t.Parallel()

		b := membackend.New()
		require.NoError(t, b.Init(ctx, "main"))
		head, err := b.Reference(ctx, ginternals.Head)
		require.NoError(t, err)
		assert.True(t, head.IsSymbolic())
		assert.Equal(t, "refs/heads/main", head.SymbolicTarget())

		// init on an existing repo doesn't reset HEAD
		require.NoError(t, b.Init(ctx, "other"))
		head, err = b.Reference(ctx, ginternals.Head)
		require.NoError(t, err)
		assert.Equal(t, "refs/heads/main", head.SymbolicTarget())
	})

	t.Run("write and read back", func(t *testing.T) {
		t.Parallel()

		b := membackend.New()
		require.NoError(t, b.WriteReference(ctx, ginternals.NewReference("refs/heads/main", oid)))
		ref, err := b.Reference(ctx, "refs/heads/main")
		require.NoError(t, err)
		assert.Equal(t, oid, ref.Target())
	})

	t.Run("safe write refuses to overwrite", func(t *testing.T) {
		t.Parallel()

		b := membackend.New()
		require.NoError(t, b.WriteReference(ctx, ginternals.NewReference("refs/heads/main", oid)))
		err := b.WriteReferenceSafe(ctx, ginternals.NewReference("refs/heads/main", oid))
		require.ErrorIs(t, err, ginternals.ErrRefExists)
	})

	t.Run("invalid names are rejected", func(t *testing.T) {
		t.Parallel()

		b := membackend.New()
		err := b.WriteReference(ctx, ginternals.NewReference("refs/heads/a..b", oid))
		require.ErrorIs(t, err, ginternals.ErrRefNameInvalid)
	})

	t.Run("delete", func(t *testing.T) {
		t.Parallel()

		b := membackend.New()
		require.NoError(t, b.WriteReference(ctx, ginternals.NewReference("refs/heads/main", oid)))
		require.NoError(t, b.DeleteReference(ctx, "refs/heads/main"))
		_, err := b.Reference(ctx, "refs/heads/main")
		require.ErrorIs(t, err, ginternals.ErrRefNotFound)

		err = b.DeleteReference(ctx, "refs/heads/main")
		require.ErrorIs(t, err, ginternals.ErrRefNotFound)
	})

	t.Run("walk", func(t *testing.T) {
		t.Parallel()

		b := membackend.New()
		require.NoError(t, b.Init(ctx, "main"))
		require.NoError(t, b.WriteReference(ctx, ginternals.NewReference("refs/heads/main", oid)))
		require.NoError(t, b.WriteReference(ctx, ginternals.NewReference("refs/tags/v1", oid)))

		names := map[string]bool{}
		err := b.WalkReferences(ctx, func(ref *ginternals.Reference) error {
			names[ref.Name()] = true
			return nil
		})
		require.NoError(t, err)
		assert.Len(t, names, 3)
		assert.True(t, names[ginternals.Head])
	})
}

func TestLockRef(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("locks are exclusive per name", func(t *testing.T) {
		t.Parallel()

		b := membackend.New()
		lock, err := b.LockRef(ctx, "refs/heads/main", 0)
		require.NoError(t, err)
		assert.Equal(t, "refs/heads/main", lock.Name())

		_, err = b.LockRef(ctx, "refs/heads/main", 10*time.Millisecond)
		require.ErrorIs(t, err, ginternals.ErrRefLocked)

		other, err := b.LockRef(ctx, "refs/heads/other", 10*time.Millisecond)
		require.NoError(t, err)
		require.NoError(t, other.Release())

		require.NoError(t, lock.Release())
		// releasing twice is fine
		require.NoError(t, lock.Release())

		relock, err := b.LockRef(ctx, "refs/heads/main", 10*time.Millisecond)
		require.NoError(t, err)
		require.NoError(t, relock.Release())
	})
}

func TestReflog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	b := membackend.New()
	entries, err := b.Reflog(ctx, "refs/heads/main")
	require.NoError(t, err)
	assert.Empty(t, entries)

	e1 := ginternals.ReflogEntry{Message: "first"}
	e2 := ginternals.ReflogEntry{Message: "second"}
	require.NoError(t, b.AppendReflog(ctx, "refs/heads/main", e1))
	require.NoError(t, b.AppendReflog(ctx, "refs/heads/main", e2))

	entries, err = b.Reflog(ctx, "refs/heads/main")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, "second", entries[1].Message)
}
