package object_test

import (
	"testing"

	"github.com/goabstract/gitcore/ginternals/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlob(t *testing.T) {
	t.Parallel()

	t.Run("known id", func(t *testing.T) {
		t.Parallel()

		b := object.NewBlob([]byte("hello\n"))
		assert.Equal(t, "ce013625030ba8dba906f756967f9e9ca394464a", b.ID().String())
		assert.Equal(t, 6, b.Size())
		assert.Equal(t, []byte("hello\n"), b.Bytes())
	})

	t.Run("BytesCopy doesn't share memory", func(t *testing.T) {
		t.Parallel()

		b := object.NewBlob([]byte("hello\n"))
		cp := b.BytesCopy()
		cp[0] = 'H'
		assert.Equal(t, []byte("hello\n"), b.Bytes())
	})

	t.Run("from object", func(t *testing.T) {
		t.Parallel()

		o := object.New(object.TypeBlob, []byte("hello\n"))
		b, err := object.NewBlobFromObject(o)
		require.NoError(t, err)
		assert.Equal(t, o.ID(), b.ID())

		notABlob := object.New(object.TypeTree, nil)
		_, err = object.NewBlobFromObject(notABlob)
		require.ErrorIs(t, err, object.ErrObjectInvalid)
	})
}
