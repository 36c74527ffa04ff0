package object_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/goabstract/gitcore/ginternals/githash"
	"github.com/goabstract/gitcore/ginternals/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSignature(t *testing.T) object.Signature {
	t.Helper()
	sig, err := object.NewSignatureFromBytes([]byte("A <a@x> 1700000000 +0000"))
	require.NoError(t, err)
	return sig
}

func TestNewCommit(t *testing.T) {
	t.Parallel()

	treeID := mustOid(t, "e5b9e846e1b468bc9597ff95d71dfacda8bd54e3")
	p1 := mustOid(t, "0343d67ca3d80a531d0d163f0078a81c95c9085a")
	p2 := mustOid(t, "9b91da06e69613397b38e0808e0ba5ee6983251b")

	t.Run("merge commit wire format", func(t *testing.T) {
		t.Parallel()

		sig := testSignature(t)
		c := object.NewCommit(treeID, sig, &object.CommitOptions{
			Message:   "merge",
			ParentsID: []githash.Oid{p1, p2},
		})

		wire := string(c.ToObject().Bytes())
		expected := "tree " + treeID.String() + "\n" +
			"parent " + p1.String() + "\n" +
			"parent " + p2.String() + "\n" +
			"author A <a@x> 1700000000 +0000\n" +
			"committer A <a@x> 1700000000 +0000\n" +
			"\n" +
			"merge"
		assert.Equal(t, expected, wire)

		parsed, err := object.NewCommitFromObject(c.ToObject())
		require.NoError(t, err)
		assert.Equal(t, []githash.Oid{p1, p2}, parsed.ParentIDs())
		assert.Equal(t, treeID, parsed.TreeID())
		assert.Equal(t, "merge", parsed.Message())
		assert.Equal(t, c.ID(), parsed.ID())
	})

	t.Run("committer defaults to the author", func(t *testing.T) {
		t.Parallel()

		c := object.NewCommit(treeID, testSignature(t), &object.CommitOptions{Message: "init\n"})
		assert.Equal(t, c.Author(), c.Committer())
		assert.Empty(t, c.ParentIDs())
	})

	t.Run("root commit parses with zero parents", func(t *testing.T) {
		t.Parallel()

		c := object.NewCommit(treeID, testSignature(t), &object.CommitOptions{Message: "init\n"})
		parsed, err := object.NewCommitFromObject(c.ToObject())
		require.NoError(t, err)
		assert.Empty(t, parsed.ParentIDs())
	})

	t.Run("empty message is valid", func(t *testing.T) {
		t.Parallel()

		c := object.NewCommit(treeID, testSignature(t), &object.CommitOptions{})
		parsed, err := object.NewCommitFromObject(c.ToObject())
		require.NoError(t, err)
		assert.Empty(t, parsed.Message())
	})

	t.Run("message is kept verbatim", func(t *testing.T) {
		t.Parallel()

		msg := "subject\n\nbody line 1\nbody line 2\n"
		c := object.NewCommit(treeID, testSignature(t), &object.CommitOptions{Message: msg})
		parsed, err := object.NewCommitFromObject(c.ToObject())
		require.NoError(t, err)
		assert.Equal(t, msg, parsed.Message())
	})
}

func TestNewCommitFromObject(t *testing.T) {
	t.Parallel()

	treeID := "e5b9e846e1b468bc9597ff95d71dfacda8bd54e3"
	sigLine := "A <a@x> 1700000000 +0000"

	testCases := []struct {
		desc     string
		payload  string
		expected error
	}{
		{
			desc:     "no tree",
			payload:  "author " + sigLine + "\ncommitter " + sigLine + "\n\nmsg",
			expected: object.ErrCommitInvalid,
		},
		{
			desc:     "no author",
			payload:  "tree " + treeID + "\ncommitter " + sigLine + "\n\nmsg",
			expected: object.ErrCommitInvalid,
		},
		{
			desc:     "bad tree id",
			payload:  "tree nope\nauthor " + sigLine + "\ncommitter " + sigLine + "\n\nmsg",
			expected: githash.ErrInvalidOid,
		},
		{
			desc:     "bad author signature",
			payload:  "tree " + treeID + "\nauthor nope\ncommitter " + sigLine + "\n\nmsg",
			expected: object.ErrSignatureInvalid,
		},
		{
			desc:     "header line without a value",
			payload:  "tree\nauthor " + sigLine + "\n\nmsg",
			expected: object.ErrCommitInvalid,
		},
	}
	for i, tc := range testCases {
		tc := tc
		i := i
		t.Run(fmt.Sprintf("%d/%s", i, tc.desc), func(t *testing.T) {
			t.Parallel()

			o := object.New(object.TypeCommit, []byte(tc.payload))
			_, err := object.NewCommitFromObject(o)
			require.ErrorIs(t, err, tc.expected)
		})
	}

	t.Run("wrong object type is rejected", func(t *testing.T) {
		t.Parallel()

		o := object.New(object.TypeBlob, []byte("nope"))
		_, err := object.NewCommitFromObject(o)
		require.ErrorIs(t, err, object.ErrObjectInvalid)
	})

	t.Run("gpg signed commit round trips", func(t *testing.T) {
		t.Parallel()

		gpg := "-----BEGIN PGP SIGNATURE-----\nabcdef\n-----END PGP SIGNATURE-----"
		payload := "tree " + treeID + "\n" +
			"author " + sigLine + "\n" +
			"committer " + sigLine + "\n" +
			"gpgsig " + gpg + "\n" +
			"\n" +
			"signed"
		o := object.New(object.TypeCommit, []byte(payload))
		parsed, err := object.NewCommitFromObject(o)
		require.NoError(t, err)
		assert.Equal(t, gpg, parsed.GPGSig())
		assert.Equal(t, "signed", parsed.Message())
		assert.True(t, strings.HasSuffix(string(parsed.ToObject().Bytes()), "signed"))
	})
}
