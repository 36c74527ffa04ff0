package object_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/goabstract/gitcore/ginternals/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSignatureFromBytes(t *testing.T) {
	t.Parallel()

	t.Run("valid signature", func(t *testing.T) {
		t.Parallel()

		sig, err := object.NewSignatureFromBytes([]byte("Melvin Laplanche <melvin.wont.reply@gmail.com> 1566115917 -0700"))
		require.NoError(t, err)
		assert.Equal(t, "Melvin Laplanche", sig.Name)
		assert.Equal(t, "melvin.wont.reply@gmail.com", sig.Email)
		assert.Equal(t, int64(1566115917), sig.Time.Unix())
		assert.Equal(t, "-0700", sig.Time.Format("-0700"))
	})

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		line := "A <a@x> 1700000000 +0000"
		sig, err := object.NewSignatureFromBytes([]byte(line))
		require.NoError(t, err)
		assert.Equal(t, line, sig.String())
	})

	t.Run("positive offset timezone", func(t *testing.T) {
		t.Parallel()

		sig, err := object.NewSignatureFromBytes([]byte("A <a@x> 1700000000 +0530"))
		require.NoError(t, err)
		assert.Equal(t, "+0530", sig.Time.Format("-0700"))
	})

	testCases := []struct {
		desc     string
		line     string
		expected error
	}{
		{
			desc:     "empty",
			line:     "",
			expected: object.ErrSignatureInvalid,
		},
		{
			desc:     "name only",
			line:     "A",
			expected: object.ErrSignatureInvalid,
		},
		{
			desc:     "stops after the email",
			line:     "A <a@x>",
			expected: object.ErrSignatureInvalid,
		},
		{
			desc:     "stops after the timestamp",
			line:     "A <a@x> 1700000000",
			expected: object.ErrSignatureInvalid,
		},
		{
			desc:     "timestamp is not a number",
			line:     "A <a@x> now +0000",
			expected: object.ErrSignatureInvalid,
		},
		{
			desc:     "negative timestamp",
			line:     "A <a@x> -1 +0000",
			expected: object.ErrSignatureInvalid,
		},
		{
			desc:     "timezone without a sign",
			line:     "A <a@x> 1700000000 0000",
			expected: object.ErrInvalidTimezone,
		},
		{
			desc:     "timezone too short",
			line:     "A <a@x> 1700000000 +00",
			expected: object.ErrInvalidTimezone,
		},
		{
			desc:     "timezone with letters",
			line:     "A <a@x> 1700000000 +00aa",
			expected: object.ErrInvalidTimezone,
		},
	}
	for i, tc := range testCases {
		tc := tc
		i := i
		t.Run(fmt.Sprintf("%d/%s", i, tc.desc), func(t *testing.T) {
			t.Parallel()

			_, err := object.NewSignatureFromBytes([]byte(tc.line))
			require.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestSignatureIsZero(t *testing.T) {
	t.Parallel()

	assert.True(t, object.Signature{}.IsZero())
	assert.False(t, object.NewSignature("name", "email").IsZero())
	assert.False(t, object.Signature{Name: "name", Time: time.Unix(0, 0)}.IsZero())
}
