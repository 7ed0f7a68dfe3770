package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptedStringRoundTripWhenEnabled(t *testing.T) {
	require.NoError(t, InitEncryption(true, []byte("01234567890123456789012345678901")))
	defer InitEncryption(false, nil)

	in := EncryptedString("rbd:pool/image@snap")
	stored, err := in.Value()
	require.NoError(t, err)
	s, ok := stored.(string)
	require.True(t, ok)
	require.NotEqual(t, string(in), s, "expected ciphertext distinct from plaintext")

	var out EncryptedString
	require.NoError(t, out.Scan(s))
	require.Equal(t, in, out)
}

func TestEncryptedStringPassthroughWhenDisabled(t *testing.T) {
	require.NoError(t, InitEncryption(false, nil))

	in := EncryptedString("plain-value")
	stored, err := in.Value()
	require.NoError(t, err)
	require.Equal(t, string(in), stored)

	var out EncryptedString
	require.NoError(t, out.Scan(stored))
	require.Equal(t, in, out)
}

func TestEncryptedStringEmptyNeverEncrypted(t *testing.T) {
	require.NoError(t, InitEncryption(true, []byte("01234567890123456789012345678901")))
	defer InitEncryption(false, nil)

	var e EncryptedString
	v, err := e.Value()
	require.NoError(t, err)
	require.Equal(t, "", v)
}

func TestJobTableName(t *testing.T) {
	require.Equal(t, "jobs", Job{}.TableName())
}
