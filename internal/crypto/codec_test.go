package crypto

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := randomKey(t)

	plaintexts := []string{
		"hello",
		"",
		"exactly 16 bytes",
		strings.Repeat("long message ", 100),
		"unicode: héllo wörld 👻",
	}

	for _, plaintext := range plaintexts {
		encoded, err := Encrypt(plaintext, key)
		require.NoError(t, err)

		decoded, ok := Decrypt(encoded, key)
		assert.True(t, ok)
		assert.Equal(t, plaintext, decoded)
	}
}

func TestEncryptProducesFreshIV(t *testing.T) {
	key := randomKey(t)

	first, err := Encrypt("same plaintext", key)
	require.NoError(t, err)
	second, err := Encrypt("same plaintext", key)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "two encryptions of the same plaintext must differ")
}

func TestDecryptWrongKeyReturnsSentinel(t *testing.T) {
	encoded, err := Encrypt("secret", randomKey(t))
	require.NoError(t, err)

	decoded, ok := Decrypt(encoded, randomKey(t))
	assert.False(t, ok)
	assert.Equal(t, Unreadable, decoded)
}

func TestDecryptCorruptPayloadReturnsSentinel(t *testing.T) {
	key := randomKey(t)

	cases := []struct {
		name    string
		payload string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"too short", "aGVsbG8="},
		{"empty", ""},
		{"iv only", EncodeKey(make([]byte, 16))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, ok := Decrypt(tc.payload, key)
			assert.False(t, ok)
			assert.Equal(t, Unreadable, decoded)
		})
	}
}

func TestEncryptRejectsShortKey(t *testing.T) {
	_, err := Encrypt("hello", []byte("too short"))
	assert.Error(t, err)
}
