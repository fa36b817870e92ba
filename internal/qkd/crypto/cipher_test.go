package crypto

import (
	"encoding/base64"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantalock/qkdsim/internal/qkd/quantum"
)

func testKeyBits(t *testing.T, n int) []quantum.Bit {
	t.Helper()
	return quantum.RandomBits(rand.New(rand.NewSource(41)), n)
}

func TestNewCipherRejectsShortKey(t *testing.T) {
	_, err := NewCipher(testKeyBits(t, MinKeyBits-1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key too short")

	_, err = NewCipher(testKeyBits(t, MinKeyBits))
	assert.NoError(t, err)
}

func TestDeriveKey(t *testing.T) {
	c, err := NewCipher(testKeyBits(t, 256))
	require.NoError(t, err)

	for _, bits := range []int{128, 192, 256} {
		key, err := c.DeriveKey(bits)
		require.NoError(t, err)
		assert.Len(t, key, bits/8)
	}

	_, err = c.DeriveKey(512)
	assert.Error(t, err)
	_, err = c.DeriveKey(0)
	assert.Error(t, err)
}

func TestDeriveKeyStretchesShortKeys(t *testing.T) {
	// 128 quantum bits still derive a 256-bit AES key via hashing.
	c, err := NewCipher(testKeyBits(t, 128))
	require.NoError(t, err)

	key, err := c.DeriveKey(256)
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestFingerprint(t *testing.T) {
	bits := testKeyBits(t, 256)

	c1, err := NewCipher(bits)
	require.NoError(t, err)
	c2, err := NewCipher(bits)
	require.NoError(t, err)

	fp := c1.Fingerprint()
	assert.Len(t, fp, 16)
	assert.Equal(t, fp, c2.Fingerprint())

	other, err := NewCipher(quantum.RandomBits(rand.New(rand.NewSource(43)), 256))
	require.NoError(t, err)
	assert.NotEqual(t, fp, other.Fingerprint())
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher(testKeyBits(t, 256))
	require.NoError(t, err)

	plaintexts := []string{
		"",
		"x",
		"exactly sixteen!",
		"a longer message spanning several AES blocks for good measure",
	}
	for _, keySize := range []int{128, 192, 256} {
		for _, plaintext := range plaintexts {
			enc, err := c.Encrypt(plaintext, keySize)
			require.NoError(t, err)
			assert.Equal(t, "CBC", enc.Mode)
			assert.Equal(t, len(plaintext), enc.OriginalLength)
			assert.False(t, enc.Insecure)
			assert.Contains(t, enc.Algorithm, "AES")

			dec, err := c.Decrypt(enc.Ciphertext, enc.IV, keySize)
			require.NoError(t, err)
			assert.Equal(t, plaintext, dec.Plaintext)
			assert.True(t, dec.Verified)
			assert.Equal(t, enc.KeyFingerprint, dec.KeyFingerprint)
		}
	}
}

func TestEncryptUsesFreshIVs(t *testing.T) {
	c, err := NewCipher(testKeyBits(t, 256))
	require.NoError(t, err)

	a, err := c.Encrypt("same message", 256)
	require.NoError(t, err)
	b, err := c.Encrypt("same message", 256)
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestInsecureCipherRoundTrip(t *testing.T) {
	c, err := NewInsecureCipher(testKeyBits(t, 256))
	require.NoError(t, err)

	enc, err := c.Encrypt("fallback payload", 128)
	require.NoError(t, err)
	assert.True(t, enc.Insecure)
	assert.Contains(t, enc.Algorithm, "insecure fallback")
	assert.Contains(t, enc.Mode, "insecure fallback")

	dec, err := c.Decrypt(enc.Ciphertext, enc.IV, 128)
	require.NoError(t, err)
	assert.True(t, dec.Insecure)
	assert.Equal(t, "fallback payload", dec.Plaintext)
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	c, err := NewCipher(testKeyBits(t, 256))
	require.NoError(t, err)

	enc, err := c.Encrypt("valid message", 256)
	require.NoError(t, err)

	_, err = c.Decrypt("not base64!!", enc.IV, 256)
	assert.Error(t, err)

	_, err = c.Decrypt(enc.Ciphertext, "not base64!!", 256)
	assert.Error(t, err)

	shortIV := base64.StdEncoding.EncodeToString([]byte("tooshort"))
	_, err = c.Decrypt(enc.Ciphertext, shortIV, 256)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IV must be")

	ragged := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("a", 17)))
	_, err = c.Decrypt(ragged, enc.IV, 256)
	assert.Error(t, err)
}

func TestDecryptWrongKeyFailsPaddingCheck(t *testing.T) {
	c1, err := NewCipher(testKeyBits(t, 256))
	require.NoError(t, err)
	c2, err := NewCipher(quantum.RandomBits(rand.New(rand.NewSource(42)), 256))
	require.NoError(t, err)

	enc, err := c1.Encrypt("padding oracle fodder", 256)
	require.NoError(t, err)

	dec, err := c2.Decrypt(enc.Ciphertext, enc.IV, 256)
	if err == nil {
		// Padding can validate by chance; the plaintext must not.
		assert.NotEqual(t, "padding oracle fodder", dec.Plaintext)
	}
}
